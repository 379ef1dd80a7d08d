package journal_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docflow/internal/journal"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/transaction"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newQueue(store *journal.Store) *queue.Queue {
	q := queue.New(queue.Options{MaxSize: 10, Logger: logging.NewNop()})
	q.AddObserver(store)
	return q
}

func TestJournalMirrorsLifecycle(t *testing.T) {
	store := openStore(t)
	q := newQueue(store)
	ctx := context.Background()

	tx := transaction.New("tx-1", transaction.TypeLetterOfIntent, transaction.PriorityNormal, map[string]any{"customer": "acme"}, time.Now())
	if !q.Admit(tx) {
		t.Fatal("admit failed")
	}
	q.NextBatch(1)
	q.UpdateStage("tx-1", transaction.StageDataRetrieved, map[string]any{"document_id": "doc-9"})
	q.Complete("tx-1", nil)

	got, err := store.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != transaction.StatusCompleted || got.DocumentID != "doc-9" {
		t.Fatalf("unexpected snapshot: status=%s doc=%q", got.Status, got.DocumentID)
	}
	if got.Payload["customer"] != "acme" {
		t.Fatalf("expected payload round trip, got %v", got.Payload)
	}

	transitions, err := store.Transitions(ctx, "tx-1")
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(transitions) != 2 {
		t.Fatalf("expected two transitions, got %+v", transitions)
	}
	if transitions[0].From != transaction.StageInitial || transitions[0].To != transaction.StageDataRetrieved {
		t.Fatalf("unexpected first transition: %+v", transitions[0])
	}
	if transitions[1].To != transaction.StageCompleted {
		t.Fatalf("expected completion transition, got %+v", transitions[1])
	}
}

func TestJournalRecordsFailures(t *testing.T) {
	store := openStore(t)
	q := newQueue(store)
	ctx := context.Background()

	q.Admit(transaction.New("tx-f", transaction.TypeGeneric, transaction.PriorityHigh, nil, time.Now()))
	q.NextBatch(1)
	q.Fail("tx-f", errors.New("template missing"), map[string]any{"stage": "initial"})

	got, err := store.Get(ctx, "tx-f")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != transaction.StatusFailed || len(got.ErrorHistory) != 1 {
		t.Fatalf("unexpected failed snapshot: %+v", got)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[transaction.StatusFailed] != 1 {
		t.Fatalf("expected one failed row, got %v", stats)
	}
	failed, err := store.List(ctx, 10, transaction.StatusFailed)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "tx-f" || failed[0].Stage != transaction.StageFailed {
		t.Fatalf("unexpected listing: %+v", failed)
	}
}

func TestJournalKeepsEvictedTransactions(t *testing.T) {
	store := openStore(t)
	q := queue.New(queue.Options{MaxSize: 10, MaxCompleted: 1, Logger: logging.NewNop()})
	q.AddObserver(store)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		q.Admit(transaction.New(id, transaction.TypeGeneric, transaction.PriorityNormal, nil, time.Now()))
		q.NextBatch(1)
		q.Complete(id, nil)
	}
	if _, ok := q.Get("a"); ok {
		t.Fatal("expected a evicted from the completed index")
	}
	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var evicted bool
	for _, row := range list {
		if row.ID == "a" {
			evicted = row.Evicted
		}
	}
	if !evicted {
		t.Fatalf("expected a flagged evicted, got %+v", list)
	}
	if _, err := store.Get(ctx, "a"); err != nil {
		t.Fatalf("expected evicted transaction readable: %v", err)
	}
}

func TestJournalGetUnknown(t *testing.T) {
	store := openStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, journal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJournalPrune(t *testing.T) {
	store := openStore(t)
	q := newQueue(store)
	ctx := context.Background()

	q.Admit(transaction.New("old", transaction.TypeGeneric, transaction.PriorityNormal, nil, time.Now()))
	q.Admit(transaction.New("live", transaction.TypeGeneric, transaction.PriorityLow, nil, time.Now()))
	q.NextBatch(1)
	q.Complete("old", nil)

	removed, err := store.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned row, got %d", removed)
	}
	if _, err := store.Get(ctx, "live"); err != nil {
		t.Fatalf("expected pending transaction kept: %v", err)
	}
}

func TestJournalReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	q := newQueue(store)
	q.Admit(transaction.New("persisted", transaction.TypeAmendment, transaction.PriorityNormal, nil, time.Now()))
	_ = store.Close()

	reopened, err := journal.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "persisted")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Type != transaction.TypeAmendment || got.Status != transaction.StatusPending {
		t.Fatalf("unexpected reopened snapshot: %+v", got)
	}
}

// gateObserver holds back the first added event until release is closed.
type gateObserver struct {
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateObserver) OnQueueEvent(evt queue.Event) {
	if evt.Kind != queue.EventAdded {
		return
	}
	g.once.Do(func() {
		close(g.held)
		<-g.release
	})
}

func TestJournalIgnoresStaleEvents(t *testing.T) {
	store := openStore(t)
	gate := &gateObserver{held: make(chan struct{}), release: make(chan struct{})}
	q := queue.New(queue.Options{MaxSize: 10, Logger: logging.NewNop()})
	q.AddObserver(gate)
	q.AddObserver(store)
	ctx := context.Background()

	admitted := make(chan bool, 1)
	go func() {
		admitted <- q.Admit(transaction.New("late", transaction.TypeGeneric, transaction.PriorityNormal, nil, time.Now()))
	}()
	<-gate.held

	if batch := q.NextBatch(1); len(batch) != 1 {
		t.Fatalf("expected admitted transaction to pop, got %d", len(batch))
	}
	q.UpdateStage("late", transaction.StageDataRetrieved, nil)
	q.Complete("late", nil)
	close(gate.release)
	if !<-admitted {
		t.Fatal("admit failed")
	}

	got, err := store.Get(ctx, "late")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != transaction.StatusCompleted || got.Stage != transaction.StageCompleted {
		t.Fatalf("journal regressed to status=%s stage=%s", got.Status, got.Stage)
	}
	transitions, err := store.Transitions(ctx, "late")
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(transitions) != 2 || transitions[1].To != transaction.StageCompleted {
		t.Fatalf("unexpected transitions: %+v", transitions)
	}
}
