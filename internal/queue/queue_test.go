package queue_test

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"docflow/internal/queue"
	"docflow/internal/transaction"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTx(id string, priority transaction.Priority, complexity float64, created time.Time) *transaction.Transaction {
	return &transaction.Transaction{
		ID:              id,
		Type:            transaction.TypeGeneric,
		Priority:        priority,
		Stage:           transaction.StageInitial,
		ComplexityScore: complexity,
		CreatedAt:       created,
	}
}

func TestOrderingIsHeapConsistent(t *testing.T) {
	clock := newFakeClock()
	q := queue.New(queue.Options{MaxSize: 500, Now: clock.Now})
	rng := rand.New(rand.NewSource(7))
	base := clock.Now()
	for i := 0; i < 200; i++ {
		tx := newTx(fmt.Sprintf("tx-%03d", i),
			transaction.Priority(1+rng.Intn(5)),
			float64(rng.Intn(5))*2.5,
			base.Add(time.Duration(rng.Intn(100))*time.Second),
		)
		if !q.Admit(tx) {
			t.Fatalf("admit %s rejected", tx.ID)
		}
	}

	var prev *transaction.Transaction
	for {
		batch := q.NextBatch(1)
		if len(batch) == 0 {
			break
		}
		cur := batch[0]
		if prev != nil && transaction.SortKeyLess(cur, prev) {
			t.Fatalf("order violated: %s (p=%d c=%.1f) released after %s (p=%d c=%.1f)",
				cur.ID, cur.Priority, cur.ComplexityScore, prev.ID, prev.Priority, prev.ComplexityScore)
		}
		prev = cur
	}
}

func TestCapacityRejectsWithoutMutation(t *testing.T) {
	const maxSize = 5000
	q := queue.New(queue.Options{MaxSize: maxSize})
	now := time.Now()
	for i := 0; i < maxSize; i++ {
		if !q.Admit(newTx(fmt.Sprintf("tx-%d", i), transaction.PriorityNormal, 1, now)) {
			t.Fatalf("admit %d rejected before capacity", i)
		}
	}
	if q.Admit(newTx("overflow", transaction.PriorityUrgent, 1, now)) {
		t.Fatal("expected admit beyond capacity to be rejected")
	}
	stats := q.Stats()
	if stats.Pending != maxSize {
		t.Fatalf("expected pending %d after rejection, got %d", maxSize, stats.Pending)
	}
	if stats.TotalRejected != 1 {
		t.Fatalf("expected one rejection recorded, got %d", stats.TotalRejected)
	}
	if _, ok := q.Get("overflow"); ok {
		t.Fatal("rejected transaction must not enter the arena")
	}
}

func TestCapacityCountsProcessing(t *testing.T) {
	q := queue.New(queue.Options{MaxSize: 2})
	now := time.Now()
	q.Admit(newTx("a", transaction.PriorityNormal, 1, now))
	q.Admit(newTx("b", transaction.PriorityNormal, 1, now))
	q.NextBatch(1)
	if q.Admit(newTx("c", transaction.PriorityNormal, 1, now)) {
		t.Fatal("processing transactions must count toward capacity")
	}
	q.Complete("a", nil)
	if !q.Admit(newTx("c", transaction.PriorityNormal, 1, now)) {
		t.Fatal("expected room after completion")
	}
}

func TestConcurrentNextBatchIsExclusive(t *testing.T) {
	const total = 2000
	q := queue.New(queue.Options{MaxSize: total})
	now := time.Now()
	for i := 0; i < total; i++ {
		q.Admit(newTx(fmt.Sprintf("tx-%d", i), transaction.Priority(1+i%5), float64(i%10), now))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch := q.NextBatch(7)
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, tx := range batch {
					seen[tx.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct ids, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("id %s returned %d times", id, count)
		}
	}
	if stats := q.Stats(); stats.Processing != total || stats.Pending != 0 {
		t.Fatalf("unexpected stats after drain: %+v", stats)
	}
}

func TestUpdateStageRecordsTransitionsAndReindexes(t *testing.T) {
	q := queue.New(queue.Options{})
	q.Admit(newTx("tx-1", transaction.PriorityNormal, 1, time.Now()))
	q.NextBatch(1)

	if !q.UpdateStage("tx-1", transaction.StageDataRetrieved, map[string]any{"crm_record": "42"}) {
		t.Fatal("expected first stage update to succeed")
	}
	if len(q.AtStage(transaction.StageInitial)) != 0 {
		t.Fatal("expected initial stage index to drop the transaction")
	}
	if !q.UpdateStage("tx-1", transaction.StageDocumentGenerated, map[string]any{"document_id": "doc-9"}) {
		t.Fatal("expected second stage update to succeed")
	}

	tx, ok := q.Get("tx-1")
	if !ok {
		t.Fatal("expected transaction to exist")
	}
	want := []transaction.Transition{
		{From: transaction.StageInitial, To: transaction.StageDataRetrieved},
		{From: transaction.StageDataRetrieved, To: transaction.StageDocumentGenerated},
	}
	got := tx.Transitions()
	if len(got) != len(want) {
		t.Fatalf("unexpected transitions: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
	if tx.DocumentID != "doc-9" || tx.Context["crm_record"] != "42" {
		t.Fatalf("expected result data to be applied, got doc=%q ctx=%v", tx.DocumentID, tx.Context)
	}
	if at := q.AtStage(transaction.StageDocumentGenerated); len(at) != 1 || at[0].ID != "tx-1" {
		t.Fatalf("expected stage index to list tx-1, got %v", at)
	}
}

func TestUpdateStageRejectsBackwardMoves(t *testing.T) {
	q := queue.New(queue.Options{})
	q.Admit(newTx("tx-1", transaction.PriorityNormal, 1, time.Now()))
	q.NextBatch(1)
	q.UpdateStage("tx-1", transaction.StageStored, nil)

	if q.UpdateStage("tx-1", transaction.StageDataRetrieved, nil) {
		t.Fatal("expected backward move to be rejected")
	}
	if q.UpdateStage("tx-1", transaction.StageFailed, nil) {
		t.Fatal("expected failed to be reachable only through Fail")
	}
	tx, _ := q.Get("tx-1")
	if tx.Stage != transaction.StageStored {
		t.Fatalf("expected stage unchanged, got %s", tx.Stage)
	}
}

func TestSignatureStagesDriveStatus(t *testing.T) {
	q := queue.New(queue.Options{})
	q.Admit(newTx("tx-1", transaction.PriorityNormal, 1, time.Now()))
	q.NextBatch(1)
	q.UpdateStage("tx-1", transaction.StageSignatureRequested, map[string]any{"signature_request_id": "sig-1"})

	tx, _ := q.Get("tx-1")
	if tx.Status != transaction.StatusWaitingSignature || tx.SignatureRequestID != "sig-1" {
		t.Fatalf("unexpected parked state: status=%s sig=%q", tx.Status, tx.SignatureRequestID)
	}
	parked := q.AtStage(transaction.StageSignatureRequested)
	if len(parked) != 1 {
		t.Fatalf("expected one parked transaction, got %d", len(parked))
	}

	q.UpdateStage("tx-1", transaction.StageSignatureCompleted, nil)
	tx, _ = q.Get("tx-1")
	if tx.Status != transaction.StatusSigned {
		t.Fatalf("expected signed status, got %s", tx.Status)
	}
}

func TestRunningAverageMatchesMean(t *testing.T) {
	clock := newFakeClock()
	q := queue.New(queue.Options{Now: clock.Now})
	durations := []time.Duration{3 * time.Second, 10 * time.Second, 1500 * time.Millisecond, 42 * time.Second, 7 * time.Second}

	var sum float64
	for i, d := range durations {
		id := fmt.Sprintf("tx-%d", i)
		q.Admit(newTx(id, transaction.PriorityNormal, 1, clock.Now()))
		q.NextBatch(1)
		clock.Advance(d)
		if !q.Complete(id, nil) {
			t.Fatalf("complete %s failed", id)
		}
		sum += d.Seconds()
	}

	want := sum / float64(len(durations))
	if got := q.AverageProcessingSeconds(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("average = %v, want %v", got, want)
	}
	if stats := q.Stats(); stats.TotalProcessed != int64(len(durations)) {
		t.Fatalf("expected %d processed, got %d", len(durations), stats.TotalProcessed)
	}
}

func TestScenarioAdmitPopComplete(t *testing.T) {
	q := queue.New(queue.Options{})
	tx := newTx("tx-a", transaction.PriorityNormal, 5.0, time.Now())
	if !q.Admit(tx) {
		t.Fatal("admit failed")
	}

	batch := q.NextBatch(1)
	if len(batch) != 1 || batch[0].ID != "tx-a" {
		t.Fatalf("unexpected batch: %v", batch)
	}
	if batch[0].Status != transaction.StatusProcessing || batch[0].StartedAt == nil {
		t.Fatalf("expected processing with started_at, got %s %v", batch[0].Status, batch[0].StartedAt)
	}

	before := q.Stats().TotalProcessed
	if !q.Complete("tx-a", map[string]any{"outcome": "ok"}) {
		t.Fatal("complete failed")
	}
	got, ok := q.Get("tx-a")
	if !ok || got.Status != transaction.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected completed record: %+v", got)
	}
	completed := q.Completed(0)
	if len(completed) != 1 || completed[0].ID != "tx-a" {
		t.Fatalf("expected tx-a in completed index, got %v", completed)
	}
	if after := q.Stats().TotalProcessed; after != before+1 {
		t.Fatalf("expected total processed to increase by one, got %d -> %d", before, after)
	}
}

func TestScenarioUrgentBeforeBackground(t *testing.T) {
	q := queue.New(queue.Options{})
	now := time.Now()
	q.Admit(newTx("background", transaction.PriorityBackground, 3, now))
	q.Admit(newTx("urgent", transaction.PriorityUrgent, 3, now.Add(time.Second)))

	batch := q.NextBatch(1)
	if len(batch) != 1 || batch[0].ID != "urgent" {
		t.Fatalf("expected only the urgent transaction, got %v", batch)
	}
}

func TestAdmitEscalatesVIP(t *testing.T) {
	q := queue.New(queue.Options{})
	tx := newTx("vip", transaction.PriorityLow, 1, time.Now())
	tx.Payload = map[string]any{"vip": true}
	q.Admit(tx)

	got, _ := q.Get("vip")
	if got.Priority > transaction.PriorityHigh {
		t.Fatalf("expected VIP escalation to at most high, got %s", got.Priority)
	}
	var escalated bool
	for _, entry := range got.ProcessingHistory {
		if entry.Event == transaction.EventEscalated {
			escalated = true
		}
	}
	if !escalated {
		t.Fatal("expected escalation to be recorded in history")
	}
	if tx.Priority != transaction.PriorityLow {
		t.Fatal("admit must not mutate the caller's transaction")
	}
}

func TestUnknownIDsAreIgnored(t *testing.T) {
	q := queue.New(queue.Options{})
	if q.Complete("missing", nil) {
		t.Fatal("complete on unknown id should report false")
	}
	if q.Fail("missing", errors.New("boom"), nil) {
		t.Fatal("fail on unknown id should report false")
	}
	if q.UpdateStage("missing", transaction.StageStored, nil) {
		t.Fatal("update_stage on unknown id should report false")
	}
	if q.Cancel("missing", "test") {
		t.Fatal("cancel on unknown id should report false")
	}
	if stats := q.Stats(); stats.TotalFailed != 0 || stats.TotalProcessed != 0 {
		t.Fatalf("expected no aggregate changes, got %+v", stats)
	}
}

func TestFailRecordsStageAndError(t *testing.T) {
	q := queue.New(queue.Options{})
	q.Admit(newTx("tx-1", transaction.PriorityNormal, 1, time.Now()))
	q.NextBatch(1)
	q.Fail("tx-1", errors.New("crm unavailable"), map[string]any{"stage": "initial"})

	tx, _ := q.Get("tx-1")
	if tx.Status != transaction.StatusFailed || tx.Stage != transaction.StageFailed {
		t.Fatalf("unexpected failed state: %s %s", tx.Status, tx.Stage)
	}
	if len(tx.ErrorHistory) != 1 || tx.ErrorHistory[0].Stage != transaction.StageInitial {
		t.Fatalf("expected error entry at initial, got %+v", tx.ErrorHistory)
	}
	if q.Complete("tx-1", nil) {
		t.Fatal("expected complete after fail to be ignored")
	}
	if stats := q.Stats(); stats.TotalFailed != 1 || stats.ErrorRate != 1 {
		t.Fatalf("unexpected stats after failure: %+v", stats)
	}
}

func TestNextBatchTypeFilterPreservesSkipped(t *testing.T) {
	q := queue.New(queue.Options{})
	now := time.Now()
	loi := newTx("loi", transaction.PriorityUrgent, 1, now)
	loi.Type = transaction.TypeLetterOfIntent
	auth := newTx("auth", transaction.PriorityLow, 1, now)
	auth.Type = transaction.TypeAuthorizationForm
	q.Admit(loi)
	q.Admit(auth)

	batch := q.NextBatch(5, transaction.TypeAuthorizationForm)
	if len(batch) != 1 || batch[0].ID != "auth" {
		t.Fatalf("expected only auth, got %v", batch)
	}
	rest := q.NextBatch(5)
	if len(rest) != 1 || rest[0].ID != "loi" {
		t.Fatalf("expected skipped loi to remain pending, got %v", rest)
	}
}

func TestCancelOnlyPending(t *testing.T) {
	q := queue.New(queue.Options{})
	now := time.Now()
	q.Admit(newTx("a", transaction.PriorityUrgent, 1, now))
	q.Admit(newTx("b", transaction.PriorityNormal, 1, now))
	q.NextBatch(1)

	if q.Cancel("a", "too late") {
		t.Fatal("processing transactions cannot be cancelled")
	}
	if !q.Cancel("b", "customer withdrew") {
		t.Fatal("expected pending cancel to succeed")
	}
	tx, _ := q.Get("b")
	if tx.Status != transaction.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", tx.Status)
	}
	stats := q.Stats()
	if stats.Pending != 0 || stats.TotalCancelled != 1 || stats.TotalFailed != 0 {
		t.Fatalf("unexpected stats after cancel: %+v", stats)
	}
	if len(q.NextBatch(1)) != 0 {
		t.Fatal("cancelled transaction must not be released")
	}
}

func TestCompletedIndexBoundedAndSwept(t *testing.T) {
	clock := newFakeClock()
	q := queue.New(queue.Options{MaxCompleted: 2, CompletedTTL: time.Hour, Now: clock.Now})
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("tx-%d", i)
		q.Admit(newTx(id, transaction.PriorityNormal, 1, clock.Now()))
		q.NextBatch(1)
		q.Complete(id, nil)
		clock.Advance(40 * time.Minute)
	}
	if _, ok := q.Get("tx-0"); ok {
		t.Fatal("expected oldest completed record to be trimmed")
	}
	if got := len(q.Completed(0)); got != 2 {
		t.Fatalf("expected 2 completed records, got %d", got)
	}

	if removed := q.Sweep(); removed != 1 {
		t.Fatalf("expected sweep to evict tx-1, removed %d", removed)
	}
	if _, ok := q.Get("tx-2"); !ok {
		t.Fatal("expected recent record to survive sweep")
	}
}

func TestObserversSeeMutationsInOrder(t *testing.T) {
	q := queue.New(queue.Options{MaxCompleted: 1})
	var (
		kinds []queue.EventKind
		seqs  []uint64
	)
	q.AddObserver(queue.ObserverFunc(func(evt queue.Event) {
		kinds = append(kinds, evt.Kind)
		seqs = append(seqs, evt.Seq)
	}))

	q.Admit(newTx("tx-1", transaction.PriorityNormal, 1, time.Now()))
	q.NextBatch(1)
	q.UpdateStage("tx-1", transaction.StageDataRetrieved, nil)
	q.Complete("tx-1", nil)

	q.Admit(newTx("tx-2", transaction.PriorityNormal, 1, time.Now()))
	q.NextBatch(1)
	q.Complete("tx-2", nil)

	want := []queue.EventKind{
		queue.EventAdded, queue.EventPopped, queue.EventStageChanged, queue.EventCompleted,
		queue.EventAdded, queue.EventPopped, queue.EventCompleted, queue.EventEvicted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected events: %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, kinds[i], want[i])
		}
		if seqs[i] != uint64(i+1) {
			t.Fatalf("event %d seq = %d, want %d", i, seqs[i], i+1)
		}
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	q := queue.New(queue.Options{})
	now := time.Now()
	if !q.Admit(newTx("dup", transaction.PriorityNormal, 1, now)) {
		t.Fatal("first admit failed")
	}
	if q.Admit(newTx("dup", transaction.PriorityNormal, 1, now)) {
		t.Fatal("expected duplicate id to be rejected")
	}
	if q.Len() != 1 {
		t.Fatalf("expected one live transaction, got %d", q.Len())
	}
}
