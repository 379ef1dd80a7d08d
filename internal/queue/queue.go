package queue

import (
	"container/list"
	"log/slog"
	"sort"
	"sync"
	"time"

	"docflow/internal/logging"
	"docflow/internal/transaction"
)

type location int

const (
	locPending location = iota
	locProcessing
	locCompleted
)

func (l location) String() string {
	switch l {
	case locPending:
		return "pending"
	case locProcessing:
		return "processing"
	default:
		return "completed"
	}
}

type entry struct {
	tx        *transaction.Transaction
	loc       location
	heapIndex int
	doneElem  *list.Element
}

// Options configures a Queue.
type Options struct {
	// MaxSize bounds pending plus processing transactions.
	MaxSize int
	// MaxCompleted bounds the completed index. Defaults to 1000.
	MaxCompleted int
	// CompletedTTL evicts completed records older than this on Sweep. Zero disables.
	CompletedTTL time.Duration
	Escalation   transaction.EscalationRules
	Logger       *slog.Logger
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Queue is the thread-safe transaction arena plus its indices.
type Queue struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	arena      map[string]*entry
	pending    pendingHeap
	processing map[string]struct{}
	completed  *list.List
	byStage    map[transaction.Stage]map[string]struct{}
	totals     totals
	seq        uint64

	obsMu     sync.RWMutex
	observers []Observer
}

type totals struct {
	admitted  int64
	rejected  int64
	processed int64
	failed    int64
	cancelled int64
	evicted   int64
	resolved  int64
	avgTime   float64
}

// New constructs an empty queue.
func New(opts Options) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10000
	}
	if opts.MaxCompleted <= 0 {
		opts.MaxCompleted = 1000
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		opts:       opts,
		logger:     logging.NewComponentLogger(opts.Logger, "queue"),
		now:        now,
		arena:      make(map[string]*entry),
		processing: make(map[string]struct{}),
		completed:  list.New(),
		byStage:    make(map[transaction.Stage]map[string]struct{}),
	}
}

// AddObserver registers o for all subsequent events.
func (q *Queue) AddObserver(o Observer) {
	if o == nil {
		return
	}
	q.obsMu.Lock()
	q.observers = append(q.observers, o)
	q.obsMu.Unlock()
}

// stamp assigns the next sequence number. Callers hold q.mu.
func (q *Queue) stamp(evt Event) Event {
	q.seq++
	evt.Seq = q.seq
	return evt
}

func (q *Queue) notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	q.obsMu.RLock()
	observers := append([]Observer(nil), q.observers...)
	q.obsMu.RUnlock()
	for _, evt := range events {
		for _, o := range observers {
			o.OnQueueEvent(evt)
		}
	}
}

// Admit applies escalation rules and pushes tx onto the pending heap. It
// returns false without mutating anything when pending plus processing has
// reached MaxSize or when the id is already known.
func (q *Queue) Admit(tx *transaction.Transaction) bool {
	if tx == nil || tx.ID == "" {
		return false
	}
	now := q.now()

	q.mu.Lock()
	if _, exists := q.arena[tx.ID]; exists {
		q.mu.Unlock()
		logging.WarnWithContext(q.logger, "duplicate transaction id rejected", "queue_duplicate_id",
			logging.String(logging.FieldTransactionID, tx.ID),
			logging.String(logging.FieldErrorHint, "generate a fresh id before resubmitting"),
			logging.String(logging.FieldImpact, "submission was not admitted"),
		)
		return false
	}
	if q.pending.Len()+len(q.processing) >= q.opts.MaxSize {
		q.totals.rejected++
		q.mu.Unlock()
		return false
	}

	record := tx.Clone()
	record.Status = transaction.StatusPending
	record.ComplexityScore = transaction.ClampComplexity(record.ComplexityScore)
	if record.Stage == "" {
		record.Stage = transaction.StageInitial
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	requested := record.Priority
	record.Priority = transaction.AdjustPriority(requested, record.Payload, q.opts.Escalation, now)
	record.Record(now, transaction.EventAdmitted, map[string]any{"priority": record.Priority.String()})
	if record.Priority != requested {
		record.Record(now, transaction.EventEscalated, map[string]any{
			"from": requested.String(),
			"to":   record.Priority.String(),
		})
	}

	e := &entry{tx: record, loc: locPending, heapIndex: -1}
	q.arena[record.ID] = e
	q.pending.push(e)
	q.indexStage(record.ID, record.Stage)
	q.totals.admitted++
	evt := q.stamp(Event{Kind: EventAdded, At: now, Transaction: record.Clone()})
	q.mu.Unlock()

	q.notify(evt)
	return true
}

// NextBatch pops up to n pending transactions whose type matches one of types
// (all types when empty). Skipped entries are pushed back. Returned
// transactions are PROCESSING with StartedAt set.
func (q *Queue) NextBatch(n int, types ...transaction.Type) []*transaction.Transaction {
	if n <= 0 {
		return nil
	}
	now := q.now()

	q.mu.Lock()
	var (
		batch   []*transaction.Transaction
		skipped []*entry
		events  []Event
	)
	for len(batch) < n {
		e := q.pending.pop()
		if e == nil {
			break
		}
		if !matchesType(e.tx.Type, types) {
			skipped = append(skipped, e)
			continue
		}
		e.loc = locProcessing
		q.processing[e.tx.ID] = struct{}{}
		e.tx.Status = transaction.StatusProcessing
		started := now
		e.tx.StartedAt = &started
		e.tx.Record(now, transaction.EventStarted, nil)
		snapshot := e.tx.Clone()
		batch = append(batch, snapshot)
		events = append(events, q.stamp(Event{Kind: EventPopped, At: now, Transaction: snapshot.Clone()}))
	}
	for _, e := range skipped {
		q.pending.push(e)
	}
	q.mu.Unlock()

	q.notify(events...)
	return batch
}

func matchesType(typ transaction.Type, types []transaction.Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == typ {
			return true
		}
	}
	return false
}

// UpdateStage moves a live transaction forward to stage, merging data into its
// processing context. Known result keys (document_id, signature_request_id)
// are copied onto the record. It returns false for unknown ids, finished
// transactions, and backward or terminal moves.
func (q *Queue) UpdateStage(id string, stage transaction.Stage, data map[string]any) bool {
	now := q.now()

	q.mu.Lock()
	e, ok := q.arena[id]
	if !ok || e.loc == locCompleted {
		q.mu.Unlock()
		q.logUnknown("update_stage", id)
		return false
	}
	from := e.tx.Stage
	if stage == transaction.StageFailed || !transaction.CanTransition(from, stage) {
		q.mu.Unlock()
		logging.WarnWithContext(q.logger, "stage transition rejected", "queue_invalid_transition",
			logging.String(logging.FieldTransactionID, id),
			logging.String("from", string(from)),
			logging.String("to", string(stage)),
			logging.String(logging.FieldErrorHint, "stages only move forward; use Fail for failures"),
			logging.String(logging.FieldImpact, "transaction stage unchanged"),
		)
		return false
	}

	e.tx.MergeContext(data)
	applyResultFields(e.tx, data)
	e.tx.RecordTransition(now, stage, stageDetail(data))
	switch stage {
	case transaction.StageSignatureRequested:
		e.tx.Status = transaction.StatusWaitingSignature
	case transaction.StageSignatureCompleted:
		e.tx.Status = transaction.StatusSigned
	}
	q.unindexStage(id, from)
	q.indexStage(id, stage)
	evt := q.stamp(Event{Kind: EventStageChanged, At: now, Transaction: e.tx.Clone(), From: from, To: stage})
	q.mu.Unlock()

	q.notify(evt)
	return true
}

// Result keys copied onto the transaction record by UpdateStage.
const (
	ResultDocumentID         = "document_id"
	ResultSignatureRequestID = "signature_request_id"
)

func applyResultFields(tx *transaction.Transaction, data map[string]any) {
	if v, ok := data[ResultDocumentID].(string); ok && v != "" {
		tx.DocumentID = v
	}
	if v, ok := data[ResultSignatureRequestID].(string); ok && v != "" {
		tx.SignatureRequestID = v
	}
}

func stageDetail(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return map[string]any{"keys": keys}
}

// Complete marks a processing transaction COMPLETED, moving its stage to
// completed when it is not already there.
func (q *Queue) Complete(id string, outcome map[string]any) bool {
	now := q.now()

	q.mu.Lock()
	e, ok := q.arena[id]
	if !ok || e.loc != locProcessing {
		q.mu.Unlock()
		q.logUnknown("complete", id)
		return false
	}
	e.tx.MergeContext(outcome)
	applyResultFields(e.tx, outcome)
	if e.tx.Stage != transaction.StageCompleted {
		e.tx.RecordTransition(now, transaction.StageCompleted, nil)
	}
	e.tx.Status = transaction.StatusCompleted
	e.tx.Record(now, transaction.EventCompleted, stageDetail(outcome))
	q.finish(e, now)
	q.totals.processed++
	q.observeDuration(e.tx)
	events := append([]Event{q.stamp(Event{Kind: EventCompleted, At: now, Transaction: e.tx.Clone()})}, q.trimCompleted(now)...)
	q.mu.Unlock()

	q.notify(events...)
	return true
}

// Fail marks a pending or processing transaction FAILED. The error entry
// records the stage the transaction was at when it failed.
func (q *Queue) Fail(id string, cause error, details map[string]any) bool {
	now := q.now()

	q.mu.Lock()
	e, ok := q.arena[id]
	if !ok || e.loc == locCompleted {
		q.mu.Unlock()
		q.logUnknown("fail", id)
		return false
	}
	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}
	failedAt := e.tx.Stage
	e.tx.RecordError(now, failedAt, message, details)
	e.tx.RecordTransition(now, transaction.StageFailed, map[string]any{"error": message})
	e.tx.Status = transaction.StatusFailed
	e.tx.Record(now, transaction.EventFailed, map[string]any{"stage": string(failedAt)})
	wasProcessing := e.loc == locProcessing
	q.finish(e, now)
	q.totals.failed++
	if wasProcessing {
		q.observeDuration(e.tx)
	}
	events := append([]Event{q.stamp(Event{Kind: EventFailed, At: now, Transaction: e.tx.Clone(), From: failedAt, To: transaction.StageFailed})}, q.trimCompleted(now)...)
	q.mu.Unlock()

	q.notify(events...)
	return true
}

// Cancel withdraws a pending transaction. Cancelled transactions are not
// counted as failures.
func (q *Queue) Cancel(id, reason string) bool {
	now := q.now()

	q.mu.Lock()
	e, ok := q.arena[id]
	if !ok || e.loc != locPending {
		q.mu.Unlock()
		q.logUnknown("cancel", id)
		return false
	}
	e.tx.Status = transaction.StatusCancelled
	e.tx.Record(now, transaction.EventCancelled, map[string]any{"reason": reason})
	q.finish(e, now)
	q.totals.cancelled++
	events := append([]Event{q.stamp(Event{Kind: EventCancelled, At: now, Transaction: e.tx.Clone()})}, q.trimCompleted(now)...)
	q.mu.Unlock()

	q.notify(events...)
	return true
}

// finish moves e into the completed index. Callers hold q.mu.
func (q *Queue) finish(e *entry, now time.Time) {
	switch e.loc {
	case locPending:
		q.pending.remove(e)
	case locProcessing:
		delete(q.processing, e.tx.ID)
	}
	for stage, ids := range q.byStage {
		if _, ok := ids[e.tx.ID]; ok {
			q.unindexStage(e.tx.ID, stage)
		}
	}
	done := now
	e.tx.CompletedAt = &done
	e.loc = locCompleted
	e.doneElem = q.completed.PushBack(e.tx.ID)
}

func (q *Queue) observeDuration(tx *transaction.Transaction) {
	q.totals.resolved++
	d := tx.ProcessingDuration().Seconds()
	q.totals.avgTime += (d - q.totals.avgTime) / float64(q.totals.resolved)
}

func (q *Queue) indexStage(id string, stage transaction.Stage) {
	ids, ok := q.byStage[stage]
	if !ok {
		ids = make(map[string]struct{})
		q.byStage[stage] = ids
	}
	ids[id] = struct{}{}
}

func (q *Queue) unindexStage(id string, stage transaction.Stage) {
	ids, ok := q.byStage[stage]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(q.byStage, stage)
	}
}

func (q *Queue) logUnknown(op, id string) {
	logging.WarnWithContext(q.logger, "operation on unknown or inactive transaction ignored", "queue_unknown_transaction",
		logging.String("operation", op),
		logging.String(logging.FieldTransactionID, id),
		logging.String(logging.FieldErrorHint, "transaction may have finished, been evicted, or never been admitted"),
		logging.String(logging.FieldImpact, "no queue state changed"),
	)
}

// Annotate appends a processing history entry to a live transaction without
// changing its stage or location.
func (q *Queue) Annotate(id, event string, detail map[string]any) bool {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.arena[id]
	if !ok || e.loc == locCompleted {
		return false
	}
	e.tx.Record(now, event, detail)
	return true
}
