package transaction

import (
	"maps"
	"time"
)

// Transition records a single stage move.
type Transition struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

// HistoryEntry is one append-only processing log record.
type HistoryEntry struct {
	At     time.Time      `json:"at"`
	Event  string         `json:"event"`
	From   Stage          `json:"from,omitempty"`
	To     Stage          `json:"to,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// ErrorEntry is one append-only failure record.
type ErrorEntry struct {
	At      time.Time      `json:"at"`
	Stage   Stage          `json:"stage"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// History event names.
const (
	EventAdmitted     = "admitted"
	EventEscalated    = "priority_escalated"
	EventStarted      = "processing_started"
	EventStageChanged = "stage_changed"
	EventRetry        = "stage_retry"
	EventCompleted    = "completed"
	EventFailed       = "failed"
	EventCancelled    = "cancelled"
)

// Transaction is the unit of work moving through the pipeline.
type Transaction struct {
	ID                      string         `json:"id"`
	Type                    Type           `json:"type"`
	Priority                Priority       `json:"priority"`
	Status                  Status         `json:"status"`
	Stage                   Stage          `json:"workflow_stage"`
	Payload                 map[string]any `json:"domain_payload,omitempty"`
	Context                 map[string]any `json:"processing_context,omitempty"`
	ComplexityScore         float64        `json:"complexity_score"`
	EstimatedProcessingTime time.Duration  `json:"estimated_processing_time"`
	CreatedAt               time.Time      `json:"created_at"`
	StartedAt               *time.Time     `json:"started_at,omitempty"`
	CompletedAt             *time.Time     `json:"completed_at,omitempty"`
	DocumentID              string         `json:"document_id,omitempty"`
	SignatureRequestID      string         `json:"signature_request_id,omitempty"`
	ParentID                string         `json:"parent_id,omitempty"`
	ChildIDs                []string       `json:"child_ids,omitempty"`
	DependencyIDs           []string       `json:"dependency_ids,omitempty"`
	ProcessingHistory       []HistoryEntry `json:"processing_history,omitempty"`
	ErrorHistory            []ErrorEntry   `json:"error_history,omitempty"`
}

// Clone returns a copy that shares no slices or top-level maps with t.
// Nested map values inside Payload and Context are shared.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Payload = maps.Clone(t.Payload)
	cp.Context = maps.Clone(t.Context)
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	cp.ChildIDs = append([]string(nil), t.ChildIDs...)
	cp.DependencyIDs = append([]string(nil), t.DependencyIDs...)
	cp.ProcessingHistory = make([]HistoryEntry, len(t.ProcessingHistory))
	for i, entry := range t.ProcessingHistory {
		entry.Detail = maps.Clone(entry.Detail)
		cp.ProcessingHistory[i] = entry
	}
	cp.ErrorHistory = make([]ErrorEntry, len(t.ErrorHistory))
	for i, entry := range t.ErrorHistory {
		entry.Details = maps.Clone(entry.Details)
		cp.ErrorHistory[i] = entry
	}
	return &cp
}

// Record appends a processing history entry.
func (t *Transaction) Record(at time.Time, event string, detail map[string]any) {
	t.ProcessingHistory = append(t.ProcessingHistory, HistoryEntry{At: at, Event: event, Detail: detail})
}

// RecordTransition appends a stage transition entry and moves the stage.
// Callers validate the move with CanTransition first.
func (t *Transaction) RecordTransition(at time.Time, to Stage, detail map[string]any) {
	t.ProcessingHistory = append(t.ProcessingHistory, HistoryEntry{
		At:     at,
		Event:  EventStageChanged,
		From:   t.Stage,
		To:     to,
		Detail: detail,
	})
	t.Stage = to
}

// RecordError appends an error history entry.
func (t *Transaction) RecordError(at time.Time, stage Stage, message string, details map[string]any) {
	t.ErrorHistory = append(t.ErrorHistory, ErrorEntry{At: at, Stage: stage, Message: message, Details: details})
}

// Transitions returns the recorded stage moves in order.
func (t *Transaction) Transitions() []Transition {
	var out []Transition
	for _, entry := range t.ProcessingHistory {
		if entry.Event != EventStageChanged {
			continue
		}
		out = append(out, Transition{From: entry.From, To: entry.To})
	}
	return out
}

// MergeContext copies result data into the processing context.
func (t *Transaction) MergeContext(data map[string]any) {
	if len(data) == 0 {
		return
	}
	if t.Context == nil {
		t.Context = make(map[string]any, len(data))
	}
	maps.Copy(t.Context, data)
}

// ProcessingDuration returns the time spent between start and completion.
func (t *Transaction) ProcessingDuration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	d := t.CompletedAt.Sub(*t.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// SortKeyLess reports whether a should be released before b: priority
// ascending, complexity descending, then oldest first.
func SortKeyLess(a, b *Transaction) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.ComplexityScore != b.ComplexityScore {
		return a.ComplexityScore > b.ComplexityScore
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// New builds a pending transaction at the initial stage with priority and
// complexity derived from the payload. Escalation is applied later, at admission.
func New(id string, typ Type, requested Priority, payload map[string]any, now time.Time) *Transaction {
	if typ == "" {
		typ = TypeGeneric
	}
	complexity := ComputeComplexity(typ, payload)
	return &Transaction{
		ID:                      id,
		Type:                    typ,
		Priority:                ComputePriority(requested, payload),
		Status:                  StatusPending,
		Stage:                   StageInitial,
		Payload:                 maps.Clone(payload),
		Context:                 make(map[string]any),
		ComplexityScore:         complexity,
		EstimatedProcessingTime: EstimateProcessingTime(complexity),
		CreatedAt:               now,
	}
}
