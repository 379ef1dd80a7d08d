package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/transaction"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OnQueueEvent implements queue.Observer. Write failures are logged; the
// in-memory queue stays authoritative.
func (s *Store) OnQueueEvent(evt queue.Event) {
	if err := s.Apply(context.Background(), evt); err != nil {
		logging.WarnWithContext(s.logger, "journal write failed", "journal_write_failed",
			logging.String("queue_event", string(evt.Kind)),
			logging.String(logging.FieldTransactionID, transactionID(evt)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check disk space and permissions on the data directory"),
			logging.String(logging.FieldImpact, "transaction history may be incomplete after restart"),
		)
	}
}

// Apply records one queue event. Events may arrive out of order; the
// transaction row only moves forward to a snapshot with a higher Seq.
func (s *Store) Apply(ctx context.Context, evt queue.Event) error {
	tx := evt.Transaction
	if tx == nil {
		return nil
	}
	if evt.Kind == queue.EventEvicted {
		return s.exec(ctx, `UPDATE transactions SET evicted = 1, updated_at = ? WHERE id = ?`,
			formatTime(evt.At), tx.ID)
	}
	if err := s.upsert(ctx, tx, evt.Seq, evt.At); err != nil {
		return err
	}
	switch evt.Kind {
	case queue.EventStageChanged, queue.EventFailed:
		if err := s.exec(ctx,
			`INSERT INTO stage_transitions (transaction_id, from_stage, to_stage, at, seq) VALUES (?, ?, ?, ?, ?)`,
			tx.ID, string(evt.From), string(evt.To), formatTime(evt.At), int64(evt.Seq),
		); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
	case queue.EventCompleted:
		transitions := tx.Transitions()
		if n := len(transitions); n > 0 && transitions[n-1].To == transaction.StageCompleted {
			last := transitions[n-1]
			if err := s.exec(ctx,
				`INSERT INTO stage_transitions (transaction_id, from_stage, to_stage, at, seq) VALUES (?, ?, ?, ?, ?)`,
				tx.ID, string(last.From), string(last.To), formatTime(evt.At), int64(evt.Seq),
			); err != nil {
				return fmt.Errorf("record transition: %w", err)
			}
		}
	}
	if evt.Kind == queue.EventFailed && len(tx.ErrorHistory) > 0 {
		entry := tx.ErrorHistory[len(tx.ErrorHistory)-1]
		if err := s.exec(ctx,
			`INSERT INTO transaction_errors (transaction_id, stage, message, at) VALUES (?, ?, ?, ?)`,
			tx.ID, string(entry.Stage), entry.Message, formatTime(entry.At),
		); err != nil {
			return fmt.Errorf("record error: %w", err)
		}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, tx *transaction.Transaction, seq uint64, at time.Time) error {
	record, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	err = s.exec(ctx, `
INSERT INTO transactions (
    id, type, priority, status, stage, complexity, document_id, signature_request_id,
    created_at, started_at, completed_at, updated_at, seq, record_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    priority = excluded.priority,
    status = excluded.status,
    stage = excluded.stage,
    document_id = excluded.document_id,
    signature_request_id = excluded.signature_request_id,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at,
    updated_at = excluded.updated_at,
    seq = excluded.seq,
    record_json = excluded.record_json
WHERE excluded.seq > transactions.seq`,
		tx.ID,
		string(tx.Type),
		int(tx.Priority),
		string(tx.Status),
		string(tx.Stage),
		tx.ComplexityScore,
		nullString(tx.DocumentID),
		nullString(tx.SignatureRequestID),
		formatTime(tx.CreatedAt),
		formatTimePtr(tx.StartedAt),
		formatTimePtr(tx.CompletedAt),
		formatTime(at),
		int64(seq),
		string(record),
	)
	if err != nil {
		return fmt.Errorf("upsert transaction: %w", err)
	}
	return nil
}

func transactionID(evt queue.Event) string {
	if evt.Transaction == nil {
		return ""
	}
	return evt.Transaction.ID
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
