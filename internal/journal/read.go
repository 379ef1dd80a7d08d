package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docflow/internal/transaction"
)

// Summary is one row of a journal listing.
type Summary struct {
	ID                 string               `json:"id"`
	Type               transaction.Type     `json:"type"`
	Priority           transaction.Priority `json:"priority"`
	Status             transaction.Status   `json:"status"`
	Stage              transaction.Stage    `json:"workflow_stage"`
	DocumentID         string               `json:"document_id,omitempty"`
	SignatureRequestID string               `json:"signature_request_id,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	Evicted            bool                 `json:"evicted"`
}

// StageTransition is one persisted stage move.
type StageTransition struct {
	From transaction.Stage `json:"from"`
	To   transaction.Stage `json:"to"`
	At   time.Time         `json:"at"`
}

// Get returns the last recorded snapshot of a transaction.
func (s *Store) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM transactions WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	var tx transaction.Transaction
	if err := json.Unmarshal([]byte(record), &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	return &tx, nil
}

// List returns the most recently updated transactions, optionally filtered
// by status. A non-positive limit defaults to 50.
func (s *Store) List(ctx context.Context, limit int, statuses ...transaction.Status) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, type, priority, status, stage, document_id, signature_request_id, created_at, updated_at, evicted FROM transactions`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + repeatPlaceholders(len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY updated_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary     Summary
			documentID  sql.NullString
			signatureID sql.NullString
			createdRaw  string
			updatedRaw  string
			evicted     int
		)
		if err := rows.Scan(&summary.ID, &summary.Type, &summary.Priority, &summary.Status, &summary.Stage,
			&documentID, &signatureID, &createdRaw, &updatedRaw, &evicted); err != nil {
			return nil, err
		}
		summary.DocumentID = documentID.String
		summary.SignatureRequestID = signatureID.String
		summary.CreatedAt = parseTime(createdRaw)
		summary.UpdatedAt = parseTime(updatedRaw)
		summary.Evicted = evicted != 0
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Transitions returns the persisted stage moves for id in order.
func (s *Store) Transitions(ctx context.Context, id string) ([]StageTransition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_stage, to_stage, at FROM stage_transitions WHERE transaction_id = ? ORDER BY seq, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []StageTransition
	for rows.Next() {
		var (
			st    StageTransition
			atRaw string
		)
		if err := rows.Scan(&st.From, &st.To, &atRaw); err != nil {
			return nil, err
		}
		st.At = parseTime(atRaw)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Stats returns transaction counts grouped by status.
func (s *Store) Stats(ctx context.Context) (map[transaction.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[transaction.Status]int)
	for rows.Next() {
		var status transaction.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Prune deletes finished transactions last updated before cutoff. Cascades
// remove their transitions and errors.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM transactions WHERE status IN (?, ?, ?) AND updated_at < ?`,
			string(transaction.StatusCompleted), string(transaction.StatusFailed), string(transaction.StatusCancelled),
			cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return affected, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func repeatPlaceholders(n int) string {
	out := make([]byte, 0, n*3)
	for range n {
		out = append(out, ", ?"...)
	}
	return string(out)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
