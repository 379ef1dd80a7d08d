package transaction_test

import (
	"testing"
	"time"

	"docflow/internal/transaction"
)

func TestAdjustPriorityEscalatesVIP(t *testing.T) {
	now := time.Now()
	rules := transaction.EscalationRules{}
	for _, requested := range []transaction.Priority{transaction.PriorityNormal, transaction.PriorityLow, transaction.PriorityBackground} {
		got := transaction.AdjustPriority(requested, map[string]any{"vip": true}, rules, now)
		if got > transaction.PriorityHigh {
			t.Fatalf("requested %s: expected at most high, got %s", requested, got)
		}
	}
}

func TestAdjustPriorityNeverDeescalates(t *testing.T) {
	now := time.Now()
	got := transaction.AdjustPriority(transaction.PriorityUrgent, map[string]any{"vip": true}, transaction.EscalationRules{}, now)
	if got != transaction.PriorityUrgent {
		t.Fatalf("expected urgent to be preserved, got %s", got)
	}
	got = transaction.AdjustPriority(transaction.PriorityLow, map[string]any{}, transaction.EscalationRules{}, now)
	if got != transaction.PriorityLow {
		t.Fatalf("expected low without flags, got %s", got)
	}
}

func TestAdjustPriorityIsIdempotent(t *testing.T) {
	now := time.Now()
	rules := transaction.EscalationRules{HighValueThreshold: 500_000, DeadlineHorizon: 48 * time.Hour}
	payload := map[string]any{"deal_value": 750_000.0}
	once := transaction.AdjustPriority(transaction.PriorityLow, payload, rules, now)
	twice := transaction.AdjustPriority(once, payload, rules, now)
	if once != transaction.PriorityHigh || twice != once {
		t.Fatalf("expected stable high, got %s then %s", once, twice)
	}
}

func TestAdjustPriorityDeadlineWithinHorizon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rules := transaction.EscalationRules{DeadlineHorizon: 48 * time.Hour}

	soon := map[string]any{"vip": true, "deadline": now.Add(24 * time.Hour).Format(time.RFC3339)}
	if got := transaction.AdjustPriority(transaction.PriorityNormal, soon, rules, now); got != transaction.PriorityUrgent {
		t.Fatalf("expected urgent for near deadline, got %s", got)
	}
	later := map[string]any{"deadline": now.Add(96 * time.Hour).Format(time.RFC3339)}
	if got := transaction.AdjustPriority(transaction.PriorityNormal, later, rules, now); got != transaction.PriorityNormal {
		t.Fatalf("expected normal for distant deadline, got %s", got)
	}
}

func TestComputeComplexityClamped(t *testing.T) {
	payload := map[string]any{
		"signers":      make([]any, 30),
		"attachments":  12,
		"custom_terms": "exclusivity clause",
		"deal_value":   5_000_000.0,
	}
	score := transaction.ComputeComplexity(transaction.TypeLetterOfIntent, payload)
	if score != transaction.MaxComplexity {
		t.Fatalf("expected clamp to %v, got %v", transaction.MaxComplexity, score)
	}
	if score := transaction.ComputeComplexity(transaction.TypeAuthorizationForm, nil); score != 2.0 {
		t.Fatalf("expected base authorization score 2.0, got %v", score)
	}
}

func TestComputePriorityPayloadOverride(t *testing.T) {
	got := transaction.ComputePriority(transaction.PriorityLow, map[string]any{"priority": "URGENT"})
	if got != transaction.PriorityUrgent {
		t.Fatalf("expected payload priority to win, got %s", got)
	}
	if got := transaction.ComputePriority(0, nil); got != transaction.PriorityNormal {
		t.Fatalf("expected normal fallback, got %s", got)
	}
}

func TestStageGraph(t *testing.T) {
	cases := []struct {
		from, to transaction.Stage
		want     bool
	}{
		{transaction.StageInitial, transaction.StageDataRetrieved, true},
		{transaction.StageInitial, transaction.StageStored, true},
		{transaction.StageStored, transaction.StageDataRetrieved, false},
		{transaction.StageStored, transaction.StageStored, false},
		{transaction.StageSignatureRequested, transaction.StageFailed, true},
		{transaction.StageCompleted, transaction.StageFailed, false},
		{transaction.StageFailed, transaction.StageInitial, false},
	}
	for _, tc := range cases {
		if got := transaction.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	next, ok := transaction.StageStored.Next()
	if !ok || next != transaction.StageSignatureRequested {
		t.Fatalf("unexpected next stage after stored: %s %v", next, ok)
	}
	if _, ok := transaction.StageCompleted.Next(); ok {
		t.Fatal("expected no stage after completed")
	}
}

func TestCloneDoesNotShareHistory(t *testing.T) {
	tx := transaction.New("tx-1", transaction.TypeLetterOfIntent, transaction.PriorityNormal, map[string]any{"a": 1}, time.Now())
	tx.RecordTransition(time.Now(), transaction.StageDataRetrieved, nil)

	cp := tx.Clone()
	cp.RecordTransition(time.Now(), transaction.StageDocumentGenerated, nil)
	cp.Payload["a"] = 2

	if len(tx.Transitions()) != 1 {
		t.Fatalf("expected original history untouched, got %v", tx.Transitions())
	}
	if tx.Payload["a"] != 1 {
		t.Fatalf("expected original payload untouched, got %v", tx.Payload["a"])
	}
}
