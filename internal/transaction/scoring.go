package transaction

import (
	"math"
	"strings"
	"time"
)

// Payload keys the scoring functions understand.
const (
	FieldPriority    = "priority"
	FieldVIP         = "vip"
	FieldHighValue   = "high_value"
	FieldDealValue   = "deal_value"
	FieldDeadline    = "deadline"
	FieldSigners     = "signers"
	FieldAttachments = "attachments"
	FieldCustomTerms = "custom_terms"
)

const (
	MinComplexity = 0.0
	MaxComplexity = 10.0
)

var baseComplexity = map[Type]float64{
	TypeLetterOfIntent:    4.0,
	TypeAuthorizationForm: 2.0,
	TypeAmendment:         3.0,
	TypeGeneric:           3.0,
}

// EscalationRules configure automatic priority escalation at admission.
type EscalationRules struct {
	// HighValueThreshold escalates to high when deal_value meets it. Zero disables.
	HighValueThreshold float64
	// DeadlineHorizon escalates to urgent when the deadline falls within it. Zero disables.
	DeadlineHorizon time.Duration
}

// ComputePriority derives the requested priority for a submission. An explicit
// payload priority wins over the caller's request; invalid values fall back to normal.
func ComputePriority(requested Priority, payload map[string]any) Priority {
	if raw, ok := payload[FieldPriority].(string); ok {
		if p, ok := ParsePriority(raw); ok {
			return p
		}
	}
	if requested.Valid() {
		return requested
	}
	return PriorityNormal
}

// ComputeComplexity scores the expected effort of a submission in [0,10].
func ComputeComplexity(typ Type, payload map[string]any) float64 {
	score, ok := baseComplexity[typ]
	if !ok {
		score = baseComplexity[TypeGeneric]
	}
	if signers := countField(payload, FieldSigners); signers > 1 {
		score += 0.5 * float64(signers-1)
	}
	score += 0.5 * float64(countField(payload, FieldAttachments))
	if terms, ok := payload[FieldCustomTerms].(string); ok && strings.TrimSpace(terms) != "" {
		score += 1.0
	}
	if value, ok := floatField(payload, FieldDealValue); ok {
		switch {
		case value >= 1_000_000:
			score += 1.5
		case value >= 100_000:
			score += 0.75
		}
	}
	return ClampComplexity(score)
}

// ClampComplexity bounds a score to [0,10]; NaN maps to zero.
func ClampComplexity(score float64) float64 {
	if math.IsNaN(score) {
		return MinComplexity
	}
	return math.Max(MinComplexity, math.Min(MaxComplexity, score))
}

// EstimateProcessingTime derives an expected duration from complexity.
func EstimateProcessingTime(complexity float64) time.Duration {
	complexity = ClampComplexity(complexity)
	return 30*time.Second + time.Duration(complexity*12*float64(time.Second))
}

// AdjustPriority applies the escalation rules to current. It only ever returns
// a priority at least as urgent as current, and applying it twice yields the
// same result.
func AdjustPriority(current Priority, payload map[string]any, rules EscalationRules, now time.Time) Priority {
	adjusted := current
	if !adjusted.Valid() {
		adjusted = PriorityNormal
	}
	if isHighValue(payload, rules) && adjusted > PriorityHigh {
		adjusted = PriorityHigh
	}
	if rules.DeadlineHorizon > 0 {
		if deadline, ok := timeField(payload, FieldDeadline); ok && deadline.Sub(now) <= rules.DeadlineHorizon {
			adjusted = PriorityUrgent
		}
	}
	return adjusted
}

func isHighValue(payload map[string]any, rules EscalationRules) bool {
	if boolField(payload, FieldVIP) || boolField(payload, FieldHighValue) {
		return true
	}
	if rules.HighValueThreshold > 0 {
		if value, ok := floatField(payload, FieldDealValue); ok && value >= rules.HighValueThreshold {
			return true
		}
	}
	return false
}

func boolField(payload map[string]any, key string) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

func floatField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func countField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case []map[string]any:
		return len(v)
	default:
		if n, ok := floatField(payload, key); ok && n > 0 {
			return int(n)
		}
		return 0
	}
}

func timeField(payload map[string]any, key string) (time.Time, bool) {
	switch v := payload[key].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
