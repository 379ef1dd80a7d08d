package workflow

import (
	"context"
	"time"

	"docflow/internal/logging"
	"docflow/internal/queue"
)

// Metrics aggregates coordinator counters. Rates are recomputed by
// RefreshMetrics.
type Metrics struct {
	TransactionsReceived  int64     `json:"transactions_received"`
	DocumentsGenerated    int64     `json:"documents_generated"`
	DocumentsStored       int64     `json:"documents_stored"`
	SignaturesRequested   int64     `json:"signatures_requested"`
	SignaturesCompleted   int64     `json:"signatures_completed"`
	WorkflowsCompleted    int64     `json:"workflows_completed"`
	WorkflowsFailed       int64     `json:"workflows_failed"`
	TransactionsCancelled int64     `json:"transactions_cancelled"`
	ConversionRate        float64   `json:"conversion_rate"`
	ErrorRate             float64   `json:"error_rate"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Alert types raised by the metrics loop.
const (
	AlertQueueUtilization  = "queue_utilization"
	AlertLowConversionRate = "low_conversion_rate"
	AlertHighErrorRate     = "high_error_rate"
)

// Alert is one threshold breach.
type Alert struct {
	Type      string    `json:"alert_type"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

func (c *Coordinator) bump(fn func(*Metrics)) {
	c.metricsMu.Lock()
	fn(&c.metrics)
	c.metricsMu.Unlock()
}

// MetricsSnapshot returns a copy of the current counters.
func (c *Coordinator) MetricsSnapshot() Metrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.metrics
}

// RefreshMetrics sweeps expired completed records, recomputes conversion and
// error rates, and fires performance_alert for every threshold breached.
// Alerts are observational and never throttle admission.
func (c *Coordinator) RefreshMetrics(ctx context.Context) []Alert {
	evicted := c.queue.Sweep()
	stats := c.queue.Stats()
	now := c.now()

	c.metricsMu.Lock()
	m := &c.metrics
	if m.SignaturesRequested > 0 {
		m.ConversionRate = float64(m.SignaturesCompleted) / float64(m.SignaturesRequested)
	}
	if resolved := m.WorkflowsCompleted + m.WorkflowsFailed; resolved > 0 {
		m.ErrorRate = float64(m.WorkflowsFailed) / float64(resolved)
	}
	m.UpdatedAt = now
	snapshot := *m
	c.metricsMu.Unlock()

	alerts := evaluateAlerts(snapshot, stats, c.cfg.Alerts, now)
	c.metricsMu.Lock()
	c.alerts = alerts
	c.metricsMu.Unlock()

	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("metrics refreshed",
		logging.Float64("conversion_rate", snapshot.ConversionRate),
		logging.Float64("error_rate", snapshot.ErrorRate),
		logging.Float64("queue_utilization", stats.Utilization),
		logging.Int("evicted", evicted),
	)
	for _, alert := range alerts {
		logging.WarnWithContext(logger, "performance threshold breached", "performance_alert",
			logging.Alert(alert.Type),
			logging.Float64("value", alert.Value),
			logging.Float64("threshold", alert.Threshold),
			logging.String(logging.FieldErrorHint, alertHint(alert.Type)),
			logging.String(logging.FieldImpact, "processing continues; admission is not throttled"),
		)
		c.emit(ctx, Event{
			Name: EventPerformanceAlert,
			At:   now,
			Data: map[string]any{
				"alert_type": alert.Type,
				"value":      alert.Value,
				"threshold":  alert.Threshold,
			},
		})
	}
	return alerts
}

// ActiveAlerts returns the alerts raised by the latest refresh.
func (c *Coordinator) ActiveAlerts() []Alert {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

func evaluateAlerts(m Metrics, stats queue.Stats, thresholds AlertThresholds, now time.Time) []Alert {
	var alerts []Alert
	if thresholds.QueueUtilization > 0 && stats.Utilization > thresholds.QueueUtilization {
		alerts = append(alerts, Alert{Type: AlertQueueUtilization, Value: stats.Utilization, Threshold: thresholds.QueueUtilization, At: now})
	}
	sample := max(int64(thresholds.MinConversionSample), 1)
	if thresholds.MinConversionRate > 0 && m.SignaturesRequested >= sample && m.ConversionRate < thresholds.MinConversionRate {
		alerts = append(alerts, Alert{Type: AlertLowConversionRate, Value: m.ConversionRate, Threshold: thresholds.MinConversionRate, At: now})
	}
	if thresholds.MaxErrorRate > 0 && m.WorkflowsCompleted+m.WorkflowsFailed > 0 && m.ErrorRate > thresholds.MaxErrorRate {
		alerts = append(alerts, Alert{Type: AlertHighErrorRate, Value: m.ErrorRate, Threshold: thresholds.MaxErrorRate, At: now})
	}
	return alerts
}

func alertHint(alertType string) string {
	switch alertType {
	case AlertQueueUtilization:
		return "queue is nearly full; add capacity or slow submissions"
	case AlertLowConversionRate:
		return "many signature requests are not completing; check the signature provider"
	case AlertHighErrorRate:
		return "inspect recent workflow_failed events for a common stage"
	default:
		return "check engine metrics"
	}
}
