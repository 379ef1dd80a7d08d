// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docflow/internal/queue"
	"docflow/internal/workflow"
)

const namespace = "docflow"

// StatusSource provides the snapshot the gauge collector reads at scrape time.
type StatusSource interface {
	Status(ctx context.Context) workflow.StatusSummary
}

// Collector records queue events and serves scrapes from its own registry.
type Collector struct {
	registry *prometheus.Registry

	queueEvents    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	waitTime       prometheus.Histogram
	processingTime *prometheus.HistogramVec
	alerts         *prometheus.CounterVec
	callbackEvents *prometheus.CounterVec
}

// New builds a collector. When source is non-nil, queue and coordinator
// gauges are read from it on every scrape.
func New(source StatusSource) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_events_total",
			Help:      "Structural queue mutations by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage moves by source and target stage.",
		}, []string{"from", "to"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_finished_total",
			Help:      "Transactions that left the queue by outcome.",
		}, []string{"outcome", "type"}),
		waitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Time between admission and the start of processing.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time between the start of processing and a terminal outcome.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "performance_alerts_total",
			Help:      "Threshold breaches raised by the metrics loop.",
		}, []string{"alert_type"}),
		callbackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events fired by the coordinator.",
		}, []string{"event"}),
	}
	c.registry.MustRegister(
		c.queueEvents,
		c.transitions,
		c.outcomes,
		c.waitTime,
		c.processingTime,
		c.alerts,
		c.callbackEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if source != nil {
		c.registry.MustRegister(newStatusCollector(source))
	}
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// OnQueueEvent implements queue.Observer.
func (c *Collector) OnQueueEvent(evt queue.Event) {
	c.queueEvents.WithLabelValues(string(evt.Kind)).Inc()
	tx := evt.Transaction
	if tx == nil {
		return
	}
	switch evt.Kind {
	case queue.EventPopped:
		if tx.StartedAt != nil {
			c.waitTime.Observe(tx.StartedAt.Sub(tx.CreatedAt).Seconds())
		}
	case queue.EventStageChanged:
		c.transitions.WithLabelValues(string(evt.From), string(evt.To)).Inc()
	case queue.EventCompleted, queue.EventFailed, queue.EventCancelled:
		outcome := string(evt.Kind)
		c.outcomes.WithLabelValues(outcome, string(tx.Type)).Inc()
		if evt.Kind == queue.EventFailed {
			c.transitions.WithLabelValues(string(evt.From), string(evt.To)).Inc()
		}
		if d := tx.ProcessingDuration(); d > 0 {
			c.processingTime.WithLabelValues(outcome).Observe(d.Seconds())
		}
	}
}

// Subscribe counts every lifecycle event and alert raised by co.
func (c *Collector) Subscribe(co *workflow.Coordinator) error {
	for _, name := range []workflow.EventName{
		workflow.EventTransactionReceived,
		workflow.EventDocumentGenerated,
		workflow.EventDocumentStored,
		workflow.EventSignatureRequested,
		workflow.EventSignatureCompleted,
		workflow.EventWorkflowCompleted,
		workflow.EventWorkflowFailed,
		workflow.EventTransactionCancelled,
		workflow.EventPerformanceAlert,
	} {
		if err := co.RegisterCallback(name, c.onLifecycleEvent); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) onLifecycleEvent(_ context.Context, evt workflow.Event) error {
	c.callbackEvents.WithLabelValues(string(evt.Name)).Inc()
	if evt.Name == workflow.EventPerformanceAlert {
		if alertType, ok := evt.Data["alert_type"].(string); ok {
			c.alerts.WithLabelValues(alertType).Inc()
		}
	}
	return nil
}
