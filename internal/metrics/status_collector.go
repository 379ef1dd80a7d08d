package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const scrapeTimeout = 5 * time.Second

var (
	descQueueSize = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "transactions"),
		"Transactions currently held by the queue, by location.",
		[]string{"location"}, nil)
	descQueueUtilization = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "utilization_ratio"),
		"Pending plus processing transactions over the configured maximum.",
		nil, nil)
	descStageCount = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "stage_transactions"),
		"Live transactions parked at or moving through each stage.",
		[]string{"stage"}, nil)
	descAverageProcessing = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "average_processing_seconds"),
		"Running mean processing time of finished transactions.",
		nil, nil)
	descConversionRate = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "signature_conversion_ratio"),
		"Completed signatures over requested signatures.",
		nil, nil)
	descErrorRate = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "workflow_error_ratio"),
		"Failed workflows over finished workflows.",
		nil, nil)
	descRunning = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "coordinator_running"),
		"Whether the coordinator loops are active.",
		[]string{"engine_id"}, nil)
	descHandlerReady = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "handler_ready"),
		"Readiness reported by handlers that implement health checks.",
		[]string{"handler"}, nil)
)

// statusCollector turns a coordinator snapshot into gauges at scrape time.
type statusCollector struct {
	source StatusSource
}

func newStatusCollector(source StatusSource) *statusCollector {
	return &statusCollector{source: source}
}

func (s *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descQueueSize
	ch <- descQueueUtilization
	ch <- descStageCount
	ch <- descAverageProcessing
	ch <- descConversionRate
	ch <- descErrorRate
	ch <- descRunning
	ch <- descHandlerReady
}

func (s *statusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()
	status := s.source.Status(ctx)

	q := status.Queue
	ch <- prometheus.MustNewConstMetric(descQueueSize, prometheus.GaugeValue, float64(q.Pending), "pending")
	ch <- prometheus.MustNewConstMetric(descQueueSize, prometheus.GaugeValue, float64(q.Processing), "processing")
	ch <- prometheus.MustNewConstMetric(descQueueSize, prometheus.GaugeValue, float64(q.Completed), "completed")
	ch <- prometheus.MustNewConstMetric(descQueueUtilization, prometheus.GaugeValue, q.Utilization)
	ch <- prometheus.MustNewConstMetric(descAverageProcessing, prometheus.GaugeValue, q.AverageProcessingTime.Seconds())
	for st, count := range q.StageCounts {
		ch <- prometheus.MustNewConstMetric(descStageCount, prometheus.GaugeValue, float64(count), string(st))
	}
	ch <- prometheus.MustNewConstMetric(descConversionRate, prometheus.GaugeValue, status.Metrics.ConversionRate)
	ch <- prometheus.MustNewConstMetric(descErrorRate, prometheus.GaugeValue, status.Metrics.ErrorRate)
	ch <- prometheus.MustNewConstMetric(descRunning, prometheus.GaugeValue, boolGauge(status.Running), status.EngineID)
	for name, health := range status.StageHealth {
		ch <- prometheus.MustNewConstMetric(descHandlerReady, prometheus.GaugeValue, boolGauge(health.Ready), name)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
