package queue

import (
	"time"

	"docflow/internal/transaction"
)

// Stats is a point-in-time copy of queue sizes and aggregates.
type Stats struct {
	Pending               int                       `json:"pending"`
	Processing            int                       `json:"processing"`
	Completed             int                       `json:"completed"`
	MaxSize               int                       `json:"max_size"`
	Utilization           float64                   `json:"utilization"`
	TotalAdmitted         int64                     `json:"total_admitted"`
	TotalRejected         int64                     `json:"total_rejected"`
	TotalProcessed        int64                     `json:"total_processed"`
	TotalFailed           int64                     `json:"total_failed"`
	TotalCancelled        int64                     `json:"total_cancelled"`
	TotalEvicted          int64                     `json:"total_evicted"`
	AverageProcessingTime time.Duration             `json:"average_processing_time"`
	CompletionRate        float64                   `json:"completion_rate"`
	ErrorRate             float64                   `json:"error_rate"`
	StageCounts           map[transaction.Stage]int `json:"stage_counts"`
}

// Stats copies sizes and aggregates under the queue lock.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Pending:               q.pending.Len(),
		Processing:            len(q.processing),
		Completed:             q.completed.Len(),
		MaxSize:               q.opts.MaxSize,
		TotalAdmitted:         q.totals.admitted,
		TotalRejected:         q.totals.rejected,
		TotalProcessed:        q.totals.processed,
		TotalFailed:           q.totals.failed,
		TotalCancelled:        q.totals.cancelled,
		TotalEvicted:          q.totals.evicted,
		AverageProcessingTime: time.Duration(q.totals.avgTime * float64(time.Second)),
		StageCounts:           make(map[transaction.Stage]int, len(q.byStage)),
	}
	stats.Utilization = float64(stats.Pending+stats.Processing) / float64(stats.MaxSize)
	if finished := q.totals.processed + q.totals.failed; finished > 0 {
		stats.CompletionRate = float64(q.totals.processed) / float64(finished)
		stats.ErrorRate = float64(q.totals.failed) / float64(finished)
	}
	for stage, ids := range q.byStage {
		stats.StageCounts[stage] = len(ids)
	}
	return stats
}

// AverageProcessingSeconds returns the running mean processing time in seconds
// without rounding through time.Duration.
func (q *Queue) AverageProcessingSeconds() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totals.avgTime
}

// Len returns pending plus processing transactions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len() + len(q.processing)
}
