package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/stage"
	"docflow/internal/transaction"
)

// Coordinator drives admitted transactions through registered stage handlers.
type Coordinator struct {
	cfg    Config
	queue  *queue.Queue
	logger *slog.Logger
	now    func() time.Time

	regMu        sync.RWMutex
	stages       map[transaction.Stage]stage.StageHandler
	integrations map[string]stage.IntegrationHandler
	callbacks    map[EventName][]Callback

	metricsMu sync.Mutex
	metrics   Metrics
	alerts    []Alert

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	loops   []runningLoop
	lastErr error
}

// Option configures optional Coordinator behavior.
type Option func(*options)

type options struct {
	now       func() time.Time
	observers []queue.Observer
}

// WithClock overrides the clock used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithQueueObserver subscribes obs to queue mutations from construction on,
// so it sees every admission.
func WithQueueObserver(obs queue.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// New constructs a stopped coordinator with an empty queue and registry.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Coordinator {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	now := o.now
	if now == nil {
		now = time.Now
	}
	cfg.normalize()
	if logger == nil {
		logger = logging.NewNop()
	}
	q := queue.New(queue.Options{
		MaxSize:      cfg.MaxQueueSize,
		MaxCompleted: cfg.MaxCompleted,
		CompletedTTL: cfg.CompletedTTL,
		Escalation:   cfg.Escalation,
		Logger:       logger,
		Now:          now,
	})
	for _, obs := range o.observers {
		q.AddObserver(obs)
	}
	return &Coordinator{
		cfg:          cfg,
		queue:        q,
		logger:       logging.NewComponentLogger(logger, "coordinator"),
		now:          now,
		stages:       make(map[transaction.Stage]stage.StageHandler),
		integrations: make(map[string]stage.IntegrationHandler),
		callbacks:    make(map[EventName][]Callback),
	}
}

// Queue exposes the underlying queue for observers and read-only queries.
func (c *Coordinator) Queue() *queue.Queue {
	return c.queue
}

// Config returns the normalized coordinator settings.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Get returns a snapshot of a live or recently finished transaction.
func (c *Coordinator) Get(id string) (*transaction.Transaction, bool) {
	return c.queue.Get(id)
}
