package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"docflow/internal/config"
	"docflow/internal/integrations/webhook"
	"docflow/internal/journal"
	"docflow/internal/logging"
	"docflow/internal/metrics"
	"docflow/internal/notifications"
	"docflow/internal/preflight"
	"docflow/internal/transaction"
	"docflow/internal/workflow"
)

// Daemon owns the coordinator lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	journal     *journal.Store
	coordinator *workflow.Coordinator
	metrics     *metrics.Collector
	notifier    notifications.Service
	bound       []string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	JournalPath  string                 `json:"journal_path"`
	LockFilePath string                 `json:"lock_file_path"`
	Handlers     []string               `json:"bound_handlers,omitempty"`
	Preflight    []preflight.Result     `json:"preflight,omitempty"`
}

// New opens the journal, builds the coordinator, and binds every configured
// handler, metric, and notification subscriber. Handlers registered through
// Coordinator before Start are kept.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := journal.OpenConfig(cfg, logging.NewComponentLogger(logger, "journal"))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	co := workflow.New(workflow.ConfigFromSettings(cfg), logging.NewComponentLogger(logger, "workflow"),
		workflow.WithQueueObserver(store))
	collector := metrics.New(co)
	co.Queue().AddObserver(collector)
	if err := collector.Subscribe(co); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("subscribe metrics: %w", err)
	}

	notifier := notifications.NewService(cfg)
	if err := notifications.Subscribe(co, notifier, cfg); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	bound, err := webhook.Bind(co, cfg, logging.NewComponentLogger(logger, "webhook"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bind handlers: %w", err)
	}

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		journal:     store,
		coordinator: co,
		metrics:     collector,
		notifier:    notifier,
		bound:       bound,
		lockPath:    cfg.LockPath(),
		lock:        flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api-server"))
	return d, nil
}

// Coordinator exposes the coordinator so embedders can register in-process
// handlers and callbacks before Start.
func (d *Daemon) Coordinator() *workflow.Coordinator {
	return d.coordinator
}

// Journal returns the persistent transaction journal.
func (d *Daemon) Journal() *journal.Store {
	return d.journal
}

// Metrics returns the Prometheus collector.
func (d *Daemon) Metrics() *metrics.Collector {
	return d.metrics
}

// APIAddr reports the address the API server listens on, or "" when the
// API is disabled or the daemon is not running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Start acquires the daemon lock, then launches the coordinator loops and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docflow daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.coordinator.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start coordinator: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.coordinator.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("docflow daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("journal", d.journal.Path()),
		logging.Int("bound_handlers", len(d.bound)),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.coordinator.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("docflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Submit admits a new transaction.
func (d *Daemon) Submit(ctx context.Context, sub workflow.Submission) (string, error) {
	return d.coordinator.Submit(ctx, sub)
}

// Cancel withdraws a pending transaction.
func (d *Daemon) Cancel(ctx context.Context, id, reason string) error {
	return d.coordinator.Cancel(ctx, id, reason)
}

// Describe returns the live snapshot of a transaction, falling back to the
// journal once it has been evicted from memory.
func (d *Daemon) Describe(ctx context.Context, id string) (*transaction.Transaction, []journal.StageTransition, error) {
	transitions, err := d.journal.Transitions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if tx, ok := d.coordinator.Get(id); ok {
		return tx, transitions, nil
	}
	tx, err := d.journal.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return tx, transitions, nil
}

// List returns journal summaries filtered by optional statuses.
func (d *Daemon) List(ctx context.Context, limit int, statuses ...transaction.Status) ([]journal.Summary, error) {
	return d.journal.List(ctx, limit, statuses...)
}

// TestNotification publishes a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status. Preflight checks run only when
// withPreflight is set since they dial every configured endpoint.
func (d *Daemon) Status(ctx context.Context, withPreflight bool) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.coordinator.Status(ctx),
		JournalPath:  d.journal.Path(),
		LockFilePath: d.lockPath,
		Handlers:     append([]string(nil), d.bound...),
	}
	if withPreflight {
		status.Preflight = preflight.RunAll(ctx, d.cfg)
	}
	return status
}
