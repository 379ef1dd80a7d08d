package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docflow/internal/logging"
	"docflow/internal/services"
)

const (
	loopProcessing = "processing"
	loopSignatures = "signature-monitor"
	loopMetrics    = "metrics"

	maxLoopBackoff = 5 * time.Minute
)

type loopSpec struct {
	name     string
	interval time.Duration
	tick     func(context.Context) error
}

type runningLoop struct {
	name string
	done chan struct{}
}

// IsRunning reports whether the background loops are active.
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Start launches the processing, signature-monitor, and metrics loops. The
// loops stop when ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("coordinator already running")
	}
	if len(c.StageHandlerNames()) == 0 {
		logging.WarnWithContext(c.logger, "starting without stage handlers", "no_stage_handlers",
			logging.String(logging.FieldErrorHint, "configure handlers.stages or register handlers before start"),
			logging.String(logging.FieldImpact, "every admitted transaction will fail at its first stage"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	specs := []loopSpec{
		{name: loopProcessing, interval: c.cfg.ProcessingInterval, tick: func(ctx context.Context) error {
			_, err := c.ProcessNextBatch(ctx)
			return err
		}},
		{name: loopSignatures, interval: c.cfg.SignatureCheckInterval, tick: func(ctx context.Context) error {
			_, err := c.CheckSignatures(ctx)
			return err
		}},
		{name: loopMetrics, interval: c.cfg.MetricsInterval, tick: func(ctx context.Context) error {
			c.RefreshMetrics(ctx)
			return nil
		}},
	}
	c.loops = make([]runningLoop, 0, len(specs))
	for _, spec := range specs {
		done := make(chan struct{})
		c.loops = append(c.loops, runningLoop{name: spec.name, done: done})
		go c.runLoop(runCtx, spec, done)
	}
	c.mu.Unlock()

	c.logger.Info("coordinator started",
		logging.String(logging.FieldEventType, "coordinator_started"),
		logging.String("engine_id", c.cfg.EngineID),
		logging.Int("batch_size", c.cfg.BatchSize),
		logging.Duration("processing_interval", c.cfg.ProcessingInterval),
		logging.Duration("signature_check_interval", c.cfg.SignatureCheckInterval),
	)
	return nil
}

// Stop signals every loop to exit and waits up to the shutdown timeout for
// each. A batch already in flight is allowed to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	loops := c.loops
	c.running = false
	c.cancel = nil
	c.loops = nil
	c.mu.Unlock()

	cancel()
	for _, loop := range loops {
		timer := time.NewTimer(c.cfg.ShutdownTimeout)
		select {
		case <-loop.done:
		case <-timer.C:
			logging.WarnWithContext(c.logger, "loop did not stop within shutdown timeout", "loop_stop_timeout",
				logging.String(logging.FieldLoop, loop.name),
				logging.Duration("shutdown_timeout", c.cfg.ShutdownTimeout),
				logging.String(logging.FieldErrorHint, "a stage handler may be blocking; check stage timeouts"),
				logging.String(logging.FieldImpact, "in-flight transactions may still be processing"),
			)
		}
		timer.Stop()
	}
	c.logger.Info("coordinator stopped", logging.String(logging.FieldEventType, "coordinator_stopped"))
}

func (c *Coordinator) runLoop(ctx context.Context, spec loopSpec, done chan struct{}) {
	defer close(done)
	ctx = services.WithLoop(ctx, spec.name)
	logger := logging.WithContext(ctx, c.logger)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := spec.interval
		if err := runTick(ctx, spec); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				return
			}
			failures++
			wait = loopBackoff(spec.interval, failures)
			c.setLastError(err)
			logger.Error("loop iteration failed",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, string(services.Kind(err))),
				logging.Int("consecutive_failures", failures),
				logging.Duration("retry_in", wait),
				logging.String(logging.FieldEventType, "loop_failed"),
				logging.String(logging.FieldErrorHint, "loop keeps running; inspect the error and handler logs"),
			)
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func runTick(ctx context.Context, spec loopSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrHandler, "", spec.name, "loop iteration panicked", fmt.Errorf("%v", r))
		}
	}()
	return spec.tick(ctx)
}

// loopBackoff doubles the interval per consecutive failure up to a ceiling.
func loopBackoff(interval time.Duration, failures int) time.Duration {
	wait := interval
	for i := 0; i < failures && wait < maxLoopBackoff; i++ {
		wait *= 2
	}
	return min(wait, max(interval, maxLoopBackoff))
}
