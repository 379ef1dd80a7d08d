// Package webhook binds stage and integration handlers to HTTP endpoints.
//
// Each endpoint receives a JSON POST describing the transaction and replies
// with a JSON object that becomes the handler Result. Calls go through a
// per-endpoint circuit breaker; network failures, 429, and 5xx responses are
// transient so the coordinator may retry them, other 4xx responses are
// terminal handler failures.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/stage"
	"docflow/internal/transaction"
)

const (
	userAgent       = "docflow-webhook/0.1.0"
	maxResponseSize = 1 << 20
)

// Options configures a Client.
type Options struct {
	Name     string
	Endpoint string
	Timeout  time.Duration
	// BreakerFailures consecutive transient failures open the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client calls one webhook endpoint. It implements stage.StageHandler,
// stage.IntegrationHandler, and stage.HealthChecker.
type Client struct {
	name     string
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// Request is the JSON body posted to the endpoint.
type Request struct {
	Handler     string                   `json:"handler"`
	Stage       transaction.Stage        `json:"stage"`
	RequestID   string                   `json:"request_id,omitempty"`
	Transaction *transaction.Transaction `json:"transaction"`
	Args        map[string]any           `json:"args,omitempty"`
}

// New validates opts and builds a client.
func New(opts Options) (*Client, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, errors.New("webhook: name is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(opts.Endpoint))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("webhook %s: endpoint must be an http(s) URL", name)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	logger := logging.NewComponentLogger(opts.Logger, "webhook").With(logging.String("handler", name))
	c := &Client{
		name:     name,
		endpoint: parsed.String(),
		http:     httpClient,
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !services.IsRetryable(err)
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			attrs := []logging.Attr{
				logging.String("breaker", breakerName),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			}
			if to == gobreaker.StateOpen {
				logging.WarnWithContext(logger, "circuit breaker opened", "webhook_breaker_open",
					append(attrs,
						logging.String(logging.FieldErrorHint, "endpoint is failing repeatedly; check the remote service"),
						logging.String(logging.FieldImpact, "calls fail fast until the cooldown elapses"),
					)...)
				return
			}
			logger.Info("circuit breaker state changed", logging.Args(append(attrs, logging.String(logging.FieldEventType, "webhook_breaker_state"))...)...)
		},
	})
	return c, nil
}

// Name returns the handler name.
func (c *Client) Name() string {
	return c.name
}

// Handle implements stage.StageHandler.
func (c *Client) Handle(ctx context.Context, tx *transaction.Transaction) (stage.Result, error) {
	return c.call(ctx, tx, nil)
}

// Invoke implements stage.IntegrationHandler.
func (c *Client) Invoke(ctx context.Context, tx *transaction.Transaction, args stage.Args) (stage.Result, error) {
	return c.call(ctx, tx, args)
}

// HealthCheck reports the breaker state.
func (c *Client) HealthCheck(context.Context) stage.Health {
	if state := c.breaker.State(); state == gobreaker.StateOpen {
		return stage.Unhealthy(c.name, "circuit breaker open")
	}
	return stage.Healthy(c.name)
}

func (c *Client) call(ctx context.Context, tx *transaction.Transaction, args stage.Args) (stage.Result, error) {
	stageName := ""
	if tx != nil {
		stageName = string(tx.Stage)
	}
	out, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, tx, args)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, services.Wrap(services.ErrTransient, stageName, "webhook "+c.name, "circuit breaker open", err)
		}
		return nil, err
	}
	result, _ := out.(stage.Result)
	return result, nil
}

func (c *Client) post(ctx context.Context, tx *transaction.Transaction, args stage.Args) (stage.Result, error) {
	stageName := ""
	if tx != nil {
		stageName = string(tx.Stage)
	}
	op := "webhook " + c.name
	requestID, _ := services.RequestIDFromContext(ctx)
	body, err := json.Marshal(Request{
		Handler:     c.name,
		Stage:       transaction.Stage(stageName),
		RequestID:   requestID,
		Transaction: tx,
		Args:        args,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrHandler, stageName, op, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrHandler, stageName, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, stageName, op, "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, op, "read response", err)
	}

	c.logger.Debug("webhook call finished",
		logging.String(logging.FieldStage, stageName),
		logging.Int("status_code", resp.StatusCode),
		logging.Duration("latency", time.Since(started)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, stageName, op,
			fmt.Sprintf("endpoint returned %d", resp.StatusCode), errors.New(snippet(payload)))
	case resp.StatusCode >= 300:
		return nil, services.Wrap(services.ErrHandler, stageName, op,
			fmt.Sprintf("endpoint returned %d", resp.StatusCode), errors.New(snippet(payload)))
	}

	result := stage.Result{}
	if len(bytes.TrimSpace(payload)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, services.Wrap(services.ErrHandler, stageName, op, "response is not a JSON object", err)
	}
	return result, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256] + "..."
	}
	if text == "" {
		return "empty response body"
	}
	return text
}
