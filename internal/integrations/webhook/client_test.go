package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"docflow/internal/config"
	"docflow/internal/integrations/webhook"
	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/stage"
	"docflow/internal/transaction"
	"docflow/internal/workflow"
)

func newTx() *transaction.Transaction {
	tx := transaction.New("tx-42", transaction.TypeLetterOfIntent, transaction.PriorityNormal, map[string]any{"customer": "acme"}, time.Now())
	tx.Stage = transaction.StageDataRetrieved
	return tx
}

func newClient(t *testing.T, url string, failures uint32) *webhook.Client {
	t.Helper()
	client, err := webhook.New(webhook.Options{
		Name:            "generator",
		Endpoint:        url,
		Timeout:         2 * time.Second,
		BreakerFailures: failures,
		BreakerCooldown: time.Hour,
		Logger:          logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestHandlePostsTransactionAndDecodesResult(t *testing.T) {
	var got webhook.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") != "req-1" {
			t.Errorf("expected request id header, got %q", r.Header.Get("X-Request-ID"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{stage.KeyDocumentID: "doc-1", "pages": 3})
	}))
	defer srv.Close()

	ctx := services.WithRequestID(context.Background(), "req-1")
	result, err := newClient(t, srv.URL, 3).Handle(ctx, newTx())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.String(stage.KeyDocumentID) != "doc-1" {
		t.Fatalf("unexpected result: %v", result)
	}
	if got.Transaction == nil || got.Transaction.ID != "tx-42" || got.Stage != transaction.StageDataRetrieved {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestInvokeSendsArgs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhook.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{stage.KeyStatus: "completed", "echo": req.Args["signature_request_id"]})
	}))
	defer srv.Close()

	result, err := newClient(t, srv.URL, 3).Invoke(context.Background(), newTx(), stage.Args{"signature_request_id": "sig-9"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.SignatureStatus() != stage.SignatureCompleted || result.String("echo") != "sig-9" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestStatusCodesClassified(t *testing.T) {
	cases := []struct {
		code      int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tc.code)
		}))
		_, err := newClient(t, srv.URL, 10).Handle(context.Background(), newTx())
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.code)
		}
		if services.IsRetryable(err) != tc.transient {
			t.Fatalf("status %d: expected transient=%v, got %v", tc.code, tc.transient, err)
		}
		if !tc.transient && !errors.Is(err, services.ErrHandler) {
			t.Fatalf("status %d: expected handler failure, got %v", tc.code, err)
		}
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, 2)
	for range 2 {
		_, _ = client.Handle(context.Background(), newTx())
	}
	_, err := client.Handle(context.Background(), newTx())
	if !services.IsRetryable(err) {
		t.Fatalf("expected open breaker to report a transient error, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected open breaker to short-circuit, got %d hits", hits.Load())
	}
	if health := client.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy while breaker is open")
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, 1)
	for range 3 {
		_, _ = client.Handle(context.Background(), newTx())
	}
	if health := client.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected breaker to stay closed, got %+v", health)
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	if _, err := webhook.New(webhook.Options{Name: "x", Endpoint: "ftp://example.com"}); err == nil {
		t.Fatal("expected non-http endpoint to be rejected")
	}
	if _, err := webhook.New(webhook.Options{Endpoint: "http://example.com"}); err == nil {
		t.Fatal("expected missing name to be rejected")
	}
}

func TestBindRegistersConfiguredEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Handlers.Stages = map[string]string{"initial": srv.URL, "data_retrieved": srv.URL}
	cfg.Handlers.Integrations = map[string]string{"signature_status": srv.URL}
	co := workflow.New(workflow.DefaultConfig(), logging.NewNop())

	bound, err := webhook.Bind(co, &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(bound) != 3 {
		t.Fatalf("expected three bindings, got %v", bound)
	}
	if names := co.StageHandlerNames(); len(names) != 2 || names[0] != "initial" {
		t.Fatalf("unexpected stage handlers: %v", names)
	}
	if _, ok := co.Integration("signature_status"); !ok {
		t.Fatal("expected signature_status integration")
	}
}
