package daemon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docflow/internal/daemon"
	"docflow/internal/logging"
	"docflow/internal/testsupport"
	"docflow/internal/transaction"
	"docflow/internal/workflow"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx, false)
	if !status.Running || !status.Workflow.Running {
		t.Fatal("expected daemon and coordinator to report running")
	}
	if status.JournalPath != cfg.JournalPath() || status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected paths: %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx, false)
	if status.Running || status.Workflow.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonRestartServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIBind("127.0.0.1:0"))
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	for round := 1; round <= 2; round++ {
		if err := d.Start(ctx); err != nil {
			t.Fatalf("start round %d: %v", round, err)
		}
		addr := d.APIAddr()
		if addr == "" {
			t.Fatalf("round %d: expected api address", round)
		}
		resp, err := http.Get("http://" + addr + "/api/status")
		if err != nil {
			t.Fatalf("round %d: status request: %v", round, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("round %d: expected 200, got %d", round, resp.StatusCode)
		}
		d.Stop()
		if d.APIAddr() != "" {
			t.Fatalf("round %d: expected api address cleared after stop", round)
		}
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to be refused")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected lock to be released, got %v", err)
	}
	second.Stop()
}

func TestDaemonRunsWebhookPipelineToCompletion(t *testing.T) {
	stageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"document_id":"doc-42"}`))
	}))
	defer stageSrv.Close()
	signatureSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	}))
	defer signatureSrv.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithStageEndpoint("initial", stageSrv.URL),
		testsupport.WithStageEndpoint("data_retrieved", stageSrv.URL),
		testsupport.WithStageEndpoint("document_generated", stageSrv.URL),
		testsupport.WithStageEndpoint("stored", stageSrv.URL),
		testsupport.WithIntegrationEndpoint(workflow.DefaultSignatureIntegration, signatureSrv.URL),
	)
	cfg.Engine.SignatureCheckInterval = 1

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	id, err := d.Submit(ctx, workflow.Submission{Type: transaction.TypeLetterOfIntent, Payload: map[string]any{"customer": "acme"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		tx, _, err := d.Describe(ctx, id)
		if err != nil {
			t.Fatalf("describe: %v", err)
		}
		if tx.Status == transaction.StatusCompleted {
			if tx.DocumentID != "doc-42" {
				t.Fatalf("expected document id from handler, got %q", tx.DocumentID)
			}
			break
		}
		if tx.Status == transaction.StatusFailed {
			t.Fatalf("transaction failed: %+v", tx.ErrorHistory)
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction did not complete, stuck at %s", tx.Stage)
		}
		time.Sleep(50 * time.Millisecond)
	}
	d.Stop()

	stored, err := d.Journal().Get(ctx, id)
	if err != nil {
		t.Fatalf("journal get: %v", err)
	}
	if stored.Status != transaction.StatusCompleted {
		t.Fatalf("expected journal to record completion, got %s", stored.Status)
	}
	transitions, err := d.Journal().Transitions(ctx, id)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(transitions) == 0 || transitions[len(transitions)-1].To != transaction.StageCompleted {
		t.Fatalf("expected final transition to completed, got %+v", transitions)
	}
}
