package services_test

import (
	"context"
	"testing"

	"docflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTransactionID(ctx, "tx-42")
	ctx = services.WithStage(ctx, "initial")
	ctx = services.WithLoop(ctx, "processing")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TransactionIDFromContext(ctx); !ok || id != "tx-42" {
		t.Fatalf("unexpected transaction id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "initial" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if loop, ok := services.LoopFromContext(ctx); !ok || loop != "processing" {
		t.Fatalf("unexpected loop: %v %v", loop, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
