package notifications

import (
	"context"

	"docflow/internal/config"
	"docflow/internal/workflow"
)

// Subscribe registers svc on the coordinator events enabled in cfg.
func Subscribe(co *workflow.Coordinator, svc Service, cfg *config.Config) error {
	if svc == nil {
		return nil
	}
	bindings := []struct {
		enabled bool
		source  workflow.EventName
		target  Event
	}{
		{cfg.Notifications.WorkflowCompleted, workflow.EventWorkflowCompleted, EventWorkflowCompleted},
		{cfg.Notifications.WorkflowFailed, workflow.EventWorkflowFailed, EventWorkflowFailed},
		{cfg.Notifications.SignatureCompleted, workflow.EventSignatureCompleted, EventSignatureCompleted},
		{cfg.Notifications.Alerts, workflow.EventPerformanceAlert, EventPerformanceAlert},
	}
	for _, b := range bindings {
		if !b.enabled {
			continue
		}
		target := b.target
		err := co.RegisterCallback(b.source, func(ctx context.Context, evt workflow.Event) error {
			return svc.Publish(ctx, target, payloadFor(evt))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func payloadFor(evt workflow.Event) Payload {
	payload := Payload{}
	for k, v := range evt.Data {
		payload[k] = v
	}
	if evt.TransactionID != "" {
		payload["transaction_id"] = evt.TransactionID
	}
	if evt.Stage != "" {
		if _, ok := payload["stage"]; !ok {
			payload["stage"] = string(evt.Stage)
		}
	}
	if tx := evt.Transaction; tx != nil {
		payload["type"] = string(tx.Type)
		if tx.DocumentID != "" {
			payload["document_id"] = tx.DocumentID
		}
	}
	return payload
}
