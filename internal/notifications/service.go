package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docflow/internal/config"
)

const userAgent = "docflow/0.1.0"

// Event names a notification template.
type Event string

const (
	EventWorkflowCompleted  Event = "workflow_completed"
	EventWorkflowFailed     Event = "workflow_failed"
	EventSignatureCompleted Event = "signature_completed"
	EventPerformanceAlert   Event = "performance_alert"
	EventTest               Event = "test"
)

// Payload carries template fields.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	id := shortID(payload.str("transaction_id"))
	docType := payload.str("type")
	if docType == "" {
		docType = "document"
	}
	switch event {
	case EventWorkflowCompleted:
		body := fmt.Sprintf("Workflow complete: %s %s", strings.ReplaceAll(docType, "_", " "), id)
		if doc := payload.str("document_id"); doc != "" {
			body += "\nDocument: " + doc
		}
		return message{
			title: "DocFlow - Complete",
			body:  body,
			tags:  []string{"docflow", "workflow", "completed"},
		}, true
	case EventWorkflowFailed:
		body := fmt.Sprintf("Workflow failed at %s: %s %s", payload.str("stage"), strings.ReplaceAll(docType, "_", " "), id)
		if reason := payload.str("error"); reason != "" {
			body += "\nReason: " + reason
		}
		return message{
			title:    "DocFlow - Failed",
			body:     body,
			tags:     []string{"docflow", "workflow", "failed"},
			priority: "high",
		}, true
	case EventSignatureCompleted:
		return message{
			title: "DocFlow - Signed",
			body:  fmt.Sprintf("Signature received for %s %s", strings.ReplaceAll(docType, "_", " "), id),
			tags:  []string{"docflow", "signature", "completed"},
		}, true
	case EventPerformanceAlert:
		return message{
			title:    "DocFlow - Performance Alert",
			body:     fmt.Sprintf("%s: %.2f (threshold %.2f)", payload.str("alert_type"), payload.num("value"), payload.num("threshold")),
			tags:     []string{"docflow", "alert", payload.str("alert_type")},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "DocFlow - Test",
			body:     "Notification system test",
			tags:     []string{"docflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) str(key string) string {
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func (p Payload) num(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
