package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"filerelay/internal/config"
)

const userAgent = "filerelay/0.1"

// Event identifies a notification type.
type Event string

const (
	EventMessageDeadLettered Event = "message_dead_lettered"
	EventDrainTimedOut       Event = "drain_timed_out"
	EventTest                Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
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
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventMessageDeadLettered:
		label := text(payload, "label")
		if label == "" {
			label = "unknown file"
		}
		body := fmt.Sprintf("Gave up on %s after %s deliveries", label, text(payload, "deliveries"))
		if reason := text(payload, "reason"); reason != "" {
			body += "\nReason: " + reason
		}
		return message{
			title:    "filerelay - Dead-lettered",
			body:     body,
			tags:     []string{"filerelay", "dead-letter", "alert"},
			priority: "high",
		}, true
	case EventDrainTimedOut:
		return message{
			title:    "filerelay - Shutdown Timed Out",
			body:     fmt.Sprintf("Stopped with %s handler(s) still running; their messages will be redelivered", text(payload, "in_flight")),
			tags:     []string{"filerelay", "shutdown", "warning"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "filerelay - Test",
			body:     "Notification system test",
			tags:     []string{"filerelay", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
