package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"greenr/internal/config"
)

const userAgent = "greenr/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventRunStarted     Event = "run_started"
	EventRunCompleted   Event = "run_completed"
	EventRunFailed      Event = "run_failed"
	EventModelPublished Event = "model_published"
	EventTest           Event = "test"
)

// Payload carries event fields. Missing keys render as empty values.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service when a topic is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.OnSuccess,
		onFailure: cfg.Notifications.OnFailure,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onFailure bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunCompleted:
		if !n.onSuccess {
			return message{}, false
		}
		body := fmt.Sprintf("Run %s finished: %d stored, %d failed, %d total features in %s",
			shortID(payload.text("runID")),
			payload.count("stored"),
			payload.count("failed"),
			payload.count("total"),
			payload.elapsed("duration"))
		tags := []string{"greenr", "pipeline", "completed"}
		if payload.count("failed") > 0 {
			tags = append(tags, "warning")
		}
		return message{
			title: "greenr - Run Complete",
			body:  body,
			tags:  tags,
		}, true
	case EventRunFailed:
		if !n.onFailure {
			return message{}, false
		}
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "greenr - Run Failed",
			body:     fmt.Sprintf("Run %s failed: %s", shortID(payload.text("runID")), reason),
			tags:     []string{"greenr", "pipeline", "error"},
			priority: "high",
		}, true
	case EventModelPublished:
		if !n.onSuccess {
			return message{}, false
		}
		return message{
			title: "greenr - Model Published",
			body:  fmt.Sprintf("Uploaded %d files to %s", payload.count("files"), payload.text("uri")),
			tags:  []string{"greenr", "model", "published"},
		}, true
	case EventTest:
		return message{
			title:    "greenr - Test",
			body:     "Notification system test",
			tags:     []string{"greenr", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
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
	if msg.priority != "" {
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

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) elapsed(key string) string {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
