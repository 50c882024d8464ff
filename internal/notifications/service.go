package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voxclone/internal/config"
)

const userAgent = "voxclone/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventRunStarted      Event = "run_started"
	EventRunCompleted    Event = "run_completed"
	EventRunFailed       Event = "run_failed"
	EventFallbackApplied Event = "fallback_applied"
	EventTest            Event = "test"
)

// Payload carries the values a message template reads.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
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
		enabled: map[Event]bool{
			EventRunStarted:      false,
			EventRunCompleted:    cfg.Notifications.RunCompleted,
			EventRunFailed:       cfg.Notifications.RunFailed,
			EventFallbackApplied: cfg.Notifications.RunCompleted,
			EventTest:            true,
		},
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
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	model := payload.text("model")
	switch event {
	case EventRunStarted:
		return message{
			title: "voxclone - Run Started",
			body:  fmt.Sprintf("Training started: %s (%s)", model, payload.text("language")),
			tags:  []string{"voxclone", "run", "started"},
		}, true
	case EventRunCompleted:
		body := fmt.Sprintf("✅ Voice model ready: %s", model)
		if elapsed := payload.text("elapsed"); elapsed != "" {
			body = fmt.Sprintf("%s in %s", body, elapsed)
		}
		if dir := payload.text("modelDir"); dir != "" {
			body = fmt.Sprintf("%s\nOutput: %s", body, dir)
		}
		return message{
			title:    "voxclone - Complete",
			body:     body,
			tags:     []string{"voxclone", "run", "completed"},
			priority: "high",
		}, true
	case EventRunFailed:
		var b strings.Builder
		b.WriteString("❌ Training failed")
		if model != "" {
			b.WriteString(" for ")
			b.WriteString(model)
		}
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" at ")
			b.WriteString(stage)
		}
		fmt.Fprintf(&b, " (exit %s)", payload.text("exitCode"))
		if errText := payload.text("error"); errText != "" {
			b.WriteString(": ")
			b.WriteString(errText)
		}
		return message{
			title:    "voxclone - Failed",
			body:     b.String(),
			tags:     []string{"voxclone", "error", "alert"},
			priority: "high",
		}, true
	case EventFallbackApplied:
		return message{
			title: "voxclone - Separation Fallback",
			body:  fmt.Sprintf("Separation produced no vocal track for %s; training used the unseparated recording", model),
			tags:  []string{"voxclone", "separation", "fallback"},
		}, true
	case EventTest:
		return message{
			title:    "voxclone - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"voxclone", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case error:
		return strings.TrimSpace(val.Error())
	case time.Duration:
		return val.Round(time.Second).String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
