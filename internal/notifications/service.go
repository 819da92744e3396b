package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pixelbatch/internal/config"
)

const userAgent = "pixelbatch/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventBatchStarted   Event = "batch_started"
	EventBatchCompleted Event = "batch_completed"
	EventArchiveReady   Event = "archive_ready"
	EventTest           Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: topic, client: &http.Client{Timeout: timeout}}
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

func render(event Event, p Payload) (message, bool) {
	switch event {
	case EventBatchStarted:
		return message{
			title: "pixelbatch - Batch Started",
			body:  fmt.Sprintf("Converting %d images to %s", p.number("count"), p.text("format")),
			tags:  []string{"pixelbatch", "batch", "started"},
		}, true
	case EventBatchCompleted:
		done, failed := p.number("done"), p.number("failed")
		elapsed := p.elapsed("elapsed")
		if failed == 0 {
			return message{
				title: "pixelbatch - Batch Complete",
				body:  fmt.Sprintf("Converted %d images in %s", done, elapsed),
				tags:  []string{"pixelbatch", "batch", "completed"},
			}, true
		}
		return message{
			title:    "pixelbatch - Batch Complete (with errors)",
			body:     fmt.Sprintf("%d converted, %d failed in %s", done, failed, elapsed),
			tags:     []string{"pixelbatch", "batch", "warning"},
			priority: "high",
		}, true
	case EventArchiveReady:
		body := fmt.Sprintf("Archive written: %s", p.text("path"))
		if size := p.number("bytes"); size > 0 {
			body += fmt.Sprintf(" (%d entries, %s)", p.number("entries"), humanize.IBytes(uint64(size)))
		}
		return message{
			title: "pixelbatch - Archive Ready",
			body:  body,
			tags:  []string{"pixelbatch", "archive"},
		}, true
	case EventTest:
		return message{
			title:    "pixelbatch - Test",
			body:     "Notification system test",
			tags:     []string{"pixelbatch", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
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
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func (p Payload) number(key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (p Payload) elapsed(key string) string {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
