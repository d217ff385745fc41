package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stemd/internal/config"
)

const userAgent = "stemd/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyTrackIngested(ctx context.Context, title string) error
	NotifySeparationStarted(ctx context.Context, title string) error
	NotifySeparationCompleted(ctx context.Context, title string, stemCount int) error
	NotifySeparationFailed(ctx context.Context, title, reason string) error
	NotifyOrphansRecovered(ctx context.Context, deleted, resubmitted int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
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

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyTrackIngested(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "stemd - Track Ingested",
		message: fmt.Sprintf("Queued for separation: %s", title),
		tags:    []string{"stemd", "ingest"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySeparationStarted(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "stemd - Separation Started",
		message: fmt.Sprintf("Separating: %s", title),
		tags:    []string{"stemd", "separation", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySeparationCompleted(ctx context.Context, title string, stemCount int) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:    "stemd - Separation Complete",
		message:  fmt.Sprintf("Stems ready for %s (%d files)", title, stemCount),
		tags:     []string{"stemd", "separation", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySeparationFailed(ctx context.Context, title, reason string) error {
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "stemd - Separation Failed",
		message:  fmt.Sprintf("Separation failed for %s: %s", title, reason),
		tags:     []string{"stemd", "separation", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOrphansRecovered(ctx context.Context, deleted, resubmitted int) error {
	data := payload{
		title:   "stemd - Queue Recovered",
		message: fmt.Sprintf("Swept %d orphaned entries, resubmitted %d", deleted, resubmitted),
		tags:    []string{"stemd", "sweep"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "stemd - Error",
		message:  builder.String(),
		tags:     []string{"stemd", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "stemd - Test",
		message:  "Notification system test",
		tags:     []string{"stemd", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyTrackIngested(context.Context, string) error            { return nil }
func (noopService) NotifySeparationStarted(context.Context, string) error        { return nil }
func (noopService) NotifySeparationCompleted(context.Context, string, int) error { return nil }
func (noopService) NotifySeparationFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyOrphansRecovered(context.Context, int, int) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
