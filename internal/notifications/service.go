package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shipyard/internal/config"
)

const userAgent = "Shipyard-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifySigningStarted(ctx context.Context, fileName string) error
	NotifySigningCompleted(ctx context.Context, fileName string, duration time.Duration) error
	NotifySigningFailed(ctx context.Context, fileName string, cause error) error
	NotifyReleasePublished(ctx context.Context, tag string, assetCount int) error
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
		signing:  cfg.Notifications.Signing,
		release:  cfg.Notifications.Release,
		errors:   cfg.Notifications.Errors,
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
	signing  bool
	release  bool
	errors   bool
}

func (n *ntfyService) NotifySigningStarted(ctx context.Context, fileName string) error {
	if !n.signing {
		return nil
	}
	data := payload{
		title:   "Shipyard - Signing Started",
		message: fmt.Sprintf("Signing started: %s", strings.TrimSpace(fileName)),
		tags:    []string{"shipyard", "signing", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySigningCompleted(ctx context.Context, fileName string, duration time.Duration) error {
	if !n.signing {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Shipyard - Signed",
		message: fmt.Sprintf("Signed %s in %s", strings.TrimSpace(fileName), duration),
		tags:    []string{"shipyard", "signing", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySigningFailed(ctx context.Context, fileName string, cause error) error {
	if !n.errors {
		return nil
	}
	reason := "unknown"
	if cause != nil {
		reason = strings.TrimSpace(cause.Error())
	}
	data := payload{
		title:    "Shipyard - Signing Failed",
		message:  fmt.Sprintf("Signing failed: %s\n%s", strings.TrimSpace(fileName), reason),
		tags:     []string{"shipyard", "signing", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReleasePublished(ctx context.Context, tag string, assetCount int) error {
	if !n.release {
		return nil
	}
	data := payload{
		title:    "Shipyard - Release Published",
		message:  fmt.Sprintf("Release %s published with %d assets", strings.TrimSpace(tag), assetCount),
		tags:     []string{"shipyard", "release", "published"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
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
		title:    "Shipyard - Error",
		message:  builder.String(),
		tags:     []string{"shipyard", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Shipyard - Test",
		message:  "Notification system test",
		tags:     []string{"shipyard", "test"},
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

func (noopService) NotifySigningStarted(context.Context, string) error { return nil }
func (noopService) NotifySigningCompleted(context.Context, string, time.Duration) error {
	return nil
}
func (noopService) NotifySigningFailed(context.Context, string, error) error { return nil }
func (noopService) NotifyReleasePublished(context.Context, string, int) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error          { return nil }
