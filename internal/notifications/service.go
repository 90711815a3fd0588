package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"winch/internal/config"
)

const userAgent = "Winch/0.1.0"

// Service defines the operator notification surface.
type Service interface {
	NotifyTaskCompleted(ctx context.Context, videoTitle, videoID string) error
	NotifyTaskFailed(ctx context.Context, videoID, errorKind, message string) error
	NotifyCleanupCompleted(ctx context.Context, filesRemoved, tasksRemoved int, bytesFreed int64) error
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

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, videoTitle, videoID string) error {
	videoTitle = strings.TrimSpace(videoTitle)
	if videoTitle == "" {
		videoTitle = videoID
	}
	data := payload{
		title:   "Winch - Task Complete",
		message: fmt.Sprintf("Extraction complete: %s", videoTitle),
		tags:    []string{"winch", "task", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, videoID, errorKind, message string) error {
	text := fmt.Sprintf("Extraction failed: %s (%s)", videoID, errorKind)
	if message = strings.TrimSpace(message); message != "" {
		text = fmt.Sprintf("%s\n%s", text, message)
	}
	data := payload{
		title:    "Winch - Task Failed",
		message:  text,
		tags:     []string{"winch", "task", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCleanupCompleted(ctx context.Context, filesRemoved, tasksRemoved int, bytesFreed int64) error {
	data := payload{
		title: "Winch - Cleanup Complete",
		message: fmt.Sprintf("Removed %d files and %d task records, freed %d MiB",
			filesRemoved, tasksRemoved, bytesFreed/(1024*1024)),
		tags:     []string{"winch", "cleanup", "completed"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Winch - Test",
		message:  "Notification system test",
		tags:     []string{"winch", "test"},
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

// Noop returns a Service that drops every event, for tests and callers that
// run without a notifier.
func Noop() Service { return noopService{} }

func (noopService) NotifyTaskCompleted(context.Context, string, string) error      { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyCleanupCompleted(context.Context, int, int, int64) error  { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
