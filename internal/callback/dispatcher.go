// Package callback delivers signed webhook notifications when tasks reach a
// terminal state. Delivery is a single bounded campaign per terminal
// transition: exhausting it is logged and recorded, never retried later, and
// never mutates the task's lifecycle status.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"winch/internal/config"
	"winch/internal/logging"
	"winch/internal/queue"
)

const (
	headerSignature = "X-Signature"
	headerTaskID    = "X-Task-Id"
	headerTimestamp = "X-Timestamp"
)

// maxAttempts is the total HTTP attempts per campaign.
const maxAttempts = 3

// Payload mirrors the task's terminal fields on the wire.
type Payload struct {
	TaskID           string           `json:"task_id"`
	VideoID          string           `json:"video_id"`
	Status           string           `json:"status"`
	HasTranscript    bool             `json:"has_transcript"`
	AudioFallback    bool             `json:"audio_fallback"`
	ReusedAudio      bool             `json:"reused_audio"`
	ReusedTranscript bool             `json:"reused_transcript"`
	RetryCount       int              `json:"retry_count"`
	VideoInfo        json.RawMessage  `json:"video_info,omitempty"`
	Files            []FileDescriptor `json:"files"`
	Error            *ErrorDescriptor `json:"error,omitempty"`
	CompletedAt      string           `json:"completed_at,omitempty"`
}

// FileDescriptor is one artifact reference in the payload.
type FileDescriptor struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	Format string `json:"format,omitempty"`
	URL    string `json:"url,omitempty"`
}

// ErrorDescriptor carries the classified failure of a failed task.
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Dispatcher runs delivery campaigns against per-task callback URLs.
type Dispatcher struct {
	store     *queue.Store
	client    *http.Client
	baseURL   string
	delayBase time.Duration
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithDelayBase overrides the first inter-attempt delay; later delays double.
// Tests use this to avoid real sleeps.
func WithDelayBase(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.delayBase = base
		}
	}
}

// New builds a dispatcher recording campaign outcomes in the store.
func New(store *queue.Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Callback.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dispatcher := &Dispatcher{
		store:     store,
		client:    &http.Client{Timeout: timeout},
		baseURL:   cfg.Paths.BaseURL,
		delayBase: 5 * time.Second,
		logger:    logger.With(logging.String(logging.FieldComponent, "callback")),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	return dispatcher
}

// Deliver runs one campaign for a terminal task. Tasks without a callback URL
// are skipped. The outcome lands in callback_status/callback_attempts; errors
// here never propagate into the task lifecycle.
func (d *Dispatcher) Deliver(ctx context.Context, task *queue.Task, files []*queue.File) {
	if task == nil || task.CallbackURL == "" {
		return
	}

	body, err := json.Marshal(d.buildPayload(task, files))
	if err != nil {
		d.logger.Error("encode callback payload",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err),
		)
		d.record(ctx, task.ID, queue.CallbackFailed, 0)
		return
	}
	signature := Sign(task.CallbackSecret, body)

	attempts := 0
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(d.delayBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := d.post(ctx, task.CallbackURL, task.ID, body, signature); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.logger.Warn("callback delivery exhausted",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Int(logging.FieldAttempt, attempts),
			logging.Error(err),
		)
		d.record(ctx, task.ID, queue.CallbackFailed, attempts)
		return
	}

	d.logger.Info("callback delivered",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int(logging.FieldAttempt, attempts),
	)
	d.record(ctx, task.ID, queue.CallbackSuccess, attempts)
}

func (d *Dispatcher) buildPayload(task *queue.Task, files []*queue.File) Payload {
	payload := Payload{
		TaskID:           task.ID,
		VideoID:          task.VideoID,
		Status:           string(task.Status),
		HasTranscript:    task.HasTranscript,
		AudioFallback:    task.AudioFallback,
		ReusedAudio:      task.ReusedAudio,
		ReusedTranscript: task.ReusedTranscript,
		RetryCount:       task.RetryCount,
		Files:            make([]FileDescriptor, 0, len(files)),
	}
	if task.VideoInfoJSON != "" {
		payload.VideoInfo = json.RawMessage(task.VideoInfoJSON)
	}
	if task.CompletedAt != nil {
		payload.CompletedAt = task.CompletedAt.UTC().Format(time.RFC3339)
	}
	if task.Status == queue.StatusFailed {
		payload.Error = &ErrorDescriptor{Kind: task.ErrorKind, Message: task.ErrorMessage}
	}
	for _, file := range files {
		descriptor := FileDescriptor{
			ID:     file.ID,
			Type:   string(file.Type),
			Size:   file.Size,
			Format: file.Format,
		}
		if d.baseURL != "" {
			descriptor.URL = fmt.Sprintf("%s/api/v1/files/%s", d.baseURL, file.ID)
		}
		payload.Files = append(payload.Files, descriptor)
	}
	return payload
}

func (d *Dispatcher) post(ctx context.Context, url, taskID string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, signature)
	req.Header.Set(headerTaskID, taskID)
	req.Header.Set(headerTimestamp, strconv.FormatInt(time.Now().Unix(), 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, taskID string, status queue.CallbackStatus, attempts int) {
	if err := d.store.SetCallbackResult(ctx, taskID, status, attempts); err != nil {
		d.logger.Error("record callback result",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err),
		)
	}
}
