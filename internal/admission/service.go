// Package admission turns inbound requests into cache hits, references to
// in-flight tasks, or newly enqueued work, and owns the synchronous
// validation surface.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"winch/internal/config"
	"winch/internal/logging"
	"winch/internal/queue"
	"winch/internal/resourcecache"
)

// ErrValidation marks synchronous request rejections; no task is created.
var ErrValidation = errors.New("invalid request")

// SubmitRequest is one inbound extraction request.
type SubmitRequest struct {
	VideoURL        string
	WantsAudio      bool
	WantsTranscript bool
	CallbackURL     string
	CallbackSecret  string
}

// Receipt is the synchronous answer to a submission. Exactly one of CacheHit
// or Task is meaningful: a cache hit carries the reused files and no task row
// exists, otherwise Task points at the created or deduplicated row.
type Receipt struct {
	CacheHit bool
	Files    map[queue.FileType]*queue.File

	Task    *queue.Task
	Existed bool

	Position      int
	EstimatedWait time.Duration
}

// Service is the admission surface shared by the HTTP API and CLI.
type Service struct {
	store  *queue.Store
	cache  *resourcecache.Cache
	cfg    *config.Config
	logger *slog.Logger
}

// New builds the admission service.
func New(store *queue.Store, cache *resourcecache.Cache, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "admission")),
	}
}

// Submit validates the request and answers with a cache hit or a task.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	if !req.WantsAudio && !req.WantsTranscript {
		return nil, fmt.Errorf("%w: at least one of audio or transcript must be requested", ErrValidation)
	}
	if err := validateCallback(req.CallbackURL); err != nil {
		return nil, err
	}

	videoID, err := DeriveVideoID(req.VideoURL)
	if err != nil {
		return nil, err
	}

	logger := logging.WithContext(ctx, s.logger)

	wanted := wantedTypes(req.WantsAudio, req.WantsTranscript)
	hits, covered, err := s.cache.Covering(ctx, videoID, wanted)
	if err != nil {
		return nil, err
	}
	if covered {
		logger.Info("request satisfied from cache",
			logging.String(logging.FieldVideoID, videoID),
			logging.Int("file_count", len(hits)),
		)
		return &Receipt{CacheHit: true, Files: hits}, nil
	}

	task, existed, err := s.store.CreateTask(ctx, queue.NewTaskParams{
		VideoID:         videoID,
		VideoURL:        strings.TrimSpace(req.VideoURL),
		WantsAudio:      req.WantsAudio,
		WantsTranscript: req.WantsTranscript,
		CallbackURL:     req.CallbackURL,
		CallbackSecret:  req.CallbackSecret,
	}, s.dedupMatch())
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	receipt := &Receipt{Task: task, Existed: existed}
	if task.Status == queue.StatusPending {
		position, err := s.store.QueuePosition(ctx, task)
		if err != nil {
			return nil, err
		}
		receipt.Position = position
		receipt.EstimatedWait = s.EstimateWait(position)
	}

	logger.Info("task admitted",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldVideoID, videoID),
		logging.Bool("deduplicated", existed),
		logging.Int("position", receipt.Position),
	)
	return receipt, nil
}

// Get returns the current task row, or queue.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*queue.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, queue.ErrNotFound
	}
	return task, nil
}

// FilesFor returns the artifact rows currently linked to a task's video.
func (s *Service) FilesFor(ctx context.Context, task *queue.Task) ([]*queue.File, error) {
	return s.store.FilesForVideo(ctx, task.VideoID)
}

// List returns a page of tasks, optionally filtered by status, plus the total.
func (s *Service) List(ctx context.Context, status *queue.Status, limit, offset int) ([]*queue.Task, int, error) {
	return s.store.ListTasks(ctx, status, limit, offset)
}

// Cancel cancels a pending task. Running and terminal tasks are rejected.
func (s *Service) Cancel(ctx context.Context, id string) (*queue.Task, error) {
	task, err := s.store.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task cancelled", logging.String(logging.FieldTaskID, task.ID))
	return task, nil
}

// QueuePosition recomputes the 1-based queue position of a pending task.
func (s *Service) QueuePosition(ctx context.Context, task *queue.Task) (int, error) {
	return s.store.QueuePosition(ctx, task)
}

// EstimateWait projects the wait for a queue position from the mean
// configured inter-task interval.
func (s *Service) EstimateWait(position int) time.Duration {
	if position < 1 {
		return 0
	}
	mean := (s.cfg.Workflow.TaskIntervalMin + s.cfg.Workflow.TaskIntervalMax) / 2
	return time.Duration(position*mean) * time.Second
}

func (s *Service) dedupMatch() queue.DedupMatch {
	if s.cfg.Workflow.DedupPolicy == config.DedupPolicyExact {
		return queue.DedupExact
	}
	return queue.DedupSuperset
}

func wantedTypes(wantsAudio, wantsTranscript bool) []queue.FileType {
	types := make([]queue.FileType, 0, 2)
	if wantsAudio {
		types = append(types, queue.FileAudio)
	}
	if wantsTranscript {
		types = append(types, queue.FileTranscript)
	}
	return types
}

func validateCallback(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: callback url must be a valid http or https url", ErrValidation)
	}
	return nil
}
