// Package worker drives claimed tasks through the extraction lifecycle:
// cache re-check, engine invocation, audio fallback, artifact persistence,
// failure classification, and retry scheduling. Worker failures never escape
// the loop; they land on the task row.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"winch/internal/config"
	"winch/internal/fetch"
	"winch/internal/logging"
	"winch/internal/notifications"
	"winch/internal/queue"
	"winch/internal/resourcecache"
	"winch/internal/retry"
)

// Dispatcher is the callback handoff for terminal tasks.
type Dispatcher interface {
	Deliver(ctx context.Context, task *queue.Task, files []*queue.File)
}

// Worker processes eligible pending tasks with bounded concurrency.
type Worker struct {
	store      *queue.Store
	engine     fetch.Engine
	cache      *resourcecache.Cache
	cfg        *config.Config
	policy     *retry.Policy
	dispatcher Dispatcher
	notifier   notifications.Service
	logger     *slog.Logger
}

// New wires a worker. A nil dispatcher or notifier disables the respective
// handoff.
func New(
	store *queue.Store,
	engine fetch.Engine,
	cache *resourcecache.Cache,
	cfg *config.Config,
	policy *retry.Policy,
	dispatcher Dispatcher,
	notifier notifications.Service,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if policy == nil {
		policy = retry.New()
	}
	return &Worker{
		store:      store,
		engine:     engine,
		cache:      cache,
		cfg:        cfg,
		policy:     policy,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger.With(logging.String(logging.FieldComponent, "worker")),
	}
}

// Run loops until the context is cancelled. Each worker slot processes one
// task at a time and sleeps a random inter-task interval afterwards, keeping
// the aggregate request rate against the upstream resource bounded regardless
// of task outcome.
func (w *Worker) Run(ctx context.Context) {
	concurrency := w.cfg.Workflow.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	pollInterval := time.Duration(w.cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		task, err := w.claimNext(ctx)
		if err != nil {
			w.logger.Error("claim next task", logging.Error(err))
		}
		if task == nil {
			<-sem
			if !sleepCtx(ctx, pollInterval) {
				return
			}
			continue
		}

		wg.Add(1)
		go func(task *queue.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			w.Process(ctx, task)
			w.pause(ctx)
		}(task)
	}
}

func (w *Worker) claimNext(ctx context.Context) (*queue.Task, error) {
	now := time.Now().UTC()
	task, err := w.store.NextEligible(ctx, now)
	if err != nil || task == nil {
		return nil, err
	}
	claimed, err := w.store.ClaimDownloading(ctx, task.ID, now)
	if err != nil || !claimed {
		return nil, err
	}
	task.Status = queue.StatusDownloading
	started := now
	task.StartedAt = &started
	return task, nil
}

// Process runs one claimed task to a terminal or retry outcome.
func (w *Worker) Process(ctx context.Context, task *queue.Task) {
	ctx = logging.WithTaskID(ctx, task.ID)
	ctx = logging.WithVideoID(ctx, task.VideoID)
	logger := logging.WithContext(ctx, w.logger)

	files, err := w.produce(ctx, task, logger)
	if err != nil {
		w.fail(ctx, task, err, logger)
		return
	}

	now := time.Now().UTC()
	task.Status = queue.StatusCompleted
	task.CompletedAt = &now
	if err := w.store.Update(ctx, task); err != nil {
		logger.Error("persist completed task", logging.Error(err))
		return
	}

	logger.Info("task completed",
		logging.Bool("has_transcript", task.HasTranscript),
		logging.Bool("audio_fallback", task.AudioFallback),
		logging.Bool("reused_audio", task.ReusedAudio),
		logging.Bool("reused_transcript", task.ReusedTranscript),
	)

	if w.dispatcher != nil {
		w.dispatcher.Deliver(ctx, task, files)
	}
	if err := w.notifier.NotifyTaskCompleted(ctx, videoTitle(task), task.VideoID); err != nil {
		logger.Warn("notify task completed", logging.Error(err))
	}
}

// produce gathers the wanted artifacts: reused from cache where possible,
// fetched otherwise, with the audio-fallback policy for transcript-only
// requests against videos that have no transcript.
func (w *Worker) produce(ctx context.Context, task *queue.Task, logger *slog.Logger) ([]*queue.File, error) {
	var files []*queue.File

	// Another task may have populated the cache since admission.
	if task.WantsAudio {
		cached, err := w.cache.Probe(ctx, task.VideoID, queue.FileAudio)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			task.ReusedAudio = true
			files = append(files, cached)
		}
	}
	if task.WantsTranscript {
		cached, err := w.cache.Probe(ctx, task.VideoID, queue.FileTranscript)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			task.ReusedTranscript = true
			task.HasTranscript = true
			files = append(files, cached)
		}
	}

	needAudio := task.WantsAudio && !task.ReusedAudio
	needTranscript := task.WantsTranscript && !task.ReusedTranscript
	if !needAudio && !needTranscript {
		return files, nil
	}

	result, err := w.engine.Fetch(ctx, fetch.Request{
		VideoID:        task.VideoID,
		URL:            task.VideoURL,
		WantAudio:      needAudio,
		WantTranscript: needTranscript,
		AudioDir:       w.cfg.AudioDir(),
		TranscriptDir:  w.cfg.TranscriptDir(),
	})
	if err != nil {
		return nil, err
	}

	if info, err := json.Marshal(result.Info); err == nil {
		task.VideoInfoJSON = string(info)
	}
	if needTranscript {
		task.HasTranscript = result.TranscriptPresent
	}
	if result.Audio != nil {
		file, err := w.persistArtifact(ctx, task.VideoID, queue.FileAudio, result.Audio)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if result.Transcript != nil {
		file, err := w.persistArtifact(ctx, task.VideoID, queue.FileTranscript, result.Transcript)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	// Transcript-only request against a video with no transcript: substitute
	// an audio fetch so the requester still gets something to work with.
	if needTranscript && !task.WantsAudio && !result.TranscriptPresent {
		logger.Info("transcript unavailable, falling back to audio")
		task.AudioFallback = true

		cached, err := w.cache.Probe(ctx, task.VideoID, queue.FileAudio)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			task.ReusedAudio = true
			return append(files, cached), nil
		}

		fallback, err := w.engine.Fetch(ctx, fetch.Request{
			VideoID:       task.VideoID,
			URL:           task.VideoURL,
			WantAudio:     true,
			AudioDir:      w.cfg.AudioDir(),
			TranscriptDir: w.cfg.TranscriptDir(),
		})
		if err != nil {
			return nil, err
		}
		if fallback.Audio != nil {
			file, err := w.persistArtifact(ctx, task.VideoID, queue.FileAudio, fallback.Audio)
			if err != nil {
				return nil, err
			}
			files = append(files, file)
		}
	}
	return files, nil
}

func (w *Worker) persistArtifact(ctx context.Context, videoID string, fileType queue.FileType, artifact *fetch.Artifact) (*queue.File, error) {
	now := time.Now().UTC()
	metadata, _ := json.Marshal(map[string]any{
		"language": artifact.Language,
		"bitrate":  artifact.Bitrate,
	})
	return w.store.UpsertFile(ctx, &queue.File{
		VideoID:        videoID,
		Type:           fileType,
		Path:           artifact.Path,
		Size:           artifact.Size,
		Format:         artifact.Format,
		MetadataJSON:   string(metadata),
		LastAccessedAt: now,
		ExpiresAt:      now.Add(w.retention()),
	})
}

func (w *Worker) fail(ctx context.Context, task *queue.Task, cause error, logger *slog.Logger) {
	now := time.Now().UTC()
	kind := fetch.KindOf(cause)

	if kind.Retryable() {
		attempt := task.RetryCount + 1
		decision := w.policy.Decide(kind, attempt)
		if decision.Retry {
			notBefore := now.Add(decision.Delay)
			if err := w.store.ScheduleRetry(ctx, task.ID, attempt, notBefore); err != nil {
				logger.Error("schedule retry", logging.Error(err))
				return
			}
			logger.Warn("task failed, retry scheduled",
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("delay", decision.Delay),
			)
			return
		}
	}

	task.SetFailed(string(kind), failureMessage(cause), now)
	if err := w.store.Update(ctx, task); err != nil {
		logger.Error("persist failed task", logging.Error(err))
		return
	}

	logger.Error("task failed",
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Int("retry_count", task.RetryCount),
		logging.String(logging.FieldErrorHint, task.ErrorMessage),
	)

	if w.dispatcher != nil {
		w.dispatcher.Deliver(ctx, task, nil)
	}
	if err := w.notifier.NotifyTaskFailed(ctx, task.VideoID, task.ErrorKind, task.ErrorMessage); err != nil {
		logger.Warn("notify task failed", logging.Error(err))
	}
}

func (w *Worker) pause(ctx context.Context) {
	min := w.cfg.Workflow.TaskIntervalMin
	max := w.cfg.Workflow.TaskIntervalMax
	if max <= 0 || max < min {
		return
	}
	delay := time.Duration(min) * time.Second
	if span := max - min; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)+1)) * time.Second
	}
	sleepCtx(ctx, delay)
}

func (w *Worker) retention() time.Duration {
	return time.Duration(w.cfg.Cleanup.RetentionDays) * 24 * time.Hour
}

func failureMessage(err error) string {
	var classified *fetch.ClassifiedError
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	return err.Error()
}

func videoTitle(task *queue.Task) string {
	if task.VideoInfoJSON == "" {
		return ""
	}
	var info fetch.VideoInfo
	if err := json.Unmarshal([]byte(task.VideoInfoJSON), &info); err != nil {
		return ""
	}
	return info.Title
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
