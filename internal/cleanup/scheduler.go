// Package cleanup owns the periodic retention sweep: expired artifacts are
// deleted from disk and the store, then terminal task records past retention
// with no surviving files are pruned. Every row is isolated; one failure
// never aborts the sweep.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"winch/internal/config"
	"winch/internal/logging"
	"winch/internal/notifications"
	"winch/internal/queue"
)

// Summary reports one sweep's effect.
type Summary struct {
	FilesRemoved int
	TasksRemoved int
	BytesFreed   int64
}

// Scheduler runs sweeps on a fixed interval.
type Scheduler struct {
	store    *queue.Store
	cfg      *config.Config
	notifier notifications.Service
	logger   *slog.Logger
}

// New builds a cleanup scheduler.
func New(store *queue.Store, cfg *config.Config, notifier notifications.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Scheduler{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "cleanup")),
	}
}

// Run sweeps every cleanup.interval_hours until the context is cancelled.
// The first sweep happens one interval after start.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Cleanup.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := s.Sweep(ctx)
			if summary.FilesRemoved > 0 || summary.TasksRemoved > 0 {
				if err := s.notifier.NotifyCleanupCompleted(ctx, summary.FilesRemoved, summary.TasksRemoved, summary.BytesFreed); err != nil {
					s.logger.Warn("notify cleanup summary", logging.Error(err))
				}
			}
		}
	}
}

// Sweep runs one pass: expired file deletion followed by the orphan task
// sweep.
func (s *Scheduler) Sweep(ctx context.Context) Summary {
	now := time.Now().UTC()
	summary := Summary{}

	expired, err := s.store.ExpiredFiles(ctx, now)
	if err != nil {
		s.logger.Error("list expired files", logging.Error(err))
		return summary
	}

	for _, file := range expired {
		removed, bytes := s.removeFile(ctx, file)
		if removed {
			summary.FilesRemoved++
			summary.BytesFreed += bytes
		}
	}

	summary.TasksRemoved = s.sweepOrphanTasks(ctx, now)

	s.logger.Info("cleanup sweep finished",
		logging.Int("files_removed", summary.FilesRemoved),
		logging.Int("tasks_removed", summary.TasksRemoved),
		logging.Int64("bytes_freed", summary.BytesFreed),
	)
	return summary
}

// removeFile deletes one expired artifact, rechecking expiry right before the
// physical delete to narrow the race against a concurrent cache reuse.
func (s *Scheduler) removeFile(ctx context.Context, file *queue.File) (bool, int64) {
	current, err := s.store.GetFile(ctx, file.ID)
	if err != nil {
		s.logger.Warn("recheck expired file", logging.String("file_id", file.ID), logging.Error(err))
		return false, 0
	}
	if current == nil || !current.Expired(time.Now().UTC()) {
		return false, 0
	}

	if err := os.Remove(current.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("delete artifact",
			logging.String("file_id", current.ID),
			logging.String("path", current.Path),
			logging.Error(err),
		)
		return false, 0
	}
	if _, err := s.store.DeleteFile(ctx, current.ID); err != nil {
		s.logger.Warn("delete file row", logging.String("file_id", current.ID), logging.Error(err))
		return false, 0
	}

	s.logger.Debug("expired artifact removed",
		logging.String(logging.FieldVideoID, current.VideoID),
		logging.String("file_type", string(current.Type)),
	)
	return true, current.Size
}

// sweepOrphanTasks prunes terminal tasks past retention whose video has no
// surviving artifacts.
func (s *Scheduler) sweepOrphanTasks(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.retention())
	orphans, err := s.store.TerminalTasksBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("list terminal tasks", logging.Error(err))
		return 0
	}

	removed := 0
	for _, task := range orphans {
		hasFiles, err := s.store.HasFilesForVideo(ctx, task.VideoID)
		if err != nil {
			s.logger.Warn("check surviving files", logging.String(logging.FieldTaskID, task.ID), logging.Error(err))
			continue
		}
		if hasFiles {
			continue
		}
		if _, err := s.store.DeleteTask(ctx, task.ID); err != nil {
			s.logger.Warn("delete task row", logging.String(logging.FieldTaskID, task.ID), logging.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func (s *Scheduler) retention() time.Duration {
	return time.Duration(s.cfg.Cleanup.RetentionDays) * 24 * time.Hour
}
