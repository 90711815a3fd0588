// Package resourcecache is the read path over stored artifacts: it answers
// whether a video already has a non-expired file of a given type, refreshing
// access bookkeeping on every hit so retention follows use.
package resourcecache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"winch/internal/logging"
	"winch/internal/queue"
)

// Cache wraps the store's file tables with retention-aware reads.
type Cache struct {
	store     *queue.Store
	retention time.Duration
	logger    *slog.Logger
}

// New builds a cache over the given store. retention is the sliding window
// applied on every access.
func New(store *queue.Store, retention time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		store:     store,
		retention: retention,
		logger:    logger.With(logging.String(logging.FieldComponent, "resourcecache")),
	}
}

// Probe returns the live artifact for (videoID, fileType), bumping its access
// timestamps, or nil when none exists. Every returned reference has been
// touched, so cleanup never races a file that was just handed out.
func (c *Cache) Probe(ctx context.Context, videoID string, fileType queue.FileType) (*queue.File, error) {
	now := time.Now().UTC()
	file, err := c.store.ActiveFile(ctx, videoID, fileType, now)
	if err != nil {
		return nil, fmt.Errorf("probe cache: %w", err)
	}
	if file == nil {
		return nil, nil
	}
	if err := c.store.TouchFile(ctx, file.ID, now, c.retention); err != nil {
		return nil, fmt.Errorf("refresh cache access: %w", err)
	}
	file.LastAccessedAt = now
	file.ExpiresAt = now.Add(c.retention)

	c.logger.Debug("cache hit",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("file_type", string(fileType)),
	)
	return file, nil
}

// Covering reports whether live artifacts exist for every requested type.
// On a full hit all files are touched and returned; on a partial hit nothing
// is touched and ok is false.
func (c *Cache) Covering(ctx context.Context, videoID string, types []queue.FileType) (map[queue.FileType]*queue.File, bool, error) {
	now := time.Now().UTC()
	hits := make(map[queue.FileType]*queue.File, len(types))
	for _, fileType := range types {
		file, err := c.store.ActiveFile(ctx, videoID, fileType, now)
		if err != nil {
			return nil, false, fmt.Errorf("check cache coverage: %w", err)
		}
		if file == nil {
			return nil, false, nil
		}
		hits[fileType] = file
	}

	for _, file := range hits {
		if err := c.store.TouchFile(ctx, file.ID, now, c.retention); err != nil {
			return nil, false, fmt.Errorf("refresh cache access: %w", err)
		}
		file.LastAccessedAt = now
		file.ExpiresAt = now.Add(c.retention)
	}
	return hits, true, nil
}
