package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const fileColumns = "id, video_id, type, path, size, format, metadata_json, " +
	"created_at, last_accessed_at, expires_at"

// UpsertFile writes an artifact row keyed by (video_id, type). A conflicting
// row from an earlier task is refreshed in place, preserving the invariant of
// at most one non-expired file per key.
func (s *Store) UpsertFile(ctx context.Context, file *File) (*File, error) {
	if file == nil {
		return nil, errors.New("file is nil")
	}
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	if file.LastAccessedAt.IsZero() {
		file.LastAccessedAt = now
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO files (
            id, video_id, type, path, size, format, metadata_json,
            created_at, last_accessed_at, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (video_id, type) DO UPDATE SET
            path = excluded.path,
            size = excluded.size,
            format = excluded.format,
            metadata_json = excluded.metadata_json,
            last_accessed_at = excluded.last_accessed_at,
            expires_at = excluded.expires_at`,
		file.ID,
		file.VideoID,
		file.Type,
		file.Path,
		file.Size,
		nullableString(file.Format),
		nullableString(file.MetadataJSON),
		formatTime(file.CreatedAt),
		formatTime(file.LastAccessedAt),
		formatTime(file.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert file: %w", err)
	}

	// Re-read so the caller sees the surviving row id after a conflict refresh.
	return s.FileByKey(ctx, file.VideoID, file.Type)
}

// GetFile fetches a file by identifier.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// FileByKey fetches the file for a (video, type) pair regardless of expiry.
func (s *Store) FileByKey(ctx context.Context, videoID string, fileType FileType) (*File, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+fileColumns+` FROM files WHERE video_id = ? AND type = ?`,
		videoID,
		fileType,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by key: %w", err)
	}
	return file, nil
}

// ActiveFile returns the non-expired file for a (video, type) pair, or nil.
func (s *Store) ActiveFile(ctx context.Context, videoID string, fileType FileType, now time.Time) (*File, error) {
	file, err := s.FileByKey(ctx, videoID, fileType)
	if err != nil {
		return nil, err
	}
	if file == nil || file.Expired(now) {
		return nil, nil
	}
	return file, nil
}

// FilesForVideo returns all file rows for a video.
func (s *Store) FilesForVideo(ctx context.Context, videoID string) ([]*File, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files WHERE video_id = ? ORDER BY type`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("files for video: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// TouchFile refreshes access bookkeeping: last_accessed_at moves to now and
// expires_at is recomputed from the retention window.
func (s *Store) TouchFile(ctx context.Context, id string, now time.Time, retention time.Duration) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE files SET last_accessed_at = ?, expires_at = ? WHERE id = ?`,
		formatTime(now),
		formatTime(now.Add(retention)),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	return nil
}

// ExpiredFiles returns files whose retention window lapsed before now.
func (s *Store) ExpiredFiles(ctx context.Context, now time.Time) ([]*File, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files WHERE expires_at < ? ORDER BY expires_at`,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// DeleteFile removes a file row.
func (s *Store) DeleteFile(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// HasFilesForVideo reports whether any file rows survive for a video.
func (s *Store) HasFilesForVideo(ctx context.Context, videoID string) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE video_id = ?`, videoID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count files for video: %w", err)
	}
	return count > 0, nil
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (*File, error) {
	var (
		id           string
		videoID      string
		typeStr      string
		path         string
		size         int64
		format       sql.NullString
		metadata     sql.NullString
		createdRaw   sql.NullString
		accessedRaw  sql.NullString
		expiresRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&videoID,
		&typeStr,
		&path,
		&size,
		&format,
		&metadata,
		&createdRaw,
		&accessedRaw,
		&expiresRaw,
	); err != nil {
		return nil, err
	}

	file := &File{
		ID:           id,
		VideoID:      videoID,
		Type:         FileType(typeStr),
		Path:         path,
		Size:         size,
		Format:       format.String,
		MetadataJSON: metadata.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	if accessed, err := parseTimeString(accessedRaw.String); err == nil {
		file.LastAccessedAt = accessed
	}
	if expires, err := parseTimeString(expiresRaw.String); err == nil {
		file.ExpiresAt = expires
	}
	return file, nil
}
