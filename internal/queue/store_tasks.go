package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, video_id, video_url, status, wants_audio, wants_transcript, " +
	"has_transcript, audio_fallback, reused_audio, reused_transcript, video_info_json, " +
	"callback_url, callback_secret, callback_status, callback_attempts, " +
	"error_kind, error_message, retry_count, not_before, created_at, started_at, completed_at"

// NewTaskParams describes a task to be created by admission.
type NewTaskParams struct {
	VideoID         string
	VideoURL        string
	WantsAudio      bool
	WantsTranscript bool
	CallbackURL     string
	CallbackSecret  string
}

// DedupMatch selects how an existing in-flight task may absorb a new request.
type DedupMatch int

const (
	// DedupSuperset absorbs a request when the in-flight task's wants cover it.
	DedupSuperset DedupMatch = iota
	// DedupExact absorbs a request only when the wants match exactly.
	DedupExact
)

// CreateTask inserts a new pending task unless an in-flight task for the same
// video already satisfies the request under the given dedup match. The
// check-and-insert runs on the store's single write connection, so concurrent
// submissions for the same video serialize; the partial unique index on
// in-flight rows backstops exact duplicates.
//
// Returns the task and whether it already existed.
func (s *Store) CreateTask(ctx context.Context, params NewTaskParams, match DedupMatch) (*Task, bool, error) {
	ctx = ensureContext(ctx)
	if params.VideoID == "" {
		return nil, false, errors.New("video id is required")
	}
	if !params.WantsAudio && !params.WantsTranscript {
		return nil, false, errors.New("at least one artifact type must be requested")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findInFlightTx(ctx, tx, params, match)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit create tx: %w", err)
		}
		return existing, true, nil
	}

	now := time.Now().UTC()
	task := &Task{
		ID:              uuid.NewString(),
		VideoID:         params.VideoID,
		VideoURL:        params.VideoURL,
		Status:          StatusPending,
		WantsAudio:      params.WantsAudio,
		WantsTranscript: params.WantsTranscript,
		CallbackURL:     strings.TrimSpace(params.CallbackURL),
		CallbackSecret:  params.CallbackSecret,
		NotBefore:       now,
		CreatedAt:       now,
	}
	if task.CallbackURL != "" {
		task.CallbackStatus = CallbackPending
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, video_id, video_url, status, wants_audio, wants_transcript,
            callback_url, callback_secret, callback_status,
            not_before, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.VideoID,
		task.VideoURL,
		task.Status,
		boolToInt(task.WantsAudio),
		boolToInt(task.WantsTranscript),
		nullableString(task.CallbackURL),
		nullableString(task.CallbackSecret),
		nullableString(string(task.CallbackStatus)),
		formatTime(task.NotBefore),
		formatTime(task.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create tx: %w", err)
	}
	return task, false, nil
}

func findInFlightTx(ctx context.Context, tx *sql.Tx, params NewTaskParams, match DedupMatch) (*Task, error) {
	rows, err := tx.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE video_id = ? AND status IN (?, ?) ORDER BY created_at`,
		params.VideoID,
		StatusPending,
		StatusDownloading,
	)
	if err != nil {
		return nil, fmt.Errorf("query in-flight tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		switch match {
		case DedupExact:
			if task.WantsAudio == params.WantsAudio && task.WantsTranscript == params.WantsTranscript {
				return task, nil
			}
		default:
			if task.Covers(params.WantsAudio, params.WantsTranscript) {
				return task, nil
			}
		}
	}
	return nil, rows.Err()
}

// GetTask fetches a task by identifier.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks ordered newest first, optionally filtered by status,
// along with the total count matching the filter.
func (s *Store) ListTasks(ctx context.Context, status *Status, limit, offset int) ([]*Task, int, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var (
		total int
		rows  *sql.Rows
		err   error
	)
	if status != nil {
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE status = ?`, *status)
		if err := row.Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count tasks: %w", err)
		}
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			*status, limit, offset,
		)
	} else {
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks`)
		if err := row.Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count tasks: %w", err)
		}
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

// NextEligible returns the oldest pending task whose not_before has passed.
func (s *Store) NextEligible(ctx context.Context, now time.Time) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE status = ? AND not_before <= ? ORDER BY created_at LIMIT 1`,
		StatusPending,
		formatTime(now),
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next eligible task: %w", err)
	}
	return task, nil
}

// ClaimDownloading transitions a pending task to downloading. The conditional
// update makes the claim atomic when several workers race for the same task.
func (s *Store) ClaimDownloading(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		StatusDownloading,
		formatTime(now),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Update persists result and error fields of an existing task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, has_transcript = ?, audio_fallback = ?, reused_audio = ?,
             reused_transcript = ?, video_info_json = ?, error_kind = ?, error_message = ?,
             retry_count = ?, not_before = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		task.Status,
		boolToInt(task.HasTranscript),
		boolToInt(task.AudioFallback),
		boolToInt(task.ReusedAudio),
		boolToInt(task.ReusedTranscript),
		nullableString(task.VideoInfoJSON),
		nullableString(task.ErrorKind),
		nullableString(task.ErrorMessage),
		task.RetryCount,
		formatTime(task.NotBefore),
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// ScheduleRetry returns a downloading task to pending with an incremented
// retry count and a backoff gate.
func (s *Store) ScheduleRetry(ctx context.Context, id string, retryCount int, notBefore time.Time) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, retry_count = ?, not_before = ? WHERE id = ?`,
		StatusPending,
		retryCount,
		formatTime(notBefore),
		id,
	)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// Cancel transitions a pending task to cancelled. Tasks that have started
// downloading or reached a terminal state are rejected with ErrNotCancelable.
func (s *Store) Cancel(ctx context.Context, id string) (*Task, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled,
		formatTime(now),
		id,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	task, getErr := s.GetTask(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if task == nil {
		return nil, ErrNotFound
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancelable, task.Status)
	}
	return task, nil
}

// QueuePosition returns the 1-based position of a pending task among pending
// tasks ordered by creation time.
func (s *Store) QueuePosition(ctx context.Context, task *Task) (int, error) {
	if task == nil {
		return 0, errors.New("task is nil")
	}
	ctx = ensureContext(ctx)
	var earlier int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM tasks WHERE status = ? AND created_at < ?`,
		StatusPending,
		formatTime(task.CreatedAt),
	)
	if err := row.Scan(&earlier); err != nil {
		return 0, fmt.Errorf("queue position: %w", err)
	}
	return earlier + 1, nil
}

// ResetInterrupted returns tasks stranded in downloading back to pending.
// In-flight state does not survive a restart, so a downloading row at startup
// means the fetch was interrupted, not failed.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, not_before = ?, started_at = NULL WHERE status = ?`,
		StatusPending,
		formatTime(now),
		StatusDownloading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

// SetCallbackResult records the outcome of a delivery campaign. Task status is
// deliberately untouched: delivery failures never mutate terminal state.
func (s *Store) SetCallbackResult(ctx context.Context, id string, status CallbackStatus, attempts int) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET callback_status = ?, callback_attempts = ? WHERE id = ?`,
		status,
		attempts,
		id,
	)
	if err != nil {
		return fmt.Errorf("set callback result: %w", err)
	}
	return nil
}

// TerminalTasksBefore returns terminal tasks whose completion predates cutoff.
func (s *Store) TerminalTasksBefore(ctx context.Context, cutoff time.Time) ([]*Task, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
         ORDER BY completed_at`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query terminal tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task row.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusDownloading:
			health.Downloading += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id               string
		videoID          string
		videoURL         string
		statusStr        string
		wantsAudio       int
		wantsTranscript  int
		hasTranscript    int
		audioFallback    int
		reusedAudio      int
		reusedTranscript int
		videoInfo        sql.NullString
		callbackURL      sql.NullString
		callbackSecret   sql.NullString
		callbackStatus   sql.NullString
		callbackAttempts int
		errorKind        sql.NullString
		errorMessage     sql.NullString
		retryCount       int
		notBeforeRaw     sql.NullString
		createdRaw       sql.NullString
		startedRaw       sql.NullString
		completedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&videoID,
		&videoURL,
		&statusStr,
		&wantsAudio,
		&wantsTranscript,
		&hasTranscript,
		&audioFallback,
		&reusedAudio,
		&reusedTranscript,
		&videoInfo,
		&callbackURL,
		&callbackSecret,
		&callbackStatus,
		&callbackAttempts,
		&errorKind,
		&errorMessage,
		&retryCount,
		&notBeforeRaw,
		&createdRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:               id,
		VideoID:          videoID,
		VideoURL:         videoURL,
		Status:           Status(statusStr),
		WantsAudio:       wantsAudio != 0,
		WantsTranscript:  wantsTranscript != 0,
		HasTranscript:    hasTranscript != 0,
		AudioFallback:    audioFallback != 0,
		ReusedAudio:      reusedAudio != 0,
		ReusedTranscript: reusedTranscript != 0,
		VideoInfoJSON:    videoInfo.String,
		CallbackURL:      callbackURL.String,
		CallbackSecret:   callbackSecret.String,
		CallbackStatus:   CallbackStatus(callbackStatus.String),
		CallbackAttempts: callbackAttempts,
		ErrorKind:        errorKind.String,
		ErrorMessage:     errorMessage.String,
		RetryCount:       retryCount,
	}

	if notBefore, err := parseTimeString(notBeforeRaw.String); err == nil {
		task.NotBefore = notBefore
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			task.CompletedAt = &completed
		}
	}
	return task, nil
}
