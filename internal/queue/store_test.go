package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"winch/internal/queue"
	"winch/internal/testsupport"
)

func TestCreateTaskDedupSuperset(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, existed, err := store.CreateTask(ctx, queue.NewTaskParams{
		VideoID:         "dQw4w9WgXcQ",
		VideoURL:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		WantsAudio:      true,
		WantsTranscript: true,
	}, queue.DedupSuperset)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if existed {
		t.Fatal("first task should not report existed")
	}

	second, existed, err := store.CreateTask(ctx, queue.NewTaskParams{
		VideoID:    "dQw4w9WgXcQ",
		VideoURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		WantsAudio: true,
	}, queue.DedupSuperset)
	if err != nil {
		t.Fatalf("CreateTask (dedup): %v", err)
	}
	if !existed {
		t.Fatal("audio-only request should be absorbed by the broader in-flight task")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing task %s, got %s", first.ID, second.ID)
	}

	// A terminal task no longer absorbs new requests.
	first.Status = queue.StatusCompleted
	now := time.Now().UTC()
	first.CompletedAt = &now
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	third, existed, err := store.CreateTask(ctx, queue.NewTaskParams{
		VideoID:    "dQw4w9WgXcQ",
		VideoURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		WantsAudio: true,
	}, queue.DedupSuperset)
	if err != nil {
		t.Fatalf("CreateTask (after terminal): %v", err)
	}
	if existed || third.ID == first.ID {
		t.Fatal("completed task must not absorb a new request")
	}
}

func TestCreateTaskDedupExact(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	broad := testsupport.NewTask(t, store, "exactvideo01", true, true)

	narrow, existed, err := store.CreateTask(ctx, queue.NewTaskParams{
		VideoID:    "exactvideo01",
		VideoURL:   "https://www.youtube.com/watch?v=exactvideo01",
		WantsAudio: true,
	}, queue.DedupExact)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if existed {
		t.Fatal("exact policy must not absorb a request with different wants")
	}
	if narrow.ID == broad.ID {
		t.Fatal("expected a new task under exact policy")
	}

	same, existed, err := store.CreateTask(ctx, queue.NewTaskParams{
		VideoID:         "exactvideo01",
		VideoURL:        "https://www.youtube.com/watch?v=exactvideo01",
		WantsAudio:      true,
		WantsTranscript: true,
	}, queue.DedupExact)
	if err != nil {
		t.Fatalf("CreateTask (exact match): %v", err)
	}
	if !existed || same.ID != broad.ID {
		t.Fatal("identical wants should dedup under exact policy")
	}
}

func TestCreateTaskRejectsEmptyWants(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, _, err := store.CreateTask(context.Background(), queue.NewTaskParams{
		VideoID:  "novideo00001",
		VideoURL: "https://www.youtube.com/watch?v=novideo00001",
	}, queue.DedupSuperset)
	if err == nil {
		t.Fatal("expected error for request with no artifact types")
	}
}

func TestClaimAndRetryFlow(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	task := testsupport.NewTask(t, store, "claimvideo01", true, false)

	eligible, err := store.NextEligible(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if eligible == nil || eligible.ID != task.ID {
		t.Fatalf("expected task %s to be eligible", task.ID)
	}

	claimed, err := store.ClaimDownloading(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("ClaimDownloading: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed")
	}
	claimed, err = store.ClaimDownloading(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("ClaimDownloading (second): %v", err)
	}
	if claimed {
		t.Fatal("second claim must fail once the task is downloading")
	}

	if err := store.ScheduleRetry(ctx, task.ID, 1, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}
	eligible, err = store.NextEligible(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("NextEligible (gated): %v", err)
	}
	if eligible != nil {
		t.Fatal("retry gate should hide the task until not_before passes")
	}
	eligible, err = store.NextEligible(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("NextEligible (after gate): %v", err)
	}
	if eligible == nil || eligible.RetryCount != 1 {
		t.Fatalf("expected retried task with count 1, got %+v", eligible)
	}
}

func TestNextEligibleOrdersByCreation(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewTask(t, store, "ordervideo01", true, false)
	testsupport.NewTask(t, store, "ordervideo02", true, false)

	eligible, err := store.NextEligible(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if eligible == nil || eligible.ID != first.ID {
		t.Fatal("oldest pending task should be picked first")
	}
}

func TestCancel(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "cancelvideo1", true, true)
	cancelled, err := store.Cancel(ctx, task.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != queue.StatusCancelled || cancelled.CompletedAt == nil {
		t.Fatalf("unexpected cancelled task state: %+v", cancelled)
	}

	running := testsupport.NewTask(t, store, "cancelvideo2", true, true)
	if _, err := store.ClaimDownloading(ctx, running.ID, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimDownloading: %v", err)
	}
	if _, err := store.Cancel(ctx, running.ID); !errors.Is(err, queue.ErrNotCancelable) {
		t.Fatalf("expected ErrNotCancelable, got %v", err)
	}

	if _, err := store.Cancel(ctx, "missing-task"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetInterrupted(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "resetvideo01", true, false)
	if _, err := store.ClaimDownloading(ctx, task.ID, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimDownloading: %v", err)
	}

	reset, err := store.ResetInterrupted(ctx)
	if err != nil {
		t.Fatalf("ResetInterrupted: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset task, got %d", reset)
	}

	refreshed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if refreshed.Status != queue.StatusPending || refreshed.StartedAt != nil {
		t.Fatalf("unexpected state after reset: %+v", refreshed)
	}
}

func TestListTasksFiltersAndCounts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "listvideo001", true, false)
	second := testsupport.NewTask(t, store, "listvideo002", true, true)
	if _, err := store.Cancel(ctx, second.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pending := queue.StatusPending
	tasks, total, err := store.ListTasks(ctx, &pending, 10, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 1 || len(tasks) != 1 || tasks[0].VideoID != "listvideo001" {
		t.Fatalf("unexpected pending list: total=%d tasks=%d", total, len(tasks))
	}

	tasks, total, err = store.ListTasks(ctx, nil, 1, 0)
	if err != nil {
		t.Fatalf("ListTasks (all): %v", err)
	}
	if total != 2 || len(tasks) != 1 {
		t.Fatalf("expected total 2 with 1 page row, got total=%d rows=%d", total, len(tasks))
	}
	if tasks[0].VideoID != "listvideo002" {
		t.Fatal("list should be ordered newest first")
	}
}

func TestQueuePosition(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewTask(t, store, "posvideo0001", true, false)
	second := testsupport.NewTask(t, store, "posvideo0002", true, false)

	pos, err := store.QueuePosition(ctx, first)
	if err != nil {
		t.Fatalf("QueuePosition: %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
	pos, err = store.QueuePosition(ctx, second)
	if err != nil {
		t.Fatalf("QueuePosition (second): %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected position 2, got %d", pos)
	}
}

func TestSetCallbackResult(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "cbvideo00001", true, false)
	if err := store.SetCallbackResult(ctx, task.ID, queue.CallbackFailed, 3); err != nil {
		t.Fatalf("SetCallbackResult: %v", err)
	}

	refreshed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if refreshed.CallbackStatus != queue.CallbackFailed || refreshed.CallbackAttempts != 3 {
		t.Fatalf("unexpected callback bookkeeping: %+v", refreshed)
	}
	// Delivery bookkeeping never touches lifecycle status.
	if refreshed.Status != queue.StatusPending {
		t.Fatalf("callback result must not change task status, got %s", refreshed.Status)
	}
}

func TestTerminalTasksBefore(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	old := testsupport.NewTask(t, store, "termvideo001", true, false)
	old.Status = queue.StatusCompleted
	oldDone := now.Add(-72 * time.Hour)
	old.CompletedAt = &oldDone
	if err := store.Update(ctx, old); err != nil {
		t.Fatalf("Update: %v", err)
	}

	recent := testsupport.NewTask(t, store, "termvideo002", true, false)
	recent.Status = queue.StatusFailed
	recentDone := now.Add(-time.Hour)
	recent.CompletedAt = &recentDone
	if err := store.Update(ctx, recent); err != nil {
		t.Fatalf("Update (recent): %v", err)
	}

	expired, err := store.TerminalTasksBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("TerminalTasksBefore: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expected only the old task, got %d rows", len(expired))
	}
}

func TestFileUpsertRefreshesExistingRow(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "filevideo001",
		Type:           queue.FileAudio,
		Path:           "/tmp/audio-old.mp3",
		Size:           100,
		Format:         "mp3",
		LastAccessedAt: now,
		ExpiresAt:      now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	second, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "filevideo001",
		Type:           queue.FileAudio,
		Path:           "/tmp/audio-new.mp3",
		Size:           200,
		Format:         "mp3",
		LastAccessedAt: now,
		ExpiresAt:      now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertFile (refresh): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("conflict refresh must keep row id %s, got %s", first.ID, second.ID)
	}
	if second.Path != "/tmp/audio-new.mp3" || second.Size != 200 {
		t.Fatalf("row not refreshed: %+v", second)
	}

	files, err := store.FilesForVideo(ctx, "filevideo001")
	if err != nil {
		t.Fatalf("FilesForVideo: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected single row per (video, type), got %d", len(files))
	}
}

func TestActiveFileHonorsExpiry(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	stored, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "filevideo002",
		Type:           queue.FileTranscript,
		Path:           "/tmp/transcript.json",
		Size:           10,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	active, err := store.ActiveFile(ctx, "filevideo002", queue.FileTranscript, now)
	if err != nil {
		t.Fatalf("ActiveFile: %v", err)
	}
	if active == nil || active.ID != stored.ID {
		t.Fatal("expected the live file")
	}

	active, err = store.ActiveFile(ctx, "filevideo002", queue.FileTranscript, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ActiveFile (expired): %v", err)
	}
	if active != nil {
		t.Fatal("expired file must not be returned as active")
	}
}

func TestTouchFileExtendsRetention(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	stored, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "filevideo003",
		Type:           queue.FileAudio,
		Path:           "/tmp/audio.mp3",
		Size:           10,
		LastAccessedAt: now.Add(-time.Hour),
		ExpiresAt:      now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	if err := store.TouchFile(ctx, stored.ID, now, 24*time.Hour); err != nil {
		t.Fatalf("TouchFile: %v", err)
	}
	refreshed, err := store.GetFile(ctx, stored.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !refreshed.ExpiresAt.After(now.Add(23 * time.Hour)) {
		t.Fatalf("expiry not extended: %v", refreshed.ExpiresAt)
	}
	if refreshed.LastAccessedAt.Before(now.Add(-time.Second)) {
		t.Fatalf("access time not bumped: %v", refreshed.LastAccessedAt)
	}
}

func TestExpiredFilesAndDelete(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	stale, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "filevideo004",
		Type:           queue.FileAudio,
		Path:           "/tmp/stale.mp3",
		Size:           10,
		LastAccessedAt: now.Add(-48 * time.Hour),
		ExpiresAt:      now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertFile (stale): %v", err)
	}
	if _, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "filevideo005",
		Type:           queue.FileAudio,
		Path:           "/tmp/live.mp3",
		Size:           10,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpsertFile (live): %v", err)
	}

	expired, err := store.ExpiredFiles(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredFiles: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected only the stale file, got %d rows", len(expired))
	}

	deleted, err := store.DeleteFile(ctx, stale.ID)
	if err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to remove the row")
	}

	has, err := store.HasFilesForVideo(ctx, "filevideo004")
	if err != nil {
		t.Fatalf("HasFilesForVideo: %v", err)
	}
	if has {
		t.Fatal("video should have no surviving files")
	}
}

func TestHealthAggregatesStatuses(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "healthvideo1", true, false)
	done := testsupport.NewTask(t, store, "healthvideo2", true, false)
	done.Status = queue.StatusCompleted
	now := time.Now().UTC()
	done.CompletedAt = &now
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}
