package testsupport

import (
	"context"
	"testing"

	"winch/internal/config"
	"winch/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a pending task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, videoID string, wantsAudio, wantsTranscript bool) *queue.Task {
	t.Helper()

	task, existed, err := store.CreateTask(context.Background(), queue.NewTaskParams{
		VideoID:         videoID,
		VideoURL:        "https://www.youtube.com/watch?v=" + videoID,
		WantsAudio:      wantsAudio,
		WantsTranscript: wantsTranscript,
	}, queue.DedupSuperset)
	if err != nil {
		t.Fatalf("store.CreateTask: %v", err)
	}
	if existed {
		t.Fatalf("store.CreateTask: expected a fresh task for %s", videoID)
	}
	return task
}
