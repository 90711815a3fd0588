package resourcecache_test

import (
	"context"
	"testing"
	"time"

	"winch/internal/queue"
	"winch/internal/resourcecache"
	"winch/internal/testsupport"
)

func seedFile(t *testing.T, store *queue.Store, videoID string, fileType queue.FileType, expiresIn time.Duration) *queue.File {
	t.Helper()
	now := time.Now().UTC()
	file, err := store.UpsertFile(context.Background(), &queue.File{
		VideoID:        videoID,
		Type:           fileType,
		Path:           "/tmp/" + videoID + "." + string(fileType),
		Size:           10,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(expiresIn),
	})
	if err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	return file
}

func TestProbeTouchesHit(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	cache := resourcecache.New(store, 48*time.Hour, nil)
	ctx := context.Background()

	seeded := seedFile(t, store, "cachevideo01", queue.FileAudio, time.Minute)

	hit, err := cache.Probe(ctx, "cachevideo01", queue.FileAudio)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if hit == nil || hit.ID != seeded.ID {
		t.Fatal("expected the seeded file")
	}

	refreshed, err := store.GetFile(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !refreshed.ExpiresAt.After(time.Now().UTC().Add(47 * time.Hour)) {
		t.Fatalf("retention window not extended: %v", refreshed.ExpiresAt)
	}
	if refreshed.LastAccessedAt.Before(seeded.LastAccessedAt) {
		t.Fatal("last_accessed_at went backwards")
	}
}

func TestProbeMissesExpired(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	cache := resourcecache.New(store, 48*time.Hour, nil)

	seedFile(t, store, "cachevideo02", queue.FileAudio, -time.Minute)

	hit, err := cache.Probe(context.Background(), "cachevideo02", queue.FileAudio)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if hit != nil {
		t.Fatal("expired file must not be returned")
	}
}

func TestCoveringFullHit(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	cache := resourcecache.New(store, 48*time.Hour, nil)

	seedFile(t, store, "cachevideo03", queue.FileAudio, time.Hour)
	seedFile(t, store, "cachevideo03", queue.FileTranscript, time.Hour)

	hits, ok, err := cache.Covering(context.Background(), "cachevideo03", []queue.FileType{queue.FileAudio, queue.FileTranscript})
	if err != nil {
		t.Fatalf("Covering: %v", err)
	}
	if !ok || len(hits) != 2 {
		t.Fatalf("expected full coverage, ok=%v hits=%d", ok, len(hits))
	}
}

func TestCoveringPartialHitDoesNotTouch(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	cache := resourcecache.New(store, 48*time.Hour, nil)
	ctx := context.Background()

	seeded := seedFile(t, store, "cachevideo04", queue.FileAudio, time.Minute)

	_, ok, err := cache.Covering(ctx, "cachevideo04", []queue.FileType{queue.FileAudio, queue.FileTranscript})
	if err != nil {
		t.Fatalf("Covering: %v", err)
	}
	if ok {
		t.Fatal("missing transcript should fail coverage")
	}

	untouched, err := store.GetFile(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if untouched.ExpiresAt.After(time.Now().UTC().Add(2 * time.Minute)) {
		t.Fatal("partial coverage must not extend retention")
	}
}
