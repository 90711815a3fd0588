package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"winch/internal/admission"
	"winch/internal/config"
	"winch/internal/queue"
	"winch/internal/resourcecache"
	"winch/internal/testsupport"
)

const watchURL = "https://www.youtube.com/watch?v="

func newService(t *testing.T, opts ...testsupport.ConfigOption) (*admission.Service, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	cache := resourcecache.New(store, time.Duration(cfg.Cleanup.RetentionDays)*24*time.Hour, nil)
	return admission.New(store, cache, cfg, nil), store, cfg
}

func TestSubmitRejectsEmptyWants(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Submit(context.Background(), admission.SubmitRequest{
		VideoURL: watchURL + "dQw4w9WgXcQ",
	})
	if !errors.Is(err, admission.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsBadCallback(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Submit(context.Background(), admission.SubmitRequest{
		VideoURL:    watchURL + "dQw4w9WgXcQ",
		WantsAudio:  true,
		CallbackURL: "not-a-url",
	})
	if !errors.Is(err, admission.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitEnqueuesWithPosition(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, admission.SubmitRequest{
		VideoURL:        watchURL + "aaaaaaaaaa1",
		WantsAudio:      true,
		WantsTranscript: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.CacheHit {
		t.Fatal("empty cache must not report a hit")
	}
	if receipt.Task == nil || receipt.Task.Status != queue.StatusPending {
		t.Fatalf("expected pending task, got %+v", receipt.Task)
	}
	if receipt.Position != 1 {
		t.Fatalf("expected position 1, got %d", receipt.Position)
	}

	second, err := svc.Submit(ctx, admission.SubmitRequest{
		VideoURL:   watchURL + "aaaaaaaaaa2",
		WantsAudio: true,
	})
	if err != nil {
		t.Fatalf("Submit (second): %v", err)
	}
	if second.Position != 2 {
		t.Fatalf("expected position 2, got %d", second.Position)
	}
}

func TestSubmitCacheHitShortCircuits(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "cachedvideo",
		Type:           queue.FileAudio,
		Path:           "/tmp/cachedvideo.mp3",
		Size:           10,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	receipt, err := svc.Submit(ctx, admission.SubmitRequest{
		VideoURL:   watchURL + "cachedvideo",
		WantsAudio: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !receipt.CacheHit || receipt.Task != nil {
		t.Fatalf("expected cache hit with no task, got %+v", receipt)
	}
	if receipt.Files[queue.FileAudio] == nil {
		t.Fatal("cache hit must carry the reused file")
	}

	// No task row may have been created.
	_, total, err := store.ListTasks(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 0 {
		t.Fatalf("cache hit created %d task rows", total)
	}
}

func TestSubmitPartialCacheStillEnqueues(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.UpsertFile(ctx, &queue.File{
		VideoID:        "partialvid1",
		Type:           queue.FileAudio,
		Path:           "/tmp/partialvid1.mp3",
		Size:           10,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	receipt, err := svc.Submit(ctx, admission.SubmitRequest{
		VideoURL:        watchURL + "partialvid1",
		WantsAudio:      true,
		WantsTranscript: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.CacheHit {
		t.Fatal("missing transcript must not be a cache hit")
	}
	if receipt.Task == nil {
		t.Fatal("expected an enqueued task")
	}
}

func TestSubmitDedupPolicies(t *testing.T) {
	t.Run("superset", func(t *testing.T) {
		svc, _, _ := newService(t)
		ctx := context.Background()

		broad, err := svc.Submit(ctx, admission.SubmitRequest{
			VideoURL:        watchURL + "dedupvideo1",
			WantsAudio:      true,
			WantsTranscript: true,
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		narrow, err := svc.Submit(ctx, admission.SubmitRequest{
			VideoURL:   watchURL + "dedupvideo1",
			WantsAudio: true,
		})
		if err != nil {
			t.Fatalf("Submit (narrow): %v", err)
		}
		if !narrow.Existed || narrow.Task.ID != broad.Task.ID {
			t.Fatal("superset policy should absorb the narrower request")
		}

		wider, err := svc.Submit(ctx, admission.SubmitRequest{
			VideoURL:        watchURL + "dedupvideo2",
			WantsAudio:      true,
			WantsTranscript: false,
		})
		if err != nil {
			t.Fatalf("Submit (audio-only): %v", err)
		}
		both, err := svc.Submit(ctx, admission.SubmitRequest{
			VideoURL:        watchURL + "dedupvideo2",
			WantsAudio:      true,
			WantsTranscript: true,
		})
		if err != nil {
			t.Fatalf("Submit (both): %v", err)
		}
		if both.Existed || both.Task.ID == wider.Task.ID {
			t.Fatal("audio-only task must not absorb an audio+transcript request")
		}
	})

	t.Run("exact", func(t *testing.T) {
		svc, _, _ := newService(t, testsupport.WithDedupPolicy(config.DedupPolicyExact))
		ctx := context.Background()

		broad, err := svc.Submit(ctx, admission.SubmitRequest{
			VideoURL:        watchURL + "dedupvideo3",
			WantsAudio:      true,
			WantsTranscript: true,
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		narrow, err := svc.Submit(ctx, admission.SubmitRequest{
			VideoURL:   watchURL + "dedupvideo3",
			WantsAudio: true,
		})
		if err != nil {
			t.Fatalf("Submit (narrow): %v", err)
		}
		if narrow.Existed || narrow.Task.ID == broad.Task.ID {
			t.Fatal("exact policy must not absorb a request with different wants")
		}
	})
}

func TestEstimateWait(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.TaskIntervalMin = 300
	cfg.Workflow.TaskIntervalMax = 1800
	store := testsupport.MustOpenStore(t, cfg)
	cache := resourcecache.New(store, time.Hour, nil)
	svc := admission.New(store, cache, cfg, nil)

	if wait := svc.EstimateWait(2); wait != 2*1050*time.Second {
		t.Fatalf("unexpected wait estimate: %v", wait)
	}
	if wait := svc.EstimateWait(0); wait != 0 {
		t.Fatalf("position 0 should estimate no wait, got %v", wait)
	}
}

func TestGetAndCancel(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, admission.SubmitRequest{
		VideoURL:   watchURL + "cancelvideo",
		WantsAudio: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fetched, err := svc.Get(ctx, receipt.Task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.ID != receipt.Task.ID {
		t.Fatal("Get returned a different task")
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cancelled, err := svc.Cancel(ctx, receipt.Task.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}
