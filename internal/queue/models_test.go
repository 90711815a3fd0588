package queue

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Pending "); !ok || status != StatusPending {
		t.Fatalf("expected pending, got %q ok=%v", status, ok)
	}
	if _, ok := ParseStatus("exploded"); ok {
		t.Fatal("unknown status must not parse")
	}
	if _, ok := ParseStatus(""); ok {
		t.Fatal("empty status must not parse")
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
		if status.InFlight() {
			t.Fatalf("%s should not be in flight", status)
		}
	}
	for _, status := range []Status{StatusPending, StatusDownloading} {
		if status.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
		if !status.InFlight() {
			t.Fatalf("%s should be in flight", status)
		}
	}
}

func TestTaskCovers(t *testing.T) {
	broad := &Task{WantsAudio: true, WantsTranscript: true}
	if !broad.Covers(true, false) || !broad.Covers(false, true) || !broad.Covers(true, true) {
		t.Fatal("broad task should cover every narrower request")
	}

	audioOnly := &Task{WantsAudio: true}
	if audioOnly.Covers(false, true) {
		t.Fatal("audio-only task must not cover a transcript request")
	}
	if !audioOnly.Covers(true, false) {
		t.Fatal("audio-only task should cover an audio request")
	}
}

func TestWantedTypes(t *testing.T) {
	task := &Task{WantsAudio: true, WantsTranscript: true}
	types := task.WantedTypes()
	if len(types) != 2 || types[0] != FileAudio || types[1] != FileTranscript {
		t.Fatalf("unexpected wanted types: %v", types)
	}
	if got := (&Task{WantsTranscript: true}).WantedTypes(); len(got) != 1 || got[0] != FileTranscript {
		t.Fatalf("unexpected wanted types: %v", got)
	}
}

func TestFileExpired(t *testing.T) {
	now := time.Now().UTC()
	file := &File{ExpiresAt: now.Add(time.Hour)}
	if file.Expired(now) {
		t.Fatal("file within retention should not be expired")
	}
	if !file.Expired(now.Add(2 * time.Hour)) {
		t.Fatal("file past retention should be expired")
	}
}
