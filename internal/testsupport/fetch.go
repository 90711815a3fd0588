package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"winch/internal/fetch"
)

// FakeEngine is a scripted fetch.Engine. Script one outcome per call with
// Succeed/Fail; calls beyond the script reuse the last entry.
type FakeEngine struct {
	t testing.TB

	mu      sync.Mutex
	script  []fakeOutcome
	calls   []fetch.Request
	nextIdx int
}

type fakeOutcome struct {
	result *fetch.Result
	err    error
}

// NewFakeEngine builds an empty scripted engine.
func NewFakeEngine(t testing.TB) *FakeEngine {
	return &FakeEngine{t: t}
}

// Succeed scripts a successful extraction. Artifacts are written to the
// request's destination directories at call time so worker code can stat and
// persist them.
func (f *FakeEngine) Succeed(transcriptPresent bool) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeOutcome{result: &fetch.Result{
		Info:              fetch.VideoInfo{Title: "Scripted Video", Author: "Fake Channel"},
		TranscriptPresent: transcriptPresent,
	}})
	return f
}

// Fail scripts a classified failure.
func (f *FakeEngine) Fail(code, message string) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeOutcome{err: fetch.Classify(code, message)})
	return f
}

// Calls returns a copy of the requests seen so far.
func (f *FakeEngine) Calls() []fetch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fetch.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// Fetch implements fetch.Engine.
func (f *FakeEngine) Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	if len(f.script) == 0 {
		f.mu.Unlock()
		f.t.Fatalf("fake engine called with empty script for %s", req.VideoID)
		return nil, nil
	}
	idx := f.nextIdx
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.nextIdx++
	outcome := f.script[idx]
	f.mu.Unlock()

	if outcome.err != nil {
		return nil, outcome.err
	}

	result := &fetch.Result{
		Info:              outcome.result.Info,
		TranscriptPresent: outcome.result.TranscriptPresent,
	}
	if req.WantAudio {
		path := filepath.Join(req.AudioDir, req.VideoID+".mp3")
		WriteArtifact(f.t, path, 64)
		result.Audio = &fetch.Artifact{Path: path, Size: 64, Format: "mp3", Bitrate: 128}
	}
	if req.WantTranscript && result.TranscriptPresent {
		path := filepath.Join(req.TranscriptDir, req.VideoID+".json")
		WriteArtifact(f.t, path, 32)
		result.Transcript = &fetch.Artifact{Path: path, Size: 32, Format: "json", Language: "en"}
	}
	return result, nil
}
