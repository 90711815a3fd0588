package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"winch/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.Fetch{
		BaseURL:        server.URL,
		APIKey:         "secret",
		TimeoutSeconds: 5,
		AudioQuality:   128,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestClientFetchDownloadsArtifacts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.VideoID != "abc123def45" || !req.WantAudio || !req.WantTranscript {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(extractResponse{
			VideoInfo:         VideoInfo{Title: "A Video", Author: "Someone"},
			TranscriptPresent: true,
			Audio:             &artifactRef{URL: "/artifacts/audio", Format: "mp3", Bitrate: 128},
			Transcript:        &artifactRef{URL: "/artifacts/transcript", Format: "json", Language: "en_US"},
		})
	})
	mux.HandleFunc("/artifacts/audio", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	})
	mux.HandleFunc("/artifacts/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[]}`))
	})
	client := newTestClient(t, mux)

	base := t.TempDir()
	result, err := client.Fetch(context.Background(), Request{
		VideoID:        "abc123def45",
		URL:            "https://www.youtube.com/watch?v=abc123def45",
		WantAudio:      true,
		WantTranscript: true,
		AudioDir:       filepath.Join(base, "audio"),
		TranscriptDir:  filepath.Join(base, "transcript"),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Info.Title != "A Video" || !result.TranscriptPresent {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Audio == nil || result.Audio.Size != int64(len("audio-bytes")) {
		t.Fatalf("unexpected audio artifact: %+v", result.Audio)
	}
	if result.Transcript == nil || result.Transcript.Language != "en-US" {
		t.Fatalf("language not normalized: %+v", result.Transcript)
	}
	if _, err := os.Stat(result.Audio.Path); err != nil {
		t.Fatalf("audio artifact not on disk: %v", err)
	}
}

func TestClientFetchClassifiesProviderError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "VIDEO_PRIVATE", "message": "private video"},
		})
	}))

	_, err := client.Fetch(context.Background(), Request{VideoID: "abc123def45"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := KindOf(err); kind != KindVideoPrivate {
		t.Fatalf("expected video_private, got %s", kind)
	}
}

func TestClientFetchClassifiesTransportError(t *testing.T) {
	client, err := NewClient(config.Fetch{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Fetch(context.Background(), Request{VideoID: "abc123def45"})
	if kind := KindOf(err); kind != KindNetworkError {
		t.Fatalf("expected network_error, got %s (%v)", kind, err)
	}
}

func TestClientFetchMapsBareStatusCodes(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	_, err := client.Fetch(context.Background(), Request{VideoID: "abc123def45"})
	if kind := KindOf(err); kind != KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", kind)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"en_US":   "en-US",
		"EN":      "en",
		"":        "",
		"???":     "???",
		"pt-br":   "pt-BR",
		" de-DE ": "de-DE",
	}
	for input, want := range cases {
		if got := NormalizeLanguage(input); got != want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", input, got, want)
		}
	}
}
