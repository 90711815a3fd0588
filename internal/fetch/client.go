package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"winch/internal/config"
)

const userAgent = "Winch/0.1.0"

// Client talks to the extraction engine over HTTP and downloads the
// resulting artifacts to local disk.
type Client struct {
	baseURL      string
	apiKey       string
	audioQuality int
	cookieFile   string
	httpClient   *http.Client
}

var _ Engine = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds an engine client from configuration.
func NewClient(cfg config.Fetch, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("fetch base url required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	transport := http.DefaultTransport
	if proxy := strings.TrimSpace(cfg.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	client := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		audioQuality: cfg.AudioQuality,
		cookieFile:   strings.TrimSpace(cfg.CookieFile),
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type extractRequest struct {
	VideoID        string `json:"video_id"`
	URL            string `json:"url"`
	WantAudio      bool   `json:"want_audio"`
	WantTranscript bool   `json:"want_transcript"`
	AudioQuality   int    `json:"audio_quality,omitempty"`
	CookieFile     string `json:"cookie_file,omitempty"`
}

type artifactRef struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Size     int64  `json:"size"`
	Language string `json:"language"`
	Bitrate  int    `json:"bitrate"`
}

type extractResponse struct {
	VideoInfo         VideoInfo    `json:"video_info"`
	TranscriptPresent bool         `json:"transcript_present"`
	Audio             *artifactRef `json:"audio"`
	Transcript        *artifactRef `json:"transcript"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch runs one extraction and downloads the returned artifacts into the
// request's destination directories.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	if req.VideoID == "" {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "video id required"}
	}

	payload, err := json.Marshal(extractRequest{
		VideoID:        req.VideoID,
		URL:            req.URL,
		WantAudio:      req.WantAudio,
		WantTranscript: req.WantTranscript,
		AudioQuality:   c.audioQuality,
		CookieFile:     c.cookieFile,
	})
	if err != nil {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "encode extract request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "build extract request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyResponse(resp)
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "decode extract response", Err: err}
	}

	result := &Result{
		Info:              decoded.VideoInfo,
		TranscriptPresent: decoded.TranscriptPresent,
	}
	if decoded.Audio != nil {
		artifact, err := c.download(ctx, decoded.Audio, req.AudioDir, req.VideoID)
		if err != nil {
			return nil, err
		}
		result.Audio = artifact
	}
	if decoded.Transcript != nil {
		artifact, err := c.download(ctx, decoded.Transcript, req.TranscriptDir, req.VideoID)
		if err != nil {
			return nil, err
		}
		result.Transcript = artifact
	}
	return result, nil
}

func classifyResponse(resp *http.Response) *ClassifiedError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Code != "" {
		return Classify(decoded.Error.Code, decoded.Error.Message)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &ClassifiedError{Kind: KindRateLimited, Message: "fetch engine rate limited"}
	}
	return &ClassifiedError{
		Kind:    KindDownloadFailed,
		Message: fmt.Sprintf("fetch engine returned status %d", resp.StatusCode),
	}
}

// download streams one artifact to destDir. Relative artifact URLs resolve
// against the engine base URL.
func (c *Client) download(ctx context.Context, ref *artifactRef, destDir, videoID string) (*Artifact, error) {
	target := ref.URL
	if strings.HasPrefix(target, "/") {
		target = c.baseURL + target
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "build download request", Err: err}
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ClassifiedError{
			Kind:    KindDownloadFailed,
			Message: fmt.Sprintf("artifact download returned status %d", resp.StatusCode),
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "create artifact directory", Err: err}
	}
	format := strings.TrimSpace(ref.Format)
	if format == "" {
		format = "bin"
	}
	path := filepath.Join(destDir, videoID+"."+format)

	out, err := os.Create(path)
	if err != nil {
		return nil, &ClassifiedError{Kind: KindInternal, Message: "create artifact file", Err: err}
	}
	size, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, classifyTransport(err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, &ClassifiedError{Kind: KindInternal, Message: "flush artifact file", Err: closeErr}
	}

	return &Artifact{
		Path:     path,
		Size:     size,
		Format:   format,
		Language: NormalizeLanguage(ref.Language),
		Bitrate:  ref.Bitrate,
	}, nil
}

// NormalizeLanguage canonicalizes a provider language tag ("en_US", "EN")
// into BCP 47 form. Unparseable tags pass through trimmed.
func NormalizeLanguage(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return ""
	}
	parsed, err := language.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		return trimmed
	}
	return parsed.String()
}
