package api

import "encoding/json"

// SubmitRequest is the inbound task creation body.
type SubmitRequest struct {
	URL             string `json:"url"`
	WantsAudio      bool   `json:"wants_audio"`
	WantsTranscript bool   `json:"wants_transcript"`
	CallbackURL     string `json:"callback_url,omitempty"`
	CallbackSecret  string `json:"callback_secret,omitempty"`
}

// SubmitReceipt answers a task creation request. On a cache hit TaskID is
// empty, CacheHit is true, and Files carries the reused artifacts.
type SubmitReceipt struct {
	TaskID        string     `json:"task_id,omitempty"`
	Status        string     `json:"status"`
	CacheHit      bool       `json:"cache_hit"`
	Deduplicated  bool       `json:"deduplicated,omitempty"`
	Position      int        `json:"position,omitempty"`
	EstimatedWait int        `json:"estimated_wait_seconds,omitempty"`
	Files         []FileView `json:"files,omitempty"`
}

// TaskView is the transport representation of a task.
type TaskView struct {
	ID               string           `json:"id"`
	VideoID          string           `json:"video_id"`
	VideoURL         string           `json:"video_url"`
	Status           string           `json:"status"`
	WantsAudio       bool             `json:"wants_audio"`
	WantsTranscript  bool             `json:"wants_transcript"`
	HasTranscript    bool             `json:"has_transcript"`
	AudioFallback    bool             `json:"audio_fallback"`
	ReusedAudio      bool             `json:"reused_audio"`
	ReusedTranscript bool             `json:"reused_transcript"`
	RetryCount       int              `json:"retry_count"`
	Position         int              `json:"position,omitempty"`
	EstimatedWait    int              `json:"estimated_wait_seconds,omitempty"`
	VideoInfo        json.RawMessage  `json:"video_info,omitempty"`
	Error            *ErrorDescriptor `json:"error,omitempty"`
	CallbackStatus   string           `json:"callback_status,omitempty"`
	CallbackAttempts int              `json:"callback_attempts,omitempty"`
	Files            []FileView       `json:"files,omitempty"`
	CreatedAt        string           `json:"created_at,omitempty"`
	StartedAt        string           `json:"started_at,omitempty"`
	CompletedAt      string           `json:"completed_at,omitempty"`
}

// FileView is the transport representation of a cached artifact.
type FileView struct {
	ID        string          `json:"id"`
	VideoID   string          `json:"video_id"`
	Type      string          `json:"type"`
	Size      int64           `json:"size"`
	Format    string          `json:"format,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	URL       string          `json:"url,omitempty"`
	ExpiresAt string          `json:"expires_at,omitempty"`
}

// ErrorDescriptor carries a classified failure in API payloads.
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks  []TaskView `json:"tasks"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// StatusResponse aggregates daemon health for /api/status.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	DBPath      string         `json:"db_path"`
	QueueCounts map[string]int `json:"queue_counts"`
	Disk        DiskUsage      `json:"disk"`
}

// DiskUsage reports artifact store consumption.
type DiskUsage struct {
	FileCount  int   `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`
}

// ErrorBody is the uniform error envelope returned by the HTTP surface.
type ErrorBody struct {
	Error string `json:"error"`
}
