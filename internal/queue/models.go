package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// InFlight reports whether a status counts against the one-per-video dedup
// invariant.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusDownloading
}

// CallbackStatus tracks the outcome of the single webhook delivery campaign
// run when a task reaches a terminal state.
type CallbackStatus string

const (
	CallbackPending CallbackStatus = "pending"
	CallbackSuccess CallbackStatus = "success"
	CallbackFailed  CallbackStatus = "failed"
)

// FileType identifies the artifact kinds cached per video.
type FileType string

const (
	FileAudio      FileType = "audio"
	FileTranscript FileType = "transcript"
)

// ParseFileType converts a string into a known FileType.
func ParseFileType(value string) (FileType, bool) {
	switch FileType(strings.ToLower(strings.TrimSpace(value))) {
	case FileAudio:
		return FileAudio, true
	case FileTranscript:
		return FileTranscript, true
	default:
		return "", false
	}
}

// Task is one orchestration job against a single video resource.
type Task struct {
	ID       string
	VideoID  string
	VideoURL string
	Status   Status

	WantsAudio      bool
	WantsTranscript bool

	// Result flags describing how the job's output was produced.
	HasTranscript    bool
	AudioFallback    bool
	ReusedAudio      bool
	ReusedTranscript bool

	VideoInfoJSON string

	CallbackURL      string
	CallbackSecret   string
	CallbackStatus   CallbackStatus
	CallbackAttempts int

	ErrorKind    string
	ErrorMessage string
	RetryCount   int

	// NotBefore gates worker pickup; retries push it into the future.
	NotBefore   time.Time
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// WantedTypes returns the artifact types this task was asked to produce.
func (t *Task) WantedTypes() []FileType {
	types := make([]FileType, 0, 2)
	if t.WantsAudio {
		types = append(types, FileAudio)
	}
	if t.WantsTranscript {
		types = append(types, FileTranscript)
	}
	return types
}

// Covers reports whether this task's wants are a superset of the requested
// flags, i.e. its output will satisfy a request for (audio, transcript).
func (t *Task) Covers(wantsAudio, wantsTranscript bool) bool {
	if wantsAudio && !t.WantsAudio {
		return false
	}
	if wantsTranscript && !t.WantsTranscript {
		return false
	}
	return true
}

// SetFailed marks the task as terminally failed with a classified error.
func (t *Task) SetFailed(kind, message string, now time.Time) {
	t.Status = StatusFailed
	t.ErrorKind = kind
	t.ErrorMessage = message
	completed := now.UTC()
	t.CompletedAt = &completed
}

// File is one derived artifact, keyed by (video_id, type) so it is shared
// across tasks for the same resource.
type File struct {
	ID           string
	VideoID      string
	Type         FileType
	Path         string
	Size         int64
	Format       string
	MetadataJSON string

	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the file's retention window has lapsed at now.
func (f *File) Expired(now time.Time) bool {
	return f.ExpiresAt.Before(now)
}

// HealthSummary describes aggregated task counts per key lifecycle states.
type HealthSummary struct {
	Total       int
	Pending     int
	Downloading int
	Completed   int
	Failed      int
	Cancelled   int
}
