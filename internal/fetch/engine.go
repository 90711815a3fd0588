package fetch

import "context"

// Request asks the engine for the artifacts of a single video.
type Request struct {
	VideoID        string
	URL            string
	WantAudio      bool
	WantTranscript bool
	// AudioDir/TranscriptDir are where downloaded artifacts land.
	AudioDir      string
	TranscriptDir string
}

// VideoInfo is the provider metadata captured at fetch time.
type VideoInfo struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	ChannelID    string `json:"channel_id,omitempty"`
	Duration     int    `json:"duration_seconds,omitempty"`
	UploadDate   string `json:"upload_date,omitempty"`
	ViewCount    int64  `json:"view_count,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Artifact describes one downloaded output on local disk.
type Artifact struct {
	Path     string
	Size     int64
	Format   string
	Language string
	Bitrate  int
}

// Result is a successful extraction. Audio and Transcript are nil when the
// corresponding type was not requested or, for transcripts, does not exist.
type Result struct {
	Info              VideoInfo
	TranscriptPresent bool
	Audio             *Artifact
	Transcript        *Artifact
}

// Engine is the extraction boundary. Implementations return ClassifiedError
// for every failure.
type Engine interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}
