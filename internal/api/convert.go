package api

import (
	"encoding/json"
	"fmt"
	"time"

	"winch/internal/queue"
)

// FromTask converts a task record to its API representation. baseURL, when
// non-empty, is prepended to file download links.
func FromTask(task *queue.Task, files []*queue.File, baseURL string) TaskView {
	if task == nil {
		return TaskView{}
	}

	view := TaskView{
		ID:               task.ID,
		VideoID:          task.VideoID,
		VideoURL:         task.VideoURL,
		Status:           string(task.Status),
		WantsAudio:       task.WantsAudio,
		WantsTranscript:  task.WantsTranscript,
		HasTranscript:    task.HasTranscript,
		AudioFallback:    task.AudioFallback,
		ReusedAudio:      task.ReusedAudio,
		ReusedTranscript: task.ReusedTranscript,
		RetryCount:       task.RetryCount,
		CallbackStatus:   string(task.CallbackStatus),
		CallbackAttempts: task.CallbackAttempts,
	}
	if task.VideoInfoJSON != "" {
		view.VideoInfo = json.RawMessage(task.VideoInfoJSON)
	}
	if task.Status == queue.StatusFailed {
		view.Error = &ErrorDescriptor{Kind: task.ErrorKind, Message: task.ErrorMessage}
	}
	if !task.CreatedAt.IsZero() {
		view.CreatedAt = task.CreatedAt.UTC().Format(time.RFC3339)
	}
	if task.StartedAt != nil {
		view.StartedAt = task.StartedAt.UTC().Format(time.RFC3339)
	}
	if task.CompletedAt != nil {
		view.CompletedAt = task.CompletedAt.UTC().Format(time.RFC3339)
	}
	for _, file := range files {
		view.Files = append(view.Files, FromFile(file, baseURL))
	}
	return view
}

// FromFile converts an artifact record to its API representation.
func FromFile(file *queue.File, baseURL string) FileView {
	if file == nil {
		return FileView{}
	}
	view := FileView{
		ID:      file.ID,
		VideoID: file.VideoID,
		Type:    string(file.Type),
		Size:    file.Size,
		Format:  file.Format,
	}
	if file.MetadataJSON != "" {
		view.Metadata = json.RawMessage(file.MetadataJSON)
	}
	if baseURL != "" {
		view.URL = fmt.Sprintf("%s/api/v1/files/%s", baseURL, file.ID)
	}
	if !file.ExpiresAt.IsZero() {
		view.ExpiresAt = file.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return view
}

// FromHealth converts the store's health summary to status counts.
func FromHealth(health queue.HealthSummary) map[string]int {
	return map[string]int{
		"total":       health.Total,
		"pending":     health.Pending,
		"downloading": health.Downloading,
		"completed":   health.Completed,
		"failed":      health.Failed,
		"cancelled":   health.Cancelled,
	}
}
