package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"winch/internal/admission"
	"winch/internal/api"
	"winch/internal/config"
	"winch/internal/logging"
	"winch/internal/queue"
)

const defaultListLimit = 50

// requestIDMiddleware stamps each request context with a correlation id so
// logs emitted while serving it can be tied back together.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type apiServer struct {
	bind      string
	logger    *slog.Logger
	cfg       *config.Config
	store     *queue.Store
	admission *admission.Service
	retention time.Duration

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, store *queue.Store, admissionSvc *admission.Service, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:      bind,
		logger:    logger,
		cfg:       cfg,
		store:     store,
		admission: admissionSvc,
		retention: time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/tasks", srv.handleTasks)
	mux.HandleFunc("/api/v1/tasks/", srv.handleTask)
	mux.HandleFunc("/api/v1/files/", srv.handleFile)

	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, requestIDMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	health, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	disk := s.diskUsage()
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:     true,
		PID:         os.Getpid(),
		DBPath:      s.store.Path(),
		QueueCounts: api.FromHealth(health),
		Disk:        disk,
	})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := s.admission.Submit(r.Context(), admission.SubmitRequest{
		VideoURL:        req.URL,
		WantsAudio:      req.WantsAudio,
		WantsTranscript: req.WantsTranscript,
		CallbackURL:     req.CallbackURL,
		CallbackSecret:  req.CallbackSecret,
	})
	if err != nil {
		if errors.Is(err, admission.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if receipt.CacheHit {
		out := api.SubmitReceipt{Status: "completed", CacheHit: true}
		for _, fileType := range []queue.FileType{queue.FileAudio, queue.FileTranscript} {
			if file, ok := receipt.Files[fileType]; ok {
				out.Files = append(out.Files, api.FromFile(file, s.cfg.Paths.BaseURL))
			}
		}
		s.writeJSON(w, http.StatusOK, out)
		return
	}

	status := http.StatusAccepted
	if receipt.Existed {
		status = http.StatusOK
	}
	s.writeJSON(w, status, api.SubmitReceipt{
		TaskID:        receipt.Task.ID,
		Status:        string(receipt.Task.Status),
		Deduplicated:  receipt.Existed,
		Position:      receipt.Position,
		EstimatedWait: int(receipt.EstimatedWait / time.Second),
	})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter *queue.Status
	if value := strings.TrimSpace(query.Get("status")); value != "" {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		filter = &status
	}

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.admission.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := api.TaskListResponse{Total: total, Limit: limit, Offset: offset}
	for _, task := range tasks {
		out.Tasks = append(out.Tasks, api.FromTask(task, nil, s.cfg.Paths.BaseURL))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleTaskDetail(w, r, id)
	case http.MethodDelete:
		s.handleTaskCancel(w, r, id)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleTaskDetail(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.admission.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var files []*queue.File
	if task.Status == queue.StatusCompleted {
		files, err = s.admission.FilesFor(r.Context(), task)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	view := api.FromTask(task, files, s.cfg.Paths.BaseURL)
	if task.Status == queue.StatusPending {
		position, err := s.admission.QueuePosition(r.Context(), task)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		view.Position = position
		view.EstimatedWait = int(s.admission.EstimateWait(position) / time.Second)
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleTaskCancel(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.admission.Cancel(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "task not found")
		case errors.Is(err, queue.ErrNotCancelable):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	task.Status = queue.StatusCancelled
	s.writeJSON(w, http.StatusOK, api.FromTask(task, nil, s.cfg.Paths.BaseURL))
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	file, err := s.store.GetFile(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if file == nil || file.Expired(time.Now()) {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	handle, err := os.Open(file.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer handle.Close()

	// A download counts as access and extends the retention window.
	if err := s.store.TouchFile(r.Context(), file.ID, time.Now(), s.retention); err != nil {
		s.log().Warn("touch file on download", logging.String("file_id", file.ID), logging.Error(err))
	}

	name := file.VideoID
	if file.Format != "" {
		name = file.VideoID + "." + file.Format
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, file.LastAccessedAt, handle)
}

func (s *apiServer) diskUsage() api.DiskUsage {
	var usage api.DiskUsage
	for _, dir := range []string{s.cfg.AudioDir(), s.cfg.TranscriptDir()} {
		_ = filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
			if err != nil || entry.IsDir() {
				return nil
			}
			info, infoErr := entry.Info()
			if infoErr != nil {
				return nil
			}
			usage.FileCount++
			usage.TotalBytes += info.Size()
			return nil
		})
	}
	return usage
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorBody{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
