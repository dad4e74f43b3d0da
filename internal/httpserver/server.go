// Package httpserver exposes health and status endpoints while the bot runs
// as a daemon.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/scheduler"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// StatusSource reports the selection state and post history.
type StatusSource interface {
	Stats(ctx context.Context) (domain.SelectionStats, error)
	RecentPosts(ctx context.Context, limit int) ([]domain.PublishedPost, error)
}

// RunReporter reports the scheduler's last and next run.
type RunReporter interface {
	Status() scheduler.Status
}

// Server is the HTTP server for the daemon's health and status endpoints.
type Server struct {
	source     StatusSource
	runs       RunReporter
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server listening on port. runs may be nil.
func NewServer(port int, source StatusSource, runs RunReporter, logger *slog.Logger) *Server {
	s := &Server{
		source: source,
		runs:   runs,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, s.routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Sequence    int64          `json:"sequence"`
	Universe    int            `json:"universe"`
	Selected    int            `json:"selected"`
	Remaining   int            `json:"remaining"`
	RecentPosts []postResponse `json:"recentPosts"`
	Scheduler   *runResponse   `json:"scheduler,omitempty"`
}

type postResponse struct {
	URI      string `json:"uri"`
	CID      string `json:"cid"`
	Index    int    `json:"index"`
	Sequence int64  `json:"sequence"`
	Caption  string `json:"caption"`
	PostedAt string `json:"postedAt"`
}

type runResponse struct {
	Schedule  string `json:"schedule"`
	NextRun   string `json:"nextRun,omitempty"`
	LastStart string `json:"lastStart,omitempty"`
	LastEnd   string `json:"lastEnd,omitempty"`
	LastError string `json:"lastError,omitempty"`
	Running   bool   `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxRecentLimit {
			s.logger.Warn("invalid limit parameter", "limit", l, "error", err)
			writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("limit must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = parsed
	}

	stats, err := s.source.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to read selection stats", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read status")
		return
	}

	posts, err := s.source.RecentPosts(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read recent posts", "limit", limit, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read status")
		return
	}

	resp := statusResponse{
		Sequence:    stats.Sequence,
		Universe:    stats.Universe,
		Selected:    stats.Selected,
		Remaining:   stats.Remaining,
		RecentPosts: toPostResponses(posts),
	}
	if s.runs != nil {
		resp.Scheduler = toRunResponse(s.runs.Status())
	}

	writeJSON(w, http.StatusOK, resp)
}

func toPostResponses(posts []domain.PublishedPost) []postResponse {
	result := make([]postResponse, len(posts))
	for i, p := range posts {
		result[i] = postResponse{
			URI:      p.URI,
			CID:      p.CID,
			Index:    p.Index,
			Sequence: p.Sequence,
			Caption:  p.Caption,
			PostedAt: p.PostedAt.UTC().Format(time.RFC3339),
		}
	}
	return result
}

func toRunResponse(st scheduler.Status) *runResponse {
	return &runResponse{
		Schedule:  st.Schedule,
		NextRun:   formatTime(st.NextRun),
		LastStart: formatTime(st.LastStart),
		LastEnd:   formatTime(st.LastEnd),
		LastError: st.LastError,
		Running:   st.Running,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
