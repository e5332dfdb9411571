// Package server exposes the timeline over a local JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/bdougie/relife/internal/analyzer"
	"github.com/bdougie/relife/internal/capture"
	"github.com/bdougie/relife/internal/config"
	"github.com/bdougie/relife/internal/models"
	"github.com/bdougie/relife/internal/search"
	"github.com/bdougie/relife/internal/storage"
	"github.com/bdougie/relife/internal/timeline"
)

// SearchLimit is the number of hits returned by /api/search.
const SearchLimit = 20

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

type Enhancer interface {
	Enhance(ctx context.Context, req analyzer.EnhanceRequest) (analyzer.EnhanceResult, error)
}

// HealthChecker reports whether the embedding backend is reachable.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// Deps are the collaborators behind the API.
type Deps struct {
	Timeline *timeline.Service
	Searcher Searcher
	Enhancer Enhancer
	State    *capture.State
	Settings *config.Settings
	Frames   storage.FrameStore
	Embedder HealthChecker
	DataDir  string
	Logger   *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/ai-ocr", s.aiOCR)
	mux.HandleFunc("GET /api/search", s.search)
	mux.HandleFunc("POST /api/delete", s.delete)
	mux.HandleFunc("GET /api/sync", s.sync)
	mux.HandleFunc("GET /api/entry/{timestamp}", s.entry)
	mux.HandleFunc("GET /api/timestamps", s.timestamps)
	mux.HandleFunc("GET /api/entries", s.entries)

	mux.HandleFunc("GET /api/recording-status", s.recordingStatus)
	mux.HandleFunc("POST /api/pause-recording", s.setPaused(true))
	mux.HandleFunc("POST /api/resume-recording", s.setPaused(false))

	mux.HandleFunc("GET /api/settings/interval", s.getInterval)
	mux.HandleFunc("POST /api/settings/interval", s.postInterval)
	mux.HandleFunc("GET /api/settings/retention", s.getRetention)
	mux.HandleFunc("POST /api/settings/retention", s.postRetention)
	mux.HandleFunc("GET /api/config", s.getAIConfig)
	mux.HandleFunc("POST /api/config", s.postAIConfig)
	mux.HandleFunc("GET /api/status", s.status)

	mux.HandleFunc("GET /static/{filename}", s.frame)

	return RequestID(Logging(s.logger)(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	// WriteTimeout leaves room for a slow enhancement call.
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type aiOCRRequest struct {
	Timestamp int64  `json:"timestamp"`
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
}

func (s *Server) aiOCR(w http.ResponseWriter, r *http.Request) {
	var req aiOCRRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Provider == "" {
		req.Provider = string(analyzer.Gemini)
	}

	res, err := s.deps.Enhancer.Enhance(r.Context(), analyzer.EnhanceRequest{
		Timestamp: req.Timestamp,
		Provider:  req.Provider,
		APIKey:    req.APIKey,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"text":         res.Text,
		"words_coords": res.WordsCoords,
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Searcher.Search(r.Context(), r.URL.Query().Get("q"), SearchLimit)
	if errors.Is(err, search.ErrEmptyQuery) {
		respondJSON(w, http.StatusOK, []models.SearchResult{})
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Timestamps []int64 `json:"timestamps"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	deleted, err := s.deps.Timeline.Delete(r.Context(), req.Timestamps)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	// a missing or malformed watermark means everything
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		since = 0
	}
	respondJSON(w, http.StatusOK, s.deps.Timeline.Sync(r.Context(), since))
}

func (s *Server) entry(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Entry not found")
		return
	}
	e, err := s.deps.Timeline.Get(r.Context(), ts)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		models.EntrySummary
	}{true, e})
}

func (s *Server) timestamps(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]int64{"timestamps": s.deps.Timeline.Timestamps(r.Context())})
}

func (s *Server) entries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	respondJSON(w, http.StatusOK, s.deps.Timeline.Latest(r.Context(), limit))
}

func (s *Server) recordingStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"paused": s.deps.State.Paused()})
}

func (s *Server) setPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.deps.State.SetPaused(paused)
		s.logger.Info("recording state changed", "paused", paused)
		respondJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

func (s *Server) getInterval(w http.ResponseWriter, _ *http.Request) {
	secs := int(s.deps.State.Interval() / time.Second)
	respondJSON(w, http.StatusOK, map[string]int{"interval": secs})
}

func (s *Server) postInterval(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Interval flexInt `json:"interval"`
	}{Interval: flexInt(capture.DefaultInterval / time.Second)}
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}

	secs := max(1, int(req.Interval))
	s.deps.State.SetInterval(time.Duration(secs) * time.Second)
	if err := s.deps.Settings.SetScreenshotInterval(secs); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) getRetention(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"days": s.deps.Settings.RetentionDays()})
}

func (s *Server) postRetention(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Days flexInt `json:"days"`
	}{Days: config.KeepForever}
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if err := s.deps.Settings.SetRetentionDays(int(req.Days)); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) getAIConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Settings.AIConfig()
	if r.URL.Query().Get("full") != "true" {
		cfg = cfg.Masked()
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) postAIConfig(w http.ResponseWriter, r *http.Request) {
	var req config.AIConfig
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Provider != "" {
		if _, err := analyzer.ParseProviderName(req.Provider); err != nil {
			respondErr(w, err)
			return
		}
	}
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if err := s.deps.Settings.SetAIConfig(req); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type diskStatus struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

type statusResponse struct {
	Entries         int         `json:"entries"`
	Paused          bool        `json:"paused"`
	Interval        int         `json:"interval"`
	RetentionDays   int         `json:"retention_days"`
	Disk            *diskStatus `json:"disk,omitempty"`
	EmbedderHealthy bool        `json:"embedder_healthy"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Entries:       s.deps.Timeline.Count(r.Context()),
		Paused:        s.deps.State.Paused(),
		Interval:      int(s.deps.State.Interval() / time.Second),
		RetentionDays: s.deps.Settings.RetentionDays(),
	}
	if s.deps.DataDir != "" {
		if usage, err := disk.UsageWithContext(r.Context(), s.deps.DataDir); err == nil {
			resp.Disk = &diskStatus{
				Path:        s.deps.DataDir,
				Total:       usage.Total,
				Used:        usage.Used,
				Free:        usage.Free,
				UsedPercent: usage.UsedPercent,
			}
		} else {
			s.logger.Warn("disk usage unavailable", "path", s.deps.DataDir, "error", err)
		}
	}
	if s.deps.Embedder != nil {
		resp.EmbedderHealthy = s.deps.Embedder.IsHealthy(r.Context())
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	ts, ok := storage.ParseFrameName(r.PathValue("filename"))
	if !ok {
		respondError(w, http.StatusNotFound, "Image file not found")
		return
	}
	data, err := s.deps.Frames.Load(r.Context(), ts)
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write frame", "timestamp", ts, "error", err)
	}
}
