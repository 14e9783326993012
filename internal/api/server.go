// Package api exposes the HTTP interface for the downloader service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/config"
	"github.com/ezetheking/tube-snatch/internal/fetch"
	"github.com/ezetheking/tube-snatch/internal/storage/local"
	"github.com/ezetheking/tube-snatch/internal/telemetry"
	"github.com/ezetheking/tube-snatch/internal/tube"
)

// tempCleanupDelay gives the client a moment to start reading the stream
// before the temp artifact is removed.
const tempCleanupDelay = 5 * time.Second

// ChannelFetcher resolves a channel roster for a locator and category.
type ChannelFetcher interface {
	FetchChannel(ctx context.Context, locator string, category tube.Category) (tube.FetchResult, error)
}

// DownloadStarter accepts download requests and reports how many started.
type DownloadStarter interface {
	Start(videoIDs []string, qualityHint string) int
}

// MediaFiles resolves media artifacts for the streaming endpoints.
type MediaFiles interface {
	TempTemplate(tempID string) string
	LocateTemp(tempID string) (string, bool)
	Locate(videoID string) (string, bool)
	Resolve(name string) (string, bool)
	Remove(path string) error
}

// Server wires HTTP handlers to the orchestrator, stores, and task manager.
type Server struct {
	router     chi.Router
	fetcher    ChannelFetcher
	videos     tube.VideoStore
	manager    DownloadStarter
	progress   tube.ProgressStore
	media      MediaFiles
	downloader tube.Downloader
	idGen      tube.IDGenerator
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	fetcher ChannelFetcher,
	videos tube.VideoStore,
	manager DownloadStarter,
	progress tube.ProgressStore,
	media MediaFiles,
	downloader tube.Downloader,
	idGen tube.IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		fetcher:    fetcher,
		videos:     videos,
		manager:    manager,
		progress:   progress,
		media:      media,
		downloader: downloader,
		idGen:      idGen,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout()))
			r.Get("/test", s.test)
			r.Post("/fetch-channel", s.fetchChannel)
			r.Get("/videos", s.listVideos)
			r.Post("/download", s.startDownloads)
			r.Get("/download-progress", s.downloadProgress)
			r.Post("/clear-downloads", s.clearDownloads)
		})
		// Streaming endpoints download media inline and must not be
		// wrapped in the request timeout.
		r.Get("/stream-download/{video_id}", s.streamDownload)
		r.Get("/download-file/{video_id}", s.downloadFile)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) test(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Backend is working!",
		"status":  "success",
	})
}

type fetchChannelRequest struct {
	ChannelURL  string `json:"channel_url"`
	ContentType string `json:"content_type"`
}

func (s *Server) fetchChannel(w http.ResponseWriter, r *http.Request) {
	var req fetchChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.ChannelURL) == "" {
		writeError(w, http.StatusBadRequest, "Channel URL is required")
		return
	}
	category, err := tube.ParseCategory(req.ContentType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.fetcher.FetchChannel(r.Context(), req.ChannelURL, category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fetch.FriendlyError(err))
		return
	}

	rows := make([]tube.StoredVideo, 0, len(result.Entries))
	for _, e := range result.Entries {
		rows = append(rows, tube.StoredVideo{
			VideoID:      e.VideoID,
			Title:        e.Title,
			ThumbnailURL: e.ThumbnailURL,
			Duration:     e.Duration,
			Resolutions:  e.Resolutions,
			ChannelID:    e.ChannelID,
			ChannelName:  e.ChannelName,
		})
	}
	if err := s.videos.ReplaceChannelVideos(r.Context(), result.ChannelID, rows); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist channel videos")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"channel_name": result.ChannelName,
		"video_count":  len(result.Entries),
		"videos":       result.Entries,
	})
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.videos.ListVideos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if videos == nil {
		videos = []tube.StoredVideo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

type downloadRequest struct {
	VideoIDs   []string `json:"video_ids"`
	Resolution string   `json:"resolution"`
}

func (s *Server) startDownloads(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.VideoIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No video IDs provided")
		return
	}
	started := s.manager.Start(req.VideoIDs, req.Resolution)
	s.logger.Info("download request accepted",
		zap.Int("requested", len(req.VideoIDs)),
		zap.Int("started", started),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Downloads started",
	})
}

func (s *Server) downloadProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.progress.Snapshot())
}

func (s *Server) clearDownloads(w http.ResponseWriter, _ *http.Request) {
	s.progress.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// streamDownload performs a full download to a temp location, then streams
// the file with a content-disposition filename derived from the title. The
// temp artifact is removed shortly after streaming starts.
func (s *Server) streamDownload(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	video, err := s.videos.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}

	tempID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to allocate temp id")
		return
	}

	path, err := s.downloader.Download(r.Context(), tube.DownloadRequest{
		URL:            tube.WatchURL(videoID),
		QualityCeiling: s.cfg.Download.QualityCeiling,
		MergeFormat:    s.cfg.Download.MergeFormat,
		OutputTemplate: s.media.TempTemplate(tempID),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Download failed: "+err.Error())
		return
	}
	if path == "" {
		found, ok := s.media.LocateTemp(tempID)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Failed to download video file")
			return
		}
		path = found
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open downloaded file")
		return
	}
	defer f.Close() //nolint:errcheck // read-only handle

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stat downloaded file")
		return
	}

	filename := local.SanitizeFilename(video.Title, s.mergeExt())
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	go s.cleanupTemp(path)

	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("stream interrupted",
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("stream download served",
		zap.String("video_id", videoID),
		zap.String("filename", filename),
		zap.Int64("bytes", info.Size()),
	)
}

// downloadFile serves a previously completed download from disk, falling back
// to stream-download when no local file can be found.
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	streamURL := "/api/stream-download/" + videoID

	video, err := s.videos.GetVideo(r.Context(), videoID)
	if err != nil || !video.Downloaded {
		http.Redirect(w, r, streamURL, http.StatusFound)
		return
	}

	path, ok := s.media.Resolve(video.FilePath)
	if !ok {
		// Recorded path is stale or absent; fall back to an id-prefix scan.
		path, ok = s.media.Locate(videoID)
	}
	if !ok {
		http.Redirect(w, r, streamURL, http.StatusFound)
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	filename := local.SanitizeFilename(video.Title, ext)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
	s.logger.Info("served cached file",
		zap.String("video_id", videoID),
		zap.String("filename", filename),
	)
}

func (s *Server) cleanupTemp(path string) {
	time.Sleep(tempCleanupDelay)
	if err := s.media.Remove(path); err != nil {
		s.logger.Warn("temp file cleanup failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("temp file removed", zap.String("path", path))
}

func (s *Server) mergeExt() string {
	if s.cfg.Download.MergeFormat != "" {
		return s.cfg.Download.MergeFormat
	}
	return "mp4"
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = 300 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
