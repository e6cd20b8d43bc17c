// Package web exposes the JSON API and serves the media directories.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/internal/store"
	"thirdcoast.systems/streamvault/pkg/ytdlp"
)

// Store is the persistence surface the API needs.
type Store interface {
	ListDownloads(ctx context.Context) ([]*model.DownloadJob, error)
	GetDownload(ctx context.Context, id string) (*model.DownloadJob, error)
	DeleteDownload(ctx context.Context, id string) error
	ListConversions(ctx context.Context) ([]*model.ConversionJob, error)
	GetConversionByDownload(ctx context.Context, downloadID string) (*model.ConversionJob, error)
	DeleteConversion(ctx context.Context, id string) error
	ListArchivedVideos(ctx context.Context) ([]*model.ArchivedVideo, error)
	GetArchivedVideo(ctx context.Context, id string) (*model.ArchivedVideo, error)
	DeleteArchivedVideo(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
}

// Downloads is the download pipeline surface the API needs.
type Downloads interface {
	Start(ctx context.Context, url, resolution string) (*model.DownloadJob, error)
	Stop(id string) error
}

// Archives is the archive pipeline surface the API needs.
type Archives interface {
	Request(ctx context.Context, id string) error
}

// Publisher fans out record deletions triggered through the API.
type Publisher interface {
	Publish(ev notify.Event)
}

// Config carries the directories served as static files and the URL prefixes
// they are mounted under.
type Config struct {
	DownloadsDir  string
	ConvertedDir  string
	ArchiveDir    string
	ThumbnailsDir string

	DownloadsURLPrefix  string
	ConvertedURLPrefix  string
	ArchiveURLPrefix    string
	ThumbnailsURLPrefix string
}

type Server struct {
	*echo.Echo
	store     Store
	downloads Downloads
	archives  Archives
	hub       Publisher
	conf      Config
}

func NewServer(st Store, downloads Downloads, archives Archives, hub Publisher, conf Config) *Server {
	s := &Server{
		Echo:      echo.New(),
		store:     st,
		downloads: downloads,
		archives:  archives,
		hub:       hub,
		conf:      conf,
	}
	s.setupMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("2M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
				slog.Error("request", fields...)
			} else {
				slog.Info("request", fields...)
			}
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {
	api := s.Group("/api")

	api.GET("/downloads", s.handleListDownloads)
	api.POST("/downloads", s.handleStartDownload)
	api.POST("/downloads/:id/stop", s.handleStopDownload)
	api.POST("/downloads/:id/archive", s.handleArchiveDownload)
	api.DELETE("/downloads/:id", s.handleDeleteDownload)

	api.GET("/conversions", s.handleListConversions)

	api.GET("/videos", s.handleListVideos)
	api.DELETE("/videos/:id", s.handleDeleteVideo)

	api.GET("/subscriptions", s.handleListSubscriptions)
	api.GET("/subscriptions/:id", s.handleGetSubscription)
	api.POST("/subscriptions", s.handleUpsertSubscription)
	api.DELETE("/subscriptions/:id", s.handleDeleteSubscription)

	s.Static(s.conf.DownloadsURLPrefix, s.conf.DownloadsDir)
	s.Static(s.conf.ConvertedURLPrefix, s.conf.ConvertedDir)
	s.Static(s.conf.ArchiveURLPrefix, s.conf.ArchiveDir)
	s.Static(s.conf.ThumbnailsURLPrefix, s.conf.ThumbnailsDir)
}

// downloadView decorates a job record with the URLs a client needs to show a
// preview while the job is still in flight.
type downloadView struct {
	*model.DownloadJob
	FileURL       string   `json:"file_url,omitempty"`
	ThumbnailURLs []string `json:"thumbnail_urls,omitempty"`
}

func (s *Server) downloadView(job *model.DownloadJob) downloadView {
	v := downloadView{DownloadJob: job}
	switch {
	case job.ConvertedFilePath != "" && job.ConvertedFilePath == job.OutputPath:
		v.FileURL = path.Join(s.conf.DownloadsURLPrefix, filepath.Base(job.ConvertedFilePath))
	case job.ConvertedFilePath != "":
		v.FileURL = path.Join(s.conf.ConvertedURLPrefix, filepath.Base(job.ConvertedFilePath))
	case job.OutputPath != "":
		v.FileURL = path.Join(s.conf.DownloadsURLPrefix, filepath.Base(job.OutputPath))
	}
	for _, name := range job.Thumbnails {
		v.ThumbnailURLs = append(v.ThumbnailURLs, path.Join(s.conf.ThumbnailsURLPrefix, name))
	}
	return v
}

func (s *Server) handleListDownloads(c echo.Context) error {
	jobs, err := s.store.ListDownloads(c.Request().Context())
	if err != nil {
		slog.Error("Listing downloads failed", "error", err)
		return c.String(500, "failed to list downloads")
	}
	views := make([]downloadView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, s.downloadView(job))
	}
	return c.JSON(200, views)
}

func (s *Server) handleStartDownload(c echo.Context) error {
	var req struct {
		URL        string `json:"url"`
		Resolution string `json:"resolution"`
	}
	if err := c.Bind(&req); err != nil {
		return c.String(400, "invalid json")
	}
	if strings.TrimSpace(req.URL) == "" {
		return c.String(400, "url is required")
	}
	if req.Resolution == "" {
		req.Resolution = ytdlp.ResolutionBest
	}

	job, err := s.downloads.Start(c.Request().Context(), req.URL, req.Resolution)
	if err != nil {
		slog.Error("Starting download failed", "url", req.URL, "error", err)
		return c.String(500, "failed to start download")
	}
	return c.JSON(http.StatusCreated, s.downloadView(job))
}

func (s *Server) handleStopDownload(c echo.Context) error {
	id := c.Param("id")
	if err := s.downloads.Stop(id); err != nil {
		return c.String(409, err.Error())
	}
	return c.JSON(200, map[string]any{"stopped": true})
}

func (s *Server) handleArchiveDownload(c echo.Context) error {
	id := c.Param("id")
	err := s.archives.Request(c.Request().Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.String(404, "download not found")
	case err != nil:
		return c.String(409, err.Error())
	}
	return c.JSON(202, map[string]any{"archiving": true})
}

func (s *Server) handleDeleteDownload(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	job, err := s.store.GetDownload(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return c.String(404, "download not found")
	} else if err != nil {
		slog.Error("Loading download failed", "id", id, "error", err)
		return c.String(500, "failed to load download")
	}
	if job.Status.Active() {
		return c.String(409, "download is active, stop it first")
	}

	s.removeJobFiles(job)

	if conv, err := s.store.GetConversionByDownload(ctx, id); err == nil {
		if err := s.store.DeleteConversion(ctx, conv.ID); err != nil {
			slog.Warn("Deleting conversion record failed", "id", conv.ID, "error", err)
		}
	}
	if err := s.store.DeleteDownload(ctx, id); err != nil {
		slog.Error("Deleting download failed", "id", id, "error", err)
		return c.String(500, "failed to delete download")
	}
	s.hub.Publish(notify.Event{Kind: notify.KindDownloadRemoved, Payload: id})
	return c.NoContent(http.StatusNoContent)
}

// removeJobFiles deletes a job's working files best-effort; a file already
// gone is not an error.
func (s *Server) removeJobFiles(job *model.DownloadJob) {
	paths := []string{job.OutputPath}
	if job.ConvertedFilePath != job.OutputPath {
		paths = append(paths, job.ConvertedFilePath)
	}
	for _, name := range job.Thumbnails {
		paths = append(paths, filepath.Join(s.conf.ThumbnailsDir, name))
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("Removing file failed", "path", p, "error", err)
		}
	}
}

// handleListConversions exposes the conversion stage's in-flight and terminal
// records for job detail views.
func (s *Server) handleListConversions(c echo.Context) error {
	jobs, err := s.store.ListConversions(c.Request().Context())
	if err != nil {
		slog.Error("Listing conversions failed", "error", err)
		return c.String(500, "failed to list conversions")
	}
	if jobs == nil {
		jobs = []*model.ConversionJob{}
	}
	return c.JSON(200, jobs)
}

// videoView decorates an archived record with display fields.
type videoView struct {
	*model.ArchivedVideo
	FileSize      string   `json:"file_size"`
	FileURL       string   `json:"file_url"`
	ThumbnailURLs []string `json:"thumbnail_urls,omitempty"`
}

func (s *Server) videoView(v *model.ArchivedVideo) videoView {
	view := videoView{
		ArchivedVideo: v,
		FileSize:      humanize.Bytes(uint64(v.FileSizeBytes)),
		FileURL:       path.Join(s.conf.ArchiveURLPrefix, v.FileName),
	}
	for _, name := range v.Thumbnails {
		view.ThumbnailURLs = append(view.ThumbnailURLs, path.Join(s.conf.ThumbnailsURLPrefix, name))
	}
	return view
}

func (s *Server) handleListVideos(c echo.Context) error {
	videos, err := s.store.ListArchivedVideos(c.Request().Context())
	if err != nil {
		slog.Error("Listing archived videos failed", "error", err)
		return c.String(500, "failed to list videos")
	}
	views := make([]videoView, 0, len(videos))
	for _, v := range videos {
		views = append(views, s.videoView(v))
	}
	return c.JSON(200, views)
}

func (s *Server) handleDeleteVideo(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	video, err := s.store.GetArchivedVideo(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return c.String(404, "video not found")
	} else if err != nil {
		slog.Error("Loading archived video failed", "id", id, "error", err)
		return c.String(500, "failed to load video")
	}

	if err := os.Remove(video.FilePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Removing archived file failed", "path", video.FilePath, "error", err)
	}
	for _, name := range video.Thumbnails {
		p := filepath.Join(s.conf.ThumbnailsDir, name)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("Removing thumbnail failed", "path", p, "error", err)
		}
	}

	if err := s.store.DeleteArchivedVideo(ctx, id); err != nil {
		slog.Error("Deleting archived video failed", "id", id, "error", err)
		return c.String(500, "failed to delete video")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListSubscriptions(c echo.Context) error {
	subs, err := s.store.ListSubscriptions(c.Request().Context())
	if err != nil {
		slog.Error("Listing subscriptions failed", "error", err)
		return c.String(500, "failed to list subscriptions")
	}
	if subs == nil {
		subs = []*model.Subscription{}
	}
	return c.JSON(200, subs)
}

func (s *Server) handleGetSubscription(c echo.Context) error {
	id := c.Param("id")
	sub, err := s.store.GetSubscription(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.String(404, "subscription not found")
	} else if err != nil {
		slog.Error("Loading subscription failed", "id", id, "error", err)
		return c.String(500, "failed to load subscription")
	}
	return c.JSON(200, sub)
}

func (s *Server) handleUpsertSubscription(c echo.Context) error {
	var req struct {
		ID              string `json:"id"`
		URL             string `json:"url"`
		Name            string `json:"name"`
		IntervalMinutes int    `json:"interval_minutes"`
		Resolution      string `json:"resolution"`
		Enabled         *bool  `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return c.String(400, "invalid json")
	}
	if strings.TrimSpace(req.URL) == "" {
		return c.String(400, "url is required")
	}
	if req.IntervalMinutes <= 0 {
		req.IntervalMinutes = 5
	}
	if req.Resolution == "" {
		req.Resolution = ytdlp.ResolutionBest
	}

	sub := &model.Subscription{
		ID:              req.ID,
		URL:             req.URL,
		Name:            req.Name,
		IntervalMinutes: req.IntervalMinutes,
		Resolution:      req.Resolution,
		Enabled:         req.Enabled == nil || *req.Enabled,
	}
	status := 200
	if sub.ID == "" {
		sub.ID = uuid.NewString()
		status = http.StatusCreated
	}

	if err := s.store.UpsertSubscription(c.Request().Context(), sub); err != nil {
		slog.Error("Persisting subscription failed", "id", sub.ID, "error", err)
		return c.String(500, "failed to save subscription")
	}
	s.hub.Publish(notify.Event{Kind: notify.KindSubscription, Payload: sub})
	return c.JSON(status, sub)
}

func (s *Server) handleDeleteSubscription(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.DeleteSubscription(c.Request().Context(), id); err != nil {
		slog.Error("Deleting subscription failed", "id", id, "error", err)
		return c.String(500, "failed to delete subscription")
	}
	return c.NoContent(http.StatusNoContent)
}

// Serve starts the listener and shuts down gracefully when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Webserver shutdown", "error", err)
		}
	}()

	if err := s.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
