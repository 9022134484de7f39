package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/yt-subtitles/internal/config"
	"github.com/yt-subtitles/internal/metrics"
	"github.com/yt-subtitles/internal/models"
)

// Server represents the API server
type Server struct {
	router           *gin.Engine
	provider         TranscriptProvider
	defaultLanguages []string
	shutdownTimeout  time.Duration
	logger           *slog.Logger
	metrics          *metrics.Metrics
	assistant        TextGenerator
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, provider TranscriptProvider, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(logger))
	router.Use(cors.New(newCORSConfig(cfg.CORSAllowOrigins)))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	languages := cfg.DefaultLanguages
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	server := &Server{
		router:           router,
		provider:         provider,
		defaultLanguages: languages,
		shutdownTimeout:  cfg.ShutdownTimeout,
		logger:           logger,
		metrics:          m,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

func newCORSConfig(origins []string) cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour

	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
		return corsConfig
	}
	for _, origin := range origins {
		if origin == "*" {
			corsConfig.AllowAllOrigins = true
			return corsConfig
		}
	}
	corsConfig.AllowOrigins = origins
	return corsConfig
}

// setupRoutes configures all the routes for the server
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// Transcript endpoint
	s.router.GET("/subtitles", s.getSubtitles)
}

// getSubtitles handles requests to get the transcript of a video URL
func (s *Server) getSubtitles(c *gin.Context) {
	if _, ok := c.GetQuery("link"); !ok {
		s.metrics.ObserveRequest("missing_link")
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: msgMissingLink})
		return
	}

	var query models.SubtitlesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.metrics.ObserveRequest("invalid_url")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgInvalidURL})
		return
	}

	videoID, ok := ExtractVideoID(query.Link)
	if !ok {
		s.metrics.ObserveRequest("invalid_url")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgInvalidURL})
		return
	}

	languages := s.languages(query.Lang)

	started := time.Now()
	entries, err := s.provider.GetTranscript(c.Request.Context(), videoID, languages)
	s.metrics.ObserveProvider(time.Since(started))
	if err != nil {
		failure := s.respondFailure(c, "transcript lookup failed", videoID, err)
		s.metrics.ObserveRequest(failure.Outcome)
		return
	}

	if entries == nil {
		entries = []models.TranscriptEntry{}
	}
	s.metrics.ObserveRequest("ok")
	c.JSON(http.StatusOK, entries)
}

// respondFailure logs err against the request and writes its mapped status
// and message
func (s *Server) respondFailure(c *gin.Context, msg, videoID string, err error) providerFailure {
	failure := classifyProviderError(err)
	_ = c.Error(err)

	fields := []any{
		"request_id", GetRequestID(c),
		"video_id", videoID,
		"status", failure.Status,
		"err", err,
	}
	if failure.Status >= http.StatusInternalServerError {
		s.logger.Error(msg, fields...)
	} else {
		s.logger.Warn(msg, fields...)
	}

	c.JSON(failure.Status, models.ErrorResponse{Error: failure.Message})
	return failure
}

// languages returns the requested caption languages, falling back to the
// configured defaults
func (s *Server) languages(raw string) []string {
	var out []string
	for _, lang := range strings.Split(raw, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			out = append(out, lang)
		}
	}
	if len(out) == 0 {
		return s.defaultLanguages
	}
	return out
}

// Handler exposes the router for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("server shutting down", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
