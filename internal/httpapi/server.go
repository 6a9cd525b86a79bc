package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/stagehand/internal/globaltime"
	"horse.fit/stagehand/internal/staging"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// StagingService is the slice of the staging service the HTTP layer uses.
type StagingService interface {
	CreateBatch(ctx context.Context, req staging.CreateBatchRequest) (*staging.Batch, error)
	GetBatch(ctx context.Context, batchUUID string) (*staging.Batch, error)
	ListBatches(ctx context.Context, status staging.BatchStatus, limit, offset int) ([]staging.Batch, error)
	ListRecords(ctx context.Context, batchUUID string, status staging.RecordStatus) ([]staging.Record, error)
	GetRecord(ctx context.Context, questionID string) (*staging.Record, error)
	ListMatches(ctx context.Context, questionID string) ([]staging.Match, error)
	ListBatchMatches(ctx context.Context, batchUUID string) ([]staging.Match, error)
	DetectDuplicates(ctx context.Context, batchUUID string, threshold float64) (*staging.DetectionResult, error)
	Approve(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error)
	Reject(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error)
	ResolveMatch(ctx context.Context, matchUUID string, resolution staging.Resolution, resolver string, notes *string) (*staging.Match, error)
	AnnotateMatch(ctx context.Context, matchUUID, author, note string) (*staging.Match, error)
	ReplaceContent(ctx context.Context, questionID string, content staging.QuestionContent, editor string) (*staging.Record, error)
	ImportApproved(ctx context.Context, batchUUID string, policy staging.ImportPolicy) (*staging.ImportResult, error)
	Cancel(ctx context.Context, batchUUID, actor string) (*staging.Batch, error)
	Stats(ctx context.Context) (*staging.Stats, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	// DefaultThreshold and DefaultPolicy back requests that omit them.
	DefaultThreshold float64
	DefaultPolicy    staging.ImportPolicy
}

type Server struct {
	svc    StagingService
	logger zerolog.Logger
	opts   Options
}

func NewServer(svc StagingService, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	threshold := opts.DefaultThreshold
	if threshold <= 0 {
		threshold = staging.DefaultThreshold
	}
	policy := opts.DefaultPolicy
	if policy == "" {
		policy = staging.PolicyReplace
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		svc:    svc,
		logger: logger,
		opts: Options{
			Host:             host,
			Port:             port,
			ReadTimeout:      readTimeout,
			WriteTimeout:     writeTimeout,
			ShutdownTimeout:  shutdownTimeout,
			AllowedOrigins:   origins,
			DefaultThreshold: threshold,
			DefaultPolicy:    policy,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.svc == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.newEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("stagehand api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("stagehand api server stopped")
	return nil
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	s.registerRoutes(e)
	return e
}

func (s *Server) registerRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)

	api.POST("/batches", s.handleCreateBatch)
	api.GET("/batches", s.handleListBatches)
	api.GET("/batches/:batch_uuid", s.handleBatchDetail)
	api.GET("/batches/:batch_uuid/questions", s.handleBatchQuestions)
	api.GET("/batches/:batch_uuid/duplicates", s.handleBatchDuplicates)
	api.POST("/batches/:batch_uuid/review", s.handleBulkReview)
	api.POST("/batches/:batch_uuid/detect", s.handleDetect)
	api.POST("/batches/:batch_uuid/import", s.handleImport)
	api.POST("/batches/:batch_uuid/cancel", s.handleCancel)

	api.GET("/questions/:question_id", s.handleQuestionDetail)
	api.GET("/questions/:question_id/matches", s.handleQuestionMatches)
	api.POST("/questions/:question_id/approve", s.handleApprove)
	api.POST("/questions/:question_id/reject", s.handleReject)
	api.PUT("/questions/:question_id/content", s.handleReplaceContent)

	api.POST("/matches/:match_uuid/resolve", s.handleResolveMatch)
	api.POST("/matches/:match_uuid/annotate", s.handleAnnotateMatch)
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

// respondServiceError maps the staging error taxonomy onto the API surface.
func (s *Server) respondServiceError(c echo.Context, err error) error {
	var verr *staging.ValidationError
	if errors.As(err, &verr) {
		return failValidation(c, verr.Fields)
	}
	var serr *staging.StateError
	if errors.As(err, &serr) {
		return fail(c, http.StatusConflict, serr.Error(), nil)
	}
	var perr *staging.PartialFailureError
	if errors.As(err, &perr) {
		return fail(c, http.StatusConflict, perr.Error(), map[string]any{
			"colliding_ids": perr.RecordIDs,
		})
	}
	var dferr *staging.DetectionFailure
	if errors.As(err, &dferr) {
		s.logger.Error().Err(err).Msg("duplicate detection failed")
		return fail(c, http.StatusBadGateway, "Duplicate detection is temporarily unavailable", nil)
	}
	if errors.Is(err, staging.ErrNotFound) {
		return failNotFound(c, "Not found")
	}
	s.logger.Error().Err(err).Msg("staging operation failed")
	return internalError(c, "Internal server error")
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "stagehand",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.svc.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, map[string]any{
		"batches_by_status":     stats.BatchesByStatus,
		"records_by_status":     stats.RecordsByStatus,
		"matches_by_resolution": stats.MatchesByResolution,
		"pending_matches":       stats.PendingMatches,
		"production_total":      stats.ProductionTotal,
	})
}

func parsePositiveInt(raw string, fallback, min, max int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < min || value > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return value, nil
}
