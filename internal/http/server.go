// Package http serves the transcriptrag HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/logging"
	"github.com/fyrsmithlabs/transcriptrag/internal/retrieval"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

// Retriever is the part of retrieval.Service the API exposes.
type Retriever interface {
	IngestIdentifiers(ctx context.Context, identifiers []string) (retrieval.BatchReport, error)
	AnswerQuery(ctx context.Context, query string, k int, maxDistance float64) ([]retrieval.AnswerSnippet, error)
	SearchMetadata(ctx context.Context, query string, k int, filterExpr string) ([]retrieval.MetadataHit, error)
	Sources(ctx context.Context, filterExpr string, limit int) ([]sources.SourceItem, error)
	Ask(ctx context.Context, question string, k int) (retrieval.Answer, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RequestTimeout bounds each API request. Zero disables the bound.
	RequestTimeout time.Duration
	Version        string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	retriever Retriever
	store     vectorstore.Store
	logger    *zap.Logger
	config    *Config
}

// NewServer creates a server over retriever and store.
func NewServer(retriever Retriever, store vectorstore.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	s := &Server{
		echo:      e,
		retriever: retriever,
		store:     store,
		logger:    logger,
		config:    cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestContext tags the request context with the request id and the
// configured timeout, then logs the request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)

		ctx := logging.WithRequestID(c.Request().Context(), reqID)
		if s.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
			defer cancel()
		}
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request.id", reqID),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/query", s.handleQuery)
	v1.POST("/search", s.handleSearch)
	v1.POST("/ask", s.handleAsk)
	v1.GET("/sources", s.handleSources)
	v1.GET("/collections", s.handleListCollections)
	v1.GET("/collections/:name", s.handleDescribeCollection)
	v1.GET("/collections/:name/records", s.handleCollectionRecords)
	v1.DELETE("/collections/:name", s.handleDropCollection)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
