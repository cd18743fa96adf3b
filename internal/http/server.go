// Package http provides the HTTP API of a scorekeep workspace.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/logging"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
	"github.com/fyrsmithlabs/scorekeep/internal/workspace"
)

// Server provides HTTP endpoints over one workspace session.
type Server struct {
	echo    *echo.Echo
	session *workspace.Session
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics replaces the request instruments created on the global
// meter provider.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(session *workspace.Session, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		session: session,
		logger:  logger,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(logger)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	e.Use(s.metrics.MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestContext carries the request id into handler contexts and logs
// every request once it has been answered.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))

		err := next(c)

		s.logger.Info("http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/projects", s.handleList)
	v1.POST("/projects", s.handleCreate)
	v1.POST("/projects/open", s.handleOpen)
	v1.POST("/projects/import", s.handleImport)
	v1.POST("/projects/checkout", s.handleCheckout)
	v1.DELETE("/projects/:id", s.handleClose)
	v1.GET("/projects/:id/history", s.handleHistory)
	v1.POST("/projects/:id/commit", s.handleCommit)
	v1.GET("/recent", s.handleRecent)
	v1.POST("/recent/:id/load", s.handleLoadRecent)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Projects: len(s.session.Summaries(c.Request().Context())),
	})
}

func (s *Server) handleList(c echo.Context) error {
	projects := s.session.Summaries(c.Request().Context())
	if projects == nil {
		projects = []workspace.Summary{}
	}
	return c.JSON(http.StatusOK, ProjectsResponse{Projects: projects})
}

func (s *Server) handleCreate(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	var (
		sum workspace.Summary
		err error
	)
	switch {
	case req.Example:
		sum, err = s.session.CreateExample(ctx)
	case req.Name == "":
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	default:
		sum, err = s.session.CreateEmptyNamed(ctx, req.Name)
	}
	if err != nil {
		return s.fail(c, "create project", err)
	}
	return c.JSON(http.StatusCreated, sum)
}

func (s *Server) handleOpen(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path field is required")
	}
	sum, err := s.session.OpenFromFile(c.Request().Context(), req.Path)
	if err != nil {
		return s.fail(c, "open project", err)
	}
	return c.JSON(http.StatusCreated, sum)
}

func (s *Server) handleImport(c echo.Context) error {
	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.File == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	sum, err := s.session.ImportExternal(c.Request().Context(), req.File)
	if err != nil {
		return s.fail(c, "import project", err)
	}
	return c.JSON(http.StatusCreated, sum)
}

func (s *Server) handleCheckout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sum, err := s.session.Checkout(c.Request().Context(), req.ID, req.Name)
	if err != nil {
		return s.fail(c, "checkout project", err)
	}
	return c.JSON(http.StatusCreated, sum)
}

func (s *Server) handleClose(c echo.Context) error {
	if err := s.session.CloseProject(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(c, "close project", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHistory(c echo.Context) error {
	id := c.Param("id")
	revisions, err := s.session.History(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, "project history", err)
	}
	if revisions == nil {
		revisions = []vcs.Revision{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{ProjectID: id, Revisions: revisions})
}

func (s *Server) handleCommit(c echo.Context) error {
	var req CommitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id := c.Param("id")
	hash, err := s.session.CommitAll(c.Request().Context(), id, req.Message)
	if err != nil {
		return s.fail(c, "commit project", err)
	}
	return c.JSON(http.StatusCreated, CommitResponse{ProjectID: id, Hash: hash})
}

func (s *Server) handleRecent(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	projects, err := s.session.Recent(c.Request().Context(), limit)
	if err != nil {
		return s.fail(c, "recent projects", err)
	}
	return c.JSON(http.StatusOK, RecentResponse{Projects: projects})
}

func (s *Server) handleLoadRecent(c echo.Context) error {
	sum, err := s.session.LoadRecent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, "load recent project", err)
	}
	return c.JSON(http.StatusCreated, sum)
}

// fail maps workspace errors to HTTP errors.
func (s *Server) fail(c echo.Context, op string, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed",
			zap.String("request_id", logging.RequestIDFromContext(c.Request().Context())),
			zap.Error(err),
		)
		return echo.NewHTTPError(status, op+" failed")
	}
	return echo.NewHTTPError(status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrAlreadyOpen):
		return http.StatusConflict
	case errors.Is(err, workspace.ErrFileNotFound), errors.Is(err, workspace.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrEmptyProjectID):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrLoadFailed), errors.Is(err, workspace.ErrImportFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vcs.ErrNotCloned), errors.Is(err, vcs.ErrNothingToCommit):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
