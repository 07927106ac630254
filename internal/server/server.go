// Package server exposes the hosted pipelines over HTTP: model
// discovery, chat completions (plain and streamed), lifecycle and
// valves notifications, health, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anthropic-manifold/internal/config"
	"anthropic-manifold/internal/observability"
	"anthropic-manifold/internal/pipeline"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg      config.Config
	registry *pipeline.Registry
	app      *echo.Echo
	address  string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, registry *pipeline.Registry) (*Server, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			observability.RequestsTotal.WithLabelValues(c.Path(), strconv.Itoa(v.Status)).Inc()
			return nil
		},
	}))

	srv := &Server{
		cfg:      cfg,
		registry: registry,
		app:      e,
		address:  fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is
// cancelled. Pipeline startup hooks fire before the listener opens;
// shutdown hooks fire after it drains.
func (s *Server) Run(ctx context.Context) error {
	for _, p := range s.registry.Pipelines() {
		if err := p.OnStartup(ctx); err != nil {
			return fmt.Errorf("pipeline %q startup: %w", p.ID(), err)
		}
	}

	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		for _, p := range s.registry.Pipelines() {
			if err := p.OnShutdown(shutdownCtx); err != nil {
				slog.Error("pipeline shutdown hook failed", "pipeline", p.ID(), "error", err)
			}
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleListModels)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)
	s.app.POST("/v1/valves/update", s.handleValvesUpdate)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleListModels surfaces every registered model for the host's
// model-selection layer. The set and order are stable.
func (s *Server) handleListModels(c echo.Context) error {
	models := s.registry.Models()
	return c.JSON(http.StatusOK, map[string]any{"data": models})
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	var req chatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	_, p, err := s.registry.Lookup(req.Model)
	if err != nil {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}

	result, err := p.Pipe(c.Request().Context(), pipeline.Request{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  req.Options,
	})
	if err != nil {
		slog.Error("pipe failed", "model", req.Model, "error", err)
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider error",
			Type:    "upstream_error",
		}
	}

	if result.Streaming() {
		return writeFragmentStream(c, result.Stream)
	}

	return c.JSON(http.StatusOK, completionResponse{
		Model:   req.Model,
		Content: result.Text,
	})
}

// handleValvesUpdate is the host-invoked configuration-change
// notification. With an empty body the credential is re-read from the
// environment; a JSON body may carry the new key explicitly.
func (s *Server) handleValvesUpdate(c echo.Context) error {
	var body valvesUpdateRequest
	if err := decodeOptionalBody(c, &body); err != nil {
		return err
	}

	apiKey := body.APIKey
	if apiKey == "" {
		apiKey = config.Credential()
	}

	valves := pipeline.Valves{
		APIKey:  apiKey,
		BaseURL: s.cfg.Anthropic.BaseURL,
	}

	for _, p := range s.registry.Pipelines() {
		if err := p.OnValvesUpdate(valves); err != nil {
			slog.Error("valves update failed", "pipeline", p.ID(), "error", err)
			return requestError{
				Status:  http.StatusInternalServerError,
				Message: fmt.Sprintf("valves update failed for pipeline %q", p.ID()),
				Type:    "server_error",
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

type completionResponse struct {
	Model   string `json:"model"`
	Content string `json:"content"`
}

type valvesUpdateRequest struct {
	APIKey string `json:"api_key"`
}
