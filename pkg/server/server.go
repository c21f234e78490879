// Package server provides the instrumented HTTP shell for Beamlit
// applications.
//
// It wraps an Echo router with health and Prometheus metrics endpoints,
// request logging, and graceful shutdown, and hands the router to the
// telemetry bootstrap for inbound tracing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/beamlit/telemetry-go/pkg/config"
	"github.com/beamlit/telemetry-go/pkg/logging"
	"github.com/beamlit/telemetry-go/pkg/telemetry"
)

// Server is the HTTP host application shell.
type Server struct {
	settings *config.Settings
	echo     *echo.Echo
	logger   *logging.Logger
	tel      *telemetry.Telemetry
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Telemetry string `json:"telemetry"`
}

// NewServer creates an instrumented HTTP server.
//
// Instrument runs against the fresh router, so inbound tracing middleware is
// registered before any routes. With telemetry disabled the router is plain.
func NewServer(ctx context.Context, settings *config.Settings, tel *telemetry.Telemetry, logger *logging.Logger) (*Server, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if tel != nil {
		if err := tel.Instrument(ctx, e); err != nil {
			return nil, fmt.Errorf("instrumenting application: %w", err)
		}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		settings: settings,
		echo:     e,
		logger:   logger,
		tel:      tel,
	}
	s.registerRoutes()

	return s, nil
}

// requestLogger logs each request with trace correlation from the request
// context.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	}
}

// registerRoutes sets up the built-in endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.settings.Name,
		Telemetry: s.tel.State().String(),
	})
}

// Start starts the HTTP server and blocks until the context is cancelled.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other error
// encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.settings.Server.Host, s.settings.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.settings.Server.ShutdownTimeout.Duration(),
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}

// Echo returns the underlying router for registering application routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
