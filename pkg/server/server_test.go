package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamlit/telemetry-go/pkg/config"
	"github.com/beamlit/telemetry-go/pkg/logging"
	"github.com/beamlit/telemetry-go/pkg/telemetry"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	settings := config.NewDefaultSettings()
	settings.Name = "test-service"
	settings.Server.ShutdownTimeout = config.Duration(time.Second)

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	require.NoError(t, err)

	tel, err := telemetry.New(&telemetry.Config{Enabled: false}, nil)
	require.NoError(t, err)

	srv, err := NewServer(context.Background(), settings, tel, logger)
	require.NoError(t, err)
	return srv
}

func TestNewServerValidation(t *testing.T) {
	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	require.NoError(t, err)

	_, err = NewServer(context.Background(), nil, nil, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings are required")

	_, err = NewServer(context.Background(), config.NewDefaultSettings(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test-service", health.Service)
	assert.Equal(t, "noop", health.Telemetry)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDAssigned(t *testing.T) {
	srv := testServer(t)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestApplicationRoutes(t *testing.T) {
	srv := testServer(t)
	srv.Echo().GET("/custom", func(c echo.Context) error {
		return c.String(http.StatusOK, "custom")
	})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "custom", rec.Body.String())
}

func TestRecoverMiddleware(t *testing.T) {
	srv := testServer(t)
	srv.Echo().GET("/panic", func(c echo.Context) error {
		panic("handler exploded")
	})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartAndGracefulShutdown(t *testing.T) {
	srv := testServer(t)
	srv.settings.Server.Host = "127.0.0.1"
	srv.settings.Server.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", srv.settings.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestStartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := testServer(t)
	srv.settings.Server.Host = "127.0.0.1"
	srv.settings.Server.Port = ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = srv.Start(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, http.ErrServerClosed)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
