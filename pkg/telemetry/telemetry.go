package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/beamlit/telemetry-go/pkg/auth"
)

// scopeName identifies the instrumentation scope on tracer, meter, and log
// bridge handles.
const scopeName = "github.com/beamlit/telemetry-go/pkg/telemetry"

// ErrNotInstrumented is returned when a telemetry handle is requested before
// Instrument has installed the providers.
var ErrNotInstrumented = errors.New("telemetry: not instrumented")

// State tracks provider installation. It replaces re-deriving the installed
// kind from the global provider on every call, which was a check-then-act
// race at startup.
type State int

const (
	// StateUninitialized means Instrument has not run.
	StateUninitialized State = iota
	// StateNoOp means telemetry is disabled and no-op providers are installed.
	StateNoOp
	// StateActive means real exporting providers are installed.
	StateActive
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNoOp:
		return "noop"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Telemetry owns the trace, metric, and log pipelines for one process.
//
// It is constructed once by the host application and passed by handle to any
// code needing a tracer or meter; there is no hidden package-level state
// beyond the OpenTelemetry globals it installs.
type Telemetry struct {
	config *Config
	creds  *auth.Provider

	state          State
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider

	tracer oteltrace.Tracer
	meter  metric.Meter
}

// New creates a Telemetry instance. Providers are not installed until
// Instrument runs.
func New(cfg *Config, creds *auth.Provider) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if cfg.Enabled && creds == nil {
		return nil, fmt.Errorf("credential provider is required when telemetry is enabled")
	}

	return &Telemetry{
		config: cfg,
		creds:  creds,
		state:  StateUninitialized,
	}, nil
}

// InstrumentOption configures Instrument.
type InstrumentOption func(*instrumentOptions)

type instrumentOptions struct {
	spanExporter   sdktrace.SpanExporter
	metricExporter sdkmetric.Exporter
	logExporter    sdklog.Exporter
}

// WithSpanExporter overrides the OTLP span exporter (for testing).
func WithSpanExporter(exp sdktrace.SpanExporter) InstrumentOption {
	return func(o *instrumentOptions) {
		o.spanExporter = exp
	}
}

// WithMetricExporter overrides the OTLP metric exporter (for testing).
func WithMetricExporter(exp sdkmetric.Exporter) InstrumentOption {
	return func(o *instrumentOptions) {
		o.metricExporter = exp
	}
}

// WithLogExporter overrides the OTLP log exporter (for testing).
func WithLogExporter(exp sdklog.Exporter) InstrumentOption {
	return func(o *instrumentOptions) {
		o.logExporter = exp
	}
}

// Instrument installs the telemetry providers and instruments the given
// application. Idempotent: after the first call the installed providers are
// reused and repeat calls return immediately.
//
// With telemetry disabled, no-op trace and metric providers are installed
// globally and nothing else happens: no log pipeline, no HTTP
// instrumentation, no network traffic.
//
// With telemetry enabled:
//   - a tracer provider with a batching span processor, a meter provider
//     with a periodic reader, and a logger provider with a batching log
//     processor are built over OTLP exporters carrying fresh auth headers,
//     and installed globally;
//   - an otelzap core is teed into the process-wide zap logger so ordinary
//     log statements are forwarded as log records;
//   - inbound requests on app are traced via otelecho middleware, and the
//     process-wide default HTTP transport is wrapped for outbound tracing;
//   - W3C trace context propagation is configured.
//
// app may be nil for hosts that serve no inbound HTTP.
func (t *Telemetry) Instrument(ctx context.Context, app *echo.Echo, opts ...InstrumentOption) error {
	if t.state != StateUninitialized {
		return nil
	}

	if !t.config.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		t.tracer = otel.Tracer(scopeName)
		t.meter = otel.Meter(scopeName)
		t.state = StateNoOp
		return nil
	}

	var options instrumentOptions
	for _, opt := range opts {
		opt(&options)
	}

	res := newResource(t.config)

	spanExporter := options.spanExporter
	if spanExporter == nil {
		var err error
		spanExporter, err = NewSpanExporter(ctx, t.config, t.creds)
		if err != nil {
			return err
		}
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	t.tracerProvider = tp
	t.tracer = tp.Tracer(scopeName)

	metricExporter := options.metricExporter
	if metricExporter == nil {
		var err error
		metricExporter, err = NewMetricExporter(ctx, t.config, t.creds)
		if err != nil {
			return err
		}
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(t.config.MetricExportInterval.Duration()),
		)),
	)
	otel.SetMeterProvider(mp)
	t.meterProvider = mp
	t.meter = mp.Meter(scopeName)

	logExporter := options.logExporter
	if logExporter == nil {
		var err error
		logExporter, err = NewLogExporter(ctx, t.config, t.creds)
		if err != nil {
			return err
		}
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	global.SetLoggerProvider(lp)
	t.loggerProvider = lp
	t.bridgeGlobalLogger(lp)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if app != nil {
		app.Use(otelecho.Middleware(t.config.ServiceName))
	}
	http.DefaultTransport = otelhttp.NewTransport(http.DefaultTransport)

	t.state = StateActive
	return nil
}

// bridgeGlobalLogger tees an otelzap core into the process-wide zap logger so
// every zap.L() statement also becomes an OTLP log record.
func (t *Telemetry) bridgeGlobalLogger(lp *sdklog.LoggerProvider) {
	bridge := otelzap.NewCore(scopeName, otelzap.WithLoggerProvider(lp))
	zap.ReplaceGlobals(zap.L().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, bridge)
	})))
}

// State returns the current installation state.
func (t *Telemetry) State() State {
	if t == nil {
		return StateUninitialized
	}
	return t.state
}

// Tracer returns the tracer handle for custom spans.
//
// Returns a no-op tracer if Instrument has not run.
func (t *Telemetry) Tracer() oteltrace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.GetTracerProvider().Tracer(scopeName)
	}
	return t.tracer
}

// Meter returns the meter handle for custom metrics.
//
// Returns a no-op meter if Instrument has not run.
func (t *Telemetry) Meter() metric.Meter {
	if t == nil || t.meter == nil {
		return otel.GetMeterProvider().Meter(scopeName)
	}
	return t.meter
}

// LoggerProvider returns the installed log provider for manual bridging.
// Fails with ErrNotInstrumented rather than returning a nil provider: logs
// emitted through a nil provider would silently vanish.
func (t *Telemetry) LoggerProvider() (otellog.LoggerProvider, error) {
	if t == nil || t.loggerProvider == nil {
		return nil, ErrNotInstrumented
	}
	return t.loggerProvider, nil
}

// Shutdown flushes and shuts down the real providers. Safe to call when
// telemetry was never enabled or Instrument never ran: it is a guarded no-op
// and produces no network traffic.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.state != StateActive {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout.Duration())
		defer cancel()
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ForceFlush immediately exports all pending telemetry data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil || t.state != StateActive {
		return nil
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log flush: %w", err))
		}
	}

	return errors.Join(errs...)
}
