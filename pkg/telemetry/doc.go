// Package telemetry wires an application to the Beamlit OpenTelemetry
// collector, authenticating export with workspace client credentials.
//
// # Overview
//
// The package owns three OTLP pipelines (traces, metrics, logs) plus the
// instrumentation of inbound and outbound HTTP. Export requests carry an
// authorization header backed by a lazily renewed OAuth2 token, see the auth
// package.
//
// # Usage
//
// Bootstrap once at startup:
//
//	settings, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	creds := auth.NewProvider(settings)
//	tel, err := telemetry.New(telemetry.FromSettings(settings), creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tel.Instrument(ctx, e); err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Then emit custom spans and metrics anywhere the handle reaches:
//
//	ctx, span := tel.Tracer().Start(ctx, "agent.run")
//	defer span.End()
//
//	counter, _ := tel.Meter().Int64Counter("agent.requests")
//	counter.Add(ctx, 1)
//
// # Disabled telemetry
//
// With enable_opentelemetry false the application behaves as if this package
// were absent, except that no-op trace and metric providers are installed
// globally. Exporter factories return nil, Instrument touches no HTTP
// machinery, and Shutdown is a no-op.
//
// # Testing
//
// Use TestTelemetry for in-memory pipelines:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer().Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
