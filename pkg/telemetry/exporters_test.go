package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportersNilWhenDisabled(t *testing.T) {
	cfg := &Config{Enabled: false}
	ctx := context.Background()

	span, err := NewSpanExporter(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, span)

	metric, err := NewMetricExporter(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, metric)

	log, err := NewLogExporter(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, log)
}

func TestExporterConstruction(t *testing.T) {
	// Exporters connect lazily, so construction succeeds without a collector.
	for _, protocol := range []string{"grpc", "http/protobuf"} {
		t.Run(protocol, func(t *testing.T) {
			cfg := validConfig()
			cfg.Protocol = protocol
			cfg.Endpoint = "localhost:4317"
			cfg.Insecure = true
			creds := testCreds()
			ctx := context.Background()

			span, err := NewSpanExporter(ctx, cfg, creds)
			require.NoError(t, err)
			require.NotNil(t, span)
			require.NoError(t, span.Shutdown(ctx))

			metric, err := NewMetricExporter(ctx, cfg, creds)
			require.NoError(t, err)
			require.NotNil(t, metric)
			require.NoError(t, metric.Shutdown(ctx))

			log, err := NewLogExporter(ctx, cfg, creds)
			require.NoError(t, err)
			require.NotNil(t, log)
			require.NoError(t, log.Shutdown(ctx))
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestBaseURLHost(t *testing.T) {
	assert.Equal(t, "api.beamlit.com", baseURLHost("https://api.beamlit.com/v0"))
	assert.Equal(t, "api.example.com", baseURLHost("http://api.example.com"))
	assert.Equal(t, "api.example.com", baseURLHost("api.example.com"))
}
