package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestTestTelemetryRecordsSpans(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer().Start(ctx, "handle-request",
		oteltrace.WithAttributes(attribute.String("workspace", "acme")))
	span.End()

	tt.AssertSpanExists(t, "handle-request")
	tt.AssertSpanAttribute(t, "handle-request", "workspace", "acme")
	assert.Nil(t, tt.SpanByName("never-started"))
}

func TestTestTelemetryCollectsMetrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tt.Meter().Int64Counter("requests.total")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	counter.Add(ctx, 3)

	rm, err := tt.CollectMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "requests.total", m.Name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.EqualValues(t, 5, sum.DataPoints[0].Value)
}

func TestTestTelemetryRecordsLogs(t *testing.T) {
	tt := NewTestTelemetry()

	lp, err := tt.LoggerProvider()
	require.NoError(t, err)

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("hello"))
	rec.SetSeverity(otellog.SeverityInfo)
	lp.Logger("test-scope").Emit(context.Background(), rec)

	records := tt.LogSink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Body().AsString())
}
