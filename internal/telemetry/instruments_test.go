package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installTestProviders(t *testing.T) (*tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	restoreGlobals(t)

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	return recorder, reader
}

func TestInstruments_RecordsSession(t *testing.T) {
	recorder, reader := installTestProviders(t)

	in, err := NewInstruments()
	require.NoError(t, err)

	ctx, span := in.StartSession(context.Background(), "s-1", "direct", "dogs")
	in.AddToken(ctx, "direct")
	in.AddToken(ctx, "direct")
	in.EndSession(ctx, span, "direct", "completed", "", 2, 150*time.Millisecond)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "stream.session", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	found := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		found[m.Name] = true
		if m.Name == "tokenflow.stream.tokens" {
			sum := m.Data.(metricdata.Sum[int64])
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(2), sum.DataPoints[0].Value)
		}
	}
	assert.True(t, found["tokenflow.stream.tokens"])
	assert.True(t, found["tokenflow.stream.sessions"])
	assert.True(t, found["tokenflow.stream.duration"])
}

func TestInstruments_ErrorStatus(t *testing.T) {
	recorder, _ := installTestProviders(t)

	in, err := NewInstruments()
	require.NoError(t, err)

	ctx, span := in.StartSession(context.Background(), "s-2", "bridged", "cats")
	in.EndSession(ctx, span, "bridged", "UPSTREAM_ERROR", "Connection error: reset", 0, time.Second)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "Connection error: reset", ended[0].Status().Description)
}

func TestInstruments_NilIsNoop(t *testing.T) {
	var in *Instruments
	assert.NotPanics(t, func() {
		ctx, span := in.StartSession(context.Background(), "s", "direct", "dogs")
		in.AddToken(ctx, "direct")
		in.EndSession(ctx, span, "direct", "completed", "", 0, 0)
	})
}
