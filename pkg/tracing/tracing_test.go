package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestTraceExternalAPI_RecordsError(t *testing.T) {
	recorder := withRecorder(t)

	err := TraceExternalAPI(context.Background(), "test", "nominatim", "search", func(ctx context.Context) error {
		return errors.New("timeout")
	})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "nominatim.search", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTraceDBQuery_Success(t *testing.T) {
	recorder := withRecorder(t)

	err := TraceDBQuery(context.Background(), "test", "insert_prediction", func(ctx context.Context) error {
		assert.NotEmpty(t, GetTraceID(ctx))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "db.insert_prediction", recorder.Ended()[0].Name())
}

func TestInitTracer_Disabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{Enabled: false}, zap.NewNop())
	assert.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestNewSampler_DefaultsByEnvironment(t *testing.T) {
	assert.Contains(t, newSampler(Config{Environment: "production"}).Description(), "0.1")
	assert.Contains(t, newSampler(Config{SampleRate: 0.25}).Description(), "0.25")
}
