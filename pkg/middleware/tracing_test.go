package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddleware_RecordsRouteAndStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	router := gin.New()
	router.Use(CorrelationID(), TracingMiddleware("traffic"))
	router.GET("/api/v1/traffic/predictions/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/traffic/predictions/abc", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "GET /api/v1/traffic/predictions/:id", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, span.SpanContext().TraceID().String(), w.Header().Get(TraceIDHeader))
	assert.Contains(t, span.Attributes(), attribute.Int("http.status_code", http.StatusNotFound))
	assert.Contains(t, span.Attributes(), attribute.String("http.request_id", w.Header().Get(CorrelationIDHeader)))
}

func TestSpanStatus(t *testing.T) {
	code, _ := spanStatus(http.StatusOK)
	assert.Equal(t, codes.Ok, code)

	code, desc := spanStatus(http.StatusTooManyRequests)
	assert.Equal(t, codes.Error, code)
	assert.Equal(t, "Too Many Requests", desc)
}
