package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/richxcame/traffic-advisor/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestShouldReportError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   bool
	}{
		{name: "nil error", err: nil, statusCode: 500, expected: false},
		{name: "server error", err: stderrors.New("insert failed"), statusCode: 500, expected: true},
		{name: "bad request", err: stderrors.New("bad input"), statusCode: 400, expected: false},
		{name: "rate limited", err: stderrors.New("slow down"), statusCode: 429, expected: true},
		{name: "validation app error", err: common.NewValidationError("source is required"), statusCode: 500, expected: false},
		{name: "internal app error", err: common.NewInternalError("failed", nil), statusCode: 500, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldReportError(tt.err, tt.statusCode))
		})
	}
}

func TestDefaultSentryConfig(t *testing.T) {
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SENTRY_TRACES_SAMPLE_RATE", "")
	t.Setenv("SENTRY_SAMPLE_RATE", "2.5")

	cfg := DefaultSentryConfig("traffic")
	assert.Equal(t, "traffic", cfg.ServerName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 0.1, cfg.TracesSampleRate)
	assert.Equal(t, 1.0, cfg.SampleRate)

	assert.Error(t, InitSentry(cfg))
}

func TestCaptureErrorWithContext_NilError(t *testing.T) {
	assert.Nil(t, CaptureErrorWithContext(context.Background(), nil, nil))
}
