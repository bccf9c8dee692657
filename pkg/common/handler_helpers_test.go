package common_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/traffic-advisor/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		fallbackMsg    string
		expectHandled  bool
		expectStatus   int
		expectContains string
	}{
		{
			name:          "nil error returns false",
			err:           nil,
			fallbackMsg:   "failed",
			expectHandled: false,
		},
		{
			name:           "AppError is handled",
			err:            common.NewNotFoundError("prediction not found", nil),
			fallbackMsg:    "failed to load prediction",
			expectHandled:  true,
			expectStatus:   http.StatusNotFound,
			expectContains: "prediction not found",
		},
		{
			name:           "wrapped AppError is unwrapped",
			err:            errors.Join(errors.New("ctx"), common.NewValidationError("source is required")),
			fallbackMsg:    "failed",
			expectHandled:  true,
			expectStatus:   http.StatusBadRequest,
			expectContains: "VALIDATION_FAILED",
		},
		{
			name:           "regular error uses fallback",
			err:            errors.New("database error"),
			fallbackMsg:    "failed to list predictions",
			expectHandled:  true,
			expectStatus:   http.StatusInternalServerError,
			expectContains: "failed to list predictions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newContext("/test")

			handled := common.HandleServiceError(c, tt.err, tt.fallbackMsg)
			assert.Equal(t, tt.expectHandled, handled)

			if tt.expectHandled {
				assert.Equal(t, tt.expectStatus, w.Code)
				assert.Contains(t, w.Body.String(), tt.expectContains)
			}
		})
	}
}

func TestParseUUIDParam(t *testing.T) {
	valid := uuid.New()

	tests := []struct {
		name     string
		value    string
		expectOK bool
	}{
		{name: "valid", value: valid.String(), expectOK: true},
		{name: "empty", value: "", expectOK: false},
		{name: "garbage", value: "not-a-uuid", expectOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newContext("/test")
			c.Params = gin.Params{{Key: "id", Value: tt.value}}

			id, ok := common.ParseUUIDParam(c, "id", "prediction ID")
			assert.Equal(t, tt.expectOK, ok)
			if tt.expectOK {
				assert.Equal(t, valid, id)
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query        string
		expectLimit  int
		expectOffset int
	}{
		{query: "", expectLimit: 20, expectOffset: 0},
		{query: "?limit=5&offset=10", expectLimit: 5, expectOffset: 10},
		{query: "?limit=500", expectLimit: 100, expectOffset: 0},
		{query: "?limit=-1&offset=-4", expectLimit: 20, expectOffset: 0},
		{query: "?limit=abc&offset=xyz", expectLimit: 20, expectOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := newContext("/predictions" + tt.query)
			limit, offset := common.ParsePagination(c, 20, 100)
			assert.Equal(t, tt.expectLimit, limit)
			assert.Equal(t, tt.expectOffset, offset)
		})
	}
}

func TestReadinessProbe(t *testing.T) {
	router := gin.New()
	router.GET("/ready", common.ReadinessProbe("traffic", "1.0.0", map[string]common.HealthCheckFunc{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body common.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "healthy", body.Checks["database"].Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Message)
}

func TestLivenessProbe(t *testing.T) {
	router := gin.New()
	router.GET("/live", common.LivenessProbe("traffic", "1.0.0"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive"`)
}
