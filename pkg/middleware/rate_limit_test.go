package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/traffic-advisor/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
)

type fakeLimiter struct {
	rule    ratelimit.Rule
	results []ratelimit.Result
	err     error
	keys    []string
}

func (f *fakeLimiter) RuleFor(string) ratelimit.Rule { return f.rule }

func (f *fakeLimiter) Allow(_ context.Context, endpointKey, clientKey string, _ ratelimit.Rule) (ratelimit.Result, error) {
	f.keys = append(f.keys, endpointKey+"|"+clientKey)
	if f.err != nil {
		return ratelimit.Result{}, f.err
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

func rateLimitedRouter(limiter RateLimiter) *gin.Engine {
	router := gin.New()
	router.POST("/predict", RateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func postPredict(router *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsThenRejects(t *testing.T) {
	limiter := &fakeLimiter{
		rule: ratelimit.Rule{Limit: 1, Window: time.Minute},
		results: []ratelimit.Result{
			{Allowed: true, Limit: 1, Remaining: 0, ResetAfter: 60 * time.Second},
			{Allowed: false, Limit: 1, RetryAfter: 1500 * time.Millisecond},
		},
	}
	router := rateLimitedRouter(limiter)

	first := postPredict(router)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", first.Header().Get("X-RateLimit-Reset"))

	second := postPredict(router)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "rate limit exceeded")

	assert.Equal(t, []string{"POST /predict|10.1.2.3", "POST /predict|10.1.2.3"}, limiter.keys)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := &fakeLimiter{rule: ratelimit.Rule{Limit: 1}, err: errors.New("redis down")}

	w := postPredict(rateLimitedRouter(limiter))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_ZeroLimitSkips(t *testing.T) {
	limiter := &fakeLimiter{rule: ratelimit.Rule{Limit: 0}}

	w := postPredict(rateLimitedRouter(limiter))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.keys)
}

func TestRateLimit_NilLimiter(t *testing.T) {
	w := postPredict(rateLimitedRouter(nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
