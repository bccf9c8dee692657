package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/traffic-advisor/pkg/common"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"github.com/richxcame/traffic-advisor/pkg/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter is the subset of ratelimit.Limiter used by RateLimit.
type RateLimiter interface {
	RuleFor(endpoint string) ratelimit.Rule
	Allow(ctx context.Context, endpointKey, clientKey string, rule ratelimit.Rule) (ratelimit.Result, error)
}

// RateLimit throttles requests per client IP. Limiter failures let the request through.
func RateLimit(limiter RateLimiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		endpointPath := c.FullPath()
		if endpointPath == "" {
			endpointPath = c.Request.URL.Path
		}
		endpointKey := c.Request.Method + " " + endpointPath

		client := c.ClientIP()
		if client == "" {
			client = "unknown"
		}

		rule := limiter.RuleFor(endpointKey)
		if rule.Limit <= 0 {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), endpointKey, client, rule)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit evaluation failed",
				zap.String("endpoint", endpointKey),
				zap.String("client", client),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(result.Remaining, 0)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(max(wholeSeconds(result.ResetAfter), 0)))

		if result.Allowed {
			c.Next()
			return
		}

		retrySeconds := max(wholeSeconds(result.RetryAfter), 1)
		c.Header("Retry-After", strconv.Itoa(retrySeconds))

		logger.WarnContext(c.Request.Context(), "rate limit exceeded",
			zap.String("endpoint", endpointKey),
			zap.String("client", client),
			zap.Int("retry_after_seconds", retrySeconds),
		)

		common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
		c.Abort()
	}
}

func wholeSeconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
