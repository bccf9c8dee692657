package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/richxcame/traffic-advisor/pkg/config"
)

// Rule defines a token bucket policy for one endpoint.
type Rule struct {
	Limit  int
	Burst  int
	Window time.Duration
}

// Capacity is the bucket size: the sustained limit plus the burst allowance.
func (r Rule) Capacity() float64 {
	capacity := float64(r.Limit + r.Burst)
	if capacity < 1 {
		return 1
	}
	return capacity
}

// Result captures the outcome of a rate limiting decision.
type Result struct {
	Allowed     bool
	Remaining   int
	Limit       int
	Window      time.Duration
	RetryAfter  time.Duration
	ResetAfter  time.Duration
	ClientKey   string
	EndpointKey string
}

// Limiter implements a Redis-backed token bucket keyed by endpoint and client.
type Limiter struct {
	client redis.Cmdable
	cfg    config.RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(data[1])
local timestamp = tonumber(data[2])

if tokens == nil then
    tokens = capacity
    timestamp = now
elseif timestamp ~= nil and now > timestamp then
    tokens = math.min(capacity, tokens + ((now - timestamp) * refillRate))
end

local allowed = 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
end

redis.call("HSET", key, "tokens", tokens, "timestamp", now)
redis.call("PEXPIRE", key, ttl)

local retryAfter = 0
if allowed == 0 then
    retryAfter = math.ceil((1 - tokens) / refillRate)
end

return {allowed, tostring(tokens), retryAfter}
`

// NewLimiter creates a Limiter. A nil client yields a limiter that allows everything.
func NewLimiter(client redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
	}
}

// WithNow overrides the time source.
func (l *Limiter) WithNow(now func() time.Time) {
	l.now = now
}

// RuleFor returns the effective rule for an endpoint such as "POST /api/v1/traffic/predict".
func (l *Limiter) RuleFor(endpoint string) Rule {
	rule := Rule{Limit: l.cfg.Limit, Burst: l.cfg.Burst, Window: l.cfg.Window()}

	if override, ok := l.cfg.EndpointOverrides[endpoint]; ok {
		if override.WindowSeconds > 0 {
			rule.Window = time.Duration(override.WindowSeconds) * time.Second
		}
		if override.Limit > 0 {
			rule.Limit = override.Limit
		}
		if override.Burst >= 0 {
			rule.Burst = override.Burst
		}
	}

	if rule.Limit < 0 {
		rule.Limit = 0
	}
	if rule.Burst < 0 {
		rule.Burst = 0
	}
	return rule
}

// Allow consumes one token for clientKey on endpointKey.
func (l *Limiter) Allow(ctx context.Context, endpointKey, clientKey string, rule Rule) (Result, error) {
	if !l.cfg.Enabled || l.client == nil || rule.Limit <= 0 {
		return Result{
			Allowed:     true,
			Remaining:   rule.Limit,
			Limit:       rule.Limit,
			Window:      rule.Window,
			ClientKey:   clientKey,
			EndpointKey: endpointKey,
		}, nil
	}

	if rule.Window <= 0 {
		rule.Window = l.cfg.Window()
	}
	windowMillis := rule.Window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = time.Minute.Milliseconds()
	}

	refillRate := float64(rule.Limit) / float64(windowMillis)
	capacity := rule.Capacity()
	key := fmt.Sprintf("%s:%s:%s", l.cfg.RedisPrefix, endpointKey, clientKey)

	raw, err := l.script.Run(ctx, l.client, []string{key},
		l.now().UnixMilli(), formatFloat(refillRate), formatFloat(capacity), windowMillis*2).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, errors.New("unexpected rate limit script response")
	}

	remainingTokens := toFloat(values[1])
	retryAfter := time.Duration(toInt(values[2])) * time.Millisecond

	result := Result{
		Allowed:     toInt(values[0]) == 1,
		Remaining:   int(math.Max(0, math.Floor(remainingTokens))),
		Limit:       rule.Limit,
		Window:      rule.Window,
		RetryAfter:  retryAfter,
		ResetAfter:  retryAfter,
		ClientKey:   clientKey,
		EndpointKey: endpointKey,
	}

	if result.Allowed {
		missing := math.Max(0, capacity-remainingTokens)
		result.ResetAfter = time.Duration(math.Ceil(missing/refillRate)) * time.Millisecond
		result.RetryAfter = 0
	}

	return result, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 10, 64)
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case string:
		i, _ := strconv.Atoi(v)
		return i
	case float64:
		return int(v)
	default:
		return 0
	}
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
