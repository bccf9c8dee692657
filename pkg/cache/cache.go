package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/richxcame/traffic-advisor/pkg/redis"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Manager handles caching operations with JSON serialization.
// A nil Manager behaves as an always-empty cache.
type Manager struct {
	redis redisclient.ClientInterface
}

// NewManager creates a new cache manager
func NewManager(redis redisclient.ClientInterface) *Manager {
	if redis == nil {
		return nil
	}
	return &Manager{redis: redis}
}

// Get retrieves a cached value and unmarshals it into result
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	if m == nil {
		return ErrMiss
	}

	data, err := m.redis.GetString(ctx, key)
	if err != nil {
		if redisclient.IsMiss(err) {
			return ErrMiss
		}
		return err
	}

	if err := json.Unmarshal([]byte(data), result); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Set marshals and caches a value with expiration
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
}

// Delete removes keys from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if m == nil {
		return nil
	}
	return m.redis.Delete(ctx, keys...)
}

// CacheKeys defines cache key patterns
type CacheKeys struct{}

var Keys = CacheKeys{}

// Geocode returns the cache key for a free-text place lookup.
// Queries differing only in case or surrounding space share an entry.
func (k CacheKeys) Geocode(query string) string {
	return fmt.Sprintf("traffic:geocode:%s", normalize(query))
}

// Weather returns the cache key for a city's current conditions.
func (k CacheKeys) Weather(city string) string {
	return fmt.Sprintf("traffic:weather:%s", normalize(city))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
