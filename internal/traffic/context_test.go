package traffic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/traffic-advisor/pkg/cache"
	redisclient "github.com/richxcame/traffic-advisor/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherFunc func(ctx context.Context, city string) (string, error)

func (f weatherFunc) CurrentCondition(ctx context.Context, city string) (string, error) {
	return f(ctx, city)
}

func failingWeather() WeatherProvider {
	return weatherFunc(func(context.Context, string) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	})
}

func TestRouteTypeFor(t *testing.T) {
	assert.Equal(t, RouteLocal, RouteTypeFor(0))
	assert.Equal(t, RouteLocal, RouteTypeFor(4.9))
	assert.Equal(t, RouteSuburban, RouteTypeFor(5.0))
	assert.Equal(t, RouteSuburban, RouteTypeFor(14.9))
	assert.Equal(t, RouteHighway, RouteTypeFor(15.0))
	assert.Equal(t, RouteHighway, RouteTypeFor(120))
}

func TestIsPeakHour(t *testing.T) {
	peak := map[int]bool{8: true, 9: true, 10: true, 17: true, 18: true, 19: true}
	for h := 0; h < 24; h++ {
		assert.Equal(t, peak[h], IsPeakHour(h), "hour %d", h)
	}
}

func TestEventProbability(t *testing.T) {
	assert.InDelta(t, 0.1, EventProbability(3, 0), 1e-9)
	assert.InDelta(t, 0.3, EventProbability(9, 2), 1e-9)
	assert.InDelta(t, 0.3, EventProbability(13, 5), 1e-9)
	assert.InDelta(t, 0.5, EventProbability(18, 6), 1e-9)
	assert.InDelta(t, 0.1, EventProbability(20, 4), 1e-9)
}

func TestDayTypeFor(t *testing.T) {
	cal := newIndiaCalendar(t)

	assert.Equal(t, DayTypeWeekday, DayTypeFor(day(2025, time.March, 12), cal)) // Wednesday
	assert.Equal(t, DayTypeWeekend, DayTypeFor(day(2025, time.March, 15), cal)) // Saturday
	assert.Equal(t, DayTypeWeekend, DayTypeFor(day(2025, time.March, 16), cal)) // Sunday
	assert.Equal(t, DayTypeHoliday, DayTypeFor(day(2025, time.March, 14), cal)) // Holi, a Friday
	assert.Equal(t, DayTypeHoliday, DayTypeFor(day(2025, time.January, 26), cal), "holiday wins over Sunday")
	assert.Equal(t, DayTypeWeekday, DayTypeFor(day(2025, time.January, 27), nil))
}

func TestContextDeriver_Derive(t *testing.T) {
	provider := weatherFunc(func(_ context.Context, city string) (string, error) {
		assert.Equal(t, "Delhi", city)
		return "Haze", nil
	})
	d := NewContextDeriver(newIndiaCalendar(t), NewRandom(1), WithWeatherProvider(provider))

	// Saturday 2025-03-15, 18:30.
	now := time.Date(2025, time.March, 15, 18, 30, 0, 0, time.UTC)
	tc := d.Derive(context.Background(), "Delhi", 7.2, now)

	assert.Equal(t, "Delhi", tc.City)
	assert.InDelta(t, 7.2, tc.DistanceKm, 1e-9)
	assert.Equal(t, 18, tc.Hour)
	assert.Equal(t, 5, tc.Weekday)
	assert.True(t, tc.IsWeekend())
	assert.Equal(t, DayTypeWeekend, tc.DayType)
	assert.Equal(t, WeatherClouds, tc.Weather)
	assert.Equal(t, RouteSuburban, tc.RouteType)
}

func TestContextDeriver_WeatherFallbacks(t *testing.T) {
	providers := map[string]WeatherProvider{
		"disabled": nil,
		"error":    failingWeather(),
		"unmapped": weatherFunc(func(context.Context, string) (string, error) { return "Volcanic ash cloud", nil }),
	}

	now := time.Date(2025, time.June, 4, 9, 0, 0, 0, time.UTC)
	valid := map[Weather]bool{WeatherClear: true, WeatherClouds: true, WeatherRain: true, WeatherThunderstorm: true}

	for name, provider := range providers {
		t.Run(name, func(t *testing.T) {
			opts := []DeriverOption{}
			if provider != nil {
				opts = append(opts, WithWeatherProvider(provider))
			}
			d := NewContextDeriver(nil, NewRandom(99), opts...)
			tc := d.Derive(context.Background(), "Kolkata", 3, now)
			assert.True(t, valid[tc.Weather], "weather %q", tc.Weather)
		})
	}
}

func TestContextDeriver_DeterministicWithSeed(t *testing.T) {
	now := time.Date(2025, time.June, 7, 18, 0, 0, 0, time.UTC)

	var first []TripContext
	for run := 0; run < 2; run++ {
		d := NewContextDeriver(nil, NewRandom(2024), WithWeatherProvider(failingWeather()))
		var got []TripContext
		for i := 0; i < 20; i++ {
			got = append(got, d.Derive(context.Background(), "Chennai", 9, now))
		}
		if run == 0 {
			first = got
			continue
		}
		assert.Equal(t, first, got)
	}
}

func TestContextDeriver_EventRate(t *testing.T) {
	d := NewContextDeriver(nil, NewRandom(5))
	// Saturday evening peak: 0.3 + 0.2.
	now := time.Date(2025, time.June, 7, 18, 0, 0, 0, time.UTC)

	events := 0
	const n = 5000
	for i := 0; i < n; i++ {
		if d.Derive(context.Background(), "Mumbai", 1, now).EventFlag {
			events++
		}
	}
	assert.InDelta(t, 0.5, float64(events)/n, 0.03)
}

func TestContextDeriver_WeatherCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	manager := cache.NewManager(redisclient.Wrap(db))

	calls := 0
	provider := weatherFunc(func(context.Context, string) (string, error) {
		calls++
		return "Drizzle", nil
	})
	d := NewContextDeriver(nil, NewRandom(1),
		WithWeatherProvider(provider),
		WithWeatherCache(manager, 10*time.Minute),
	)
	now := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	key := cache.Keys.Weather("Mumbai")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, `"Rain"`, 10*time.Minute).SetVal("OK")
	tc := d.Derive(context.Background(), "Mumbai", 4, now)
	assert.Equal(t, WeatherRain, tc.Weather)

	mock.ExpectGet(key).SetVal(`"Rain"`)
	tc = d.Derive(context.Background(), "Mumbai", 4, now)
	assert.Equal(t, WeatherRain, tc.Weather)

	assert.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}
