package traffic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richxcame/traffic-advisor/pkg/cache"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"go.uber.org/zap"
)

// ContextDeriver builds the TripContext for a trip at a given time.
type ContextDeriver struct {
	calendar   *HolidayCalendar
	weather    WeatherProvider
	cache      *cache.Manager
	weatherTTL time.Duration
	rng        *Random
}

// DeriverOption configures a ContextDeriver.
type DeriverOption func(*ContextDeriver)

// WithWeatherProvider enables live weather lookups.
func WithWeatherProvider(provider WeatherProvider) DeriverOption {
	return func(d *ContextDeriver) {
		d.weather = provider
	}
}

// WithWeatherCache caches mapped weather per city for ttl.
func WithWeatherCache(manager *cache.Manager, ttl time.Duration) DeriverOption {
	return func(d *ContextDeriver) {
		d.cache = manager
		d.weatherTTL = ttl
	}
}

// NewContextDeriver creates a deriver. calendar may be nil, in which case no
// date is a holiday.
func NewContextDeriver(calendar *HolidayCalendar, rng *Random, opts ...DeriverOption) *ContextDeriver {
	d := &ContextDeriver{calendar: calendar, rng: rng}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = NewRandom(0)
	}
	return d
}

// Derive returns the trip context for city and distanceKm at now. Hour,
// weekday and holiday are read in now's location.
func (d *ContextDeriver) Derive(ctx context.Context, city string, distanceKm float64, now time.Time) TripContext {
	hour := now.Hour()
	weekday := mondayWeekday(now)

	return TripContext{
		City:       city,
		DistanceKm: distanceKm,
		Hour:       hour,
		Weekday:    weekday,
		DayType:    DayTypeFor(now, d.calendar),
		Weather:    d.currentWeather(ctx, city),
		EventFlag:  d.rng.Bernoulli(EventProbability(hour, weekday)),
		RouteType:  RouteTypeFor(distanceKm),
	}
}

func (d *ContextDeriver) currentWeather(ctx context.Context, city string) Weather {
	log := logger.WithContext(ctx)

	if d.weather == nil {
		recordFallback(ctx, componentWeather, reasonDisabled)
		return drawWeather(d.rng)
	}

	key := cache.Keys.Weather(city)
	var cached Weather
	if err := d.cache.Get(ctx, key, &cached); err == nil {
		if w, ok := MapCondition(string(cached)); ok {
			return w
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Debug("weather cache read failed", zap.Error(err))
	}

	w, err := d.lookupWeather(ctx, city)
	if err != nil {
		recordFallback(ctx, componentWeather, fallbackReason(err))
		log.Warn("weather lookup failed, using fallback distribution",
			zap.String("component", componentWeather),
			zap.String("city", city),
			zap.Error(err),
		)
		return drawWeather(d.rng)
	}

	if err := d.cache.Set(ctx, key, w, d.weatherTTL); err != nil {
		log.Debug("weather cache write failed", zap.Error(err))
	}
	return w
}

func (d *ContextDeriver) lookupWeather(ctx context.Context, city string) (Weather, error) {
	condition, err := d.weather.CurrentCondition(ctx, city)
	if err != nil {
		return "", err
	}
	w, ok := MapCondition(condition)
	if !ok {
		return "", fmt.Errorf("%w: unknown weather condition %q", errInvalidOutput, condition)
	}
	return w, nil
}

// DayTypeFor classifies t: holiday first, then weekend, else weekday.
func DayTypeFor(t time.Time, calendar *HolidayCalendar) DayType {
	if calendar.IsHoliday(t) {
		return DayTypeHoliday
	}
	if wd := mondayWeekday(t); wd == 5 || wd == 6 {
		return DayTypeWeekend
	}
	return DayTypeWeekday
}

// RouteTypeFor classifies a segment by length: under 5 km is local, under
// 15 km suburban, anything longer highway.
func RouteTypeFor(distanceKm float64) RouteType {
	switch {
	case distanceKm < 5:
		return RouteLocal
	case distanceKm < 15:
		return RouteSuburban
	default:
		return RouteHighway
	}
}

// IsPeakHour reports whether hour is in 08-10 or 17-19 inclusive.
func IsPeakHour(hour int) bool {
	return (hour >= 8 && hour <= 10) || (hour >= 17 && hour <= 19)
}

// isExtendedPeakHour reports whether hour is in 07-11 or 16-20 inclusive.
func isExtendedPeakHour(hour int) bool {
	return (hour >= 7 && hour <= 11) || (hour >= 16 && hour <= 20)
}

// EventProbability is the chance that a local event affects traffic.
func EventProbability(hour, weekday int) float64 {
	p := 0.1
	if weekday == 5 || weekday == 6 {
		p = 0.3
	}
	if IsPeakHour(hour) {
		p += 0.2
	}
	return p
}
