package traffic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/traffic-advisor/pkg/cache"
	"github.com/richxcame/traffic-advisor/pkg/geo"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"github.com/richxcame/traffic-advisor/pkg/resilience"
	"go.uber.org/zap"
)

// India's bounding box, used for the last-resort random coordinate.
const (
	indiaMinLatitude  = 8.0
	indiaMaxLatitude  = 37.0
	indiaMinLongitude = 68.0
	indiaMaxLongitude = 97.0
)

// ErrNoResult is returned by a Geocoder that found nothing for a query.
var ErrNoResult = errors.New("no geocoding result")

// Geocoder turns free text into a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geo.Coordinate, error)
}

// ResolutionSource names the step that produced a coordinate.
type ResolutionSource string

const (
	ResolvedByCache     ResolutionSource = "cache"
	ResolvedByGeocoder  ResolutionSource = "geocoder"
	ResolvedByCityTable ResolutionSource = "city_table"
	ResolvedByRandom    ResolutionSource = "random"
)

// City is an entry of the static fallback table.
type City struct {
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

var defaultCities = []City{
	{Name: "Delhi", Aliases: []string{"New Delhi"}, Coordinate: geo.Coordinate{Latitude: 28.7041, Longitude: 77.1025}},
	{Name: "Mumbai", Aliases: []string{"Bombay"}, Coordinate: geo.Coordinate{Latitude: 19.0760, Longitude: 72.8777}},
	{Name: "Bengaluru", Aliases: []string{"Bangalore"}, Coordinate: geo.Coordinate{Latitude: 12.9716, Longitude: 77.5946}},
	{Name: "Hyderabad", Coordinate: geo.Coordinate{Latitude: 17.3850, Longitude: 78.4867}},
	{Name: "Chennai", Aliases: []string{"Madras"}, Coordinate: geo.Coordinate{Latitude: 13.0827, Longitude: 80.2707}},
	{Name: "Kolkata", Aliases: []string{"Calcutta"}, Coordinate: geo.Coordinate{Latitude: 22.5726, Longitude: 88.3639}},
}

// Cities returns a copy of the supported city table in lookup order.
func Cities() []City {
	out := make([]City, len(defaultCities))
	copy(out, defaultCities)
	return out
}

// Resolver resolves location text to a coordinate. Resolve never fails:
// it tries the cache, then the geocoder, then the city table, and finally
// picks a random point inside India.
type Resolver struct {
	geocoder Geocoder
	cache    *cache.Manager
	cacheTTL time.Duration
	cities   []City
	rng      *Random
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithGeocodeCache stores successful geocoder answers for ttl.
func WithGeocodeCache(manager *cache.Manager, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = manager
		r.cacheTTL = ttl
	}
}

// WithCities replaces the static city table.
func WithCities(cities []City) ResolverOption {
	return func(r *Resolver) {
		r.cities = cities
	}
}

// NewResolver creates a Resolver. geocoder may be nil to skip the network step.
func NewResolver(geocoder Geocoder, rng *Random, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		geocoder: geocoder,
		cities:   defaultCities,
		rng:      rng,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = NewRandom(0)
	}
	return r
}

// Resolve returns a valid coordinate for text and the step that produced it.
func (r *Resolver) Resolve(ctx context.Context, text string) (geo.Coordinate, ResolutionSource) {
	return r.ResolveIn(ctx, text, "")
}

// ResolveIn is Resolve with a city hint: when text matches no table entry,
// cityHint is matched before falling back to a random point.
func (r *Resolver) ResolveIn(ctx context.Context, text, cityHint string) (geo.Coordinate, ResolutionSource) {
	coord, source := r.resolve(ctx, text, cityHint)
	resolutionsTotal.WithLabelValues(string(source)).Inc()
	return coord, source
}

func (r *Resolver) resolve(ctx context.Context, text, cityHint string) (geo.Coordinate, ResolutionSource) {
	log := logger.WithContext(ctx)

	if r.geocoder != nil {
		key := cache.Keys.Geocode(text)

		var cached geo.Coordinate
		if err := r.cache.Get(ctx, key, &cached); err == nil && cached.Valid() {
			return cached, ResolvedByCache
		} else if err != nil && !errors.Is(err, cache.ErrMiss) {
			log.Debug("geocode cache read failed", zap.Error(err))
		}

		coord, err := r.geocode(ctx, text)
		if err == nil {
			if err := r.cache.Set(ctx, key, coord, r.cacheTTL); err != nil {
				log.Debug("geocode cache write failed", zap.Error(err))
			}
			return coord, ResolvedByGeocoder
		}

		recordFallback(ctx, componentGeocoder, fallbackReason(err))
		log.Warn("geocoding failed, using fallback",
			zap.String("component", componentGeocoder),
			zap.String("query", text),
			zap.Error(err),
		)
	}

	if coord, ok := r.lookupCity(text); ok {
		return coord, ResolvedByCityTable
	}
	if cityHint != "" {
		if coord, ok := r.lookupCity(cityHint); ok {
			return coord, ResolvedByCityTable
		}
	}

	return r.randomCoordinate(), ResolvedByRandom
}

func (r *Resolver) geocode(ctx context.Context, text string) (geo.Coordinate, error) {
	coord, err := r.geocoder.Geocode(ctx, text)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if !coord.Valid() {
		return geo.Coordinate{}, fmt.Errorf("%w: %s", errInvalidCoordinate, coord)
	}
	return coord, nil
}

// lookupCity returns the first table entry whose name or alias occurs in text.
func (r *Resolver) lookupCity(text string) (geo.Coordinate, bool) {
	lower := strings.ToLower(text)
	for _, city := range r.cities {
		if strings.Contains(lower, strings.ToLower(city.Name)) {
			return city.Coordinate, true
		}
		for _, alias := range city.Aliases {
			if strings.Contains(lower, strings.ToLower(alias)) {
				return city.Coordinate, true
			}
		}
	}
	return geo.Coordinate{}, false
}

func (r *Resolver) randomCoordinate() geo.Coordinate {
	return geo.Coordinate{
		Latitude:  r.rng.Uniform(indiaMinLatitude, indiaMaxLatitude),
		Longitude: r.rng.Uniform(indiaMinLongitude, indiaMaxLongitude),
	}
}

var errInvalidCoordinate = errors.New("coordinate out of range")

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return reasonCircuitOpen
	case errors.Is(err, ErrNoResult), errors.Is(err, errEmptyCondition):
		return reasonEmpty
	case errors.Is(err, errInvalidCoordinate), errors.Is(err, errInvalidOutput):
		return reasonInvalid
	default:
		return reasonError
	}
}
