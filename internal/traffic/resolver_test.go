package traffic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/traffic-advisor/pkg/cache"
	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/richxcame/traffic-advisor/pkg/geo"
	redisclient "github.com/richxcame/traffic-advisor/pkg/redis"
	"github.com/richxcame/traffic-advisor/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var delhi = geo.Coordinate{Latitude: 28.7041, Longitude: 77.1025}

func nominatimServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func nominatimConfig(baseURL string) config.GeocoderConfig {
	return config.GeocoderConfig{
		Enabled:   true,
		BaseURL:   baseURL,
		UserAgent: "traffic_predictor",
		Country:   "India",
		Timeout:   time.Second,
	}
}

func inIndia(c geo.Coordinate) bool {
	return c.Latitude >= indiaMinLatitude && c.Latitude <= indiaMaxLatitude &&
		c.Longitude >= indiaMinLongitude && c.Longitude <= indiaMaxLongitude
}

func TestNominatimClient_Geocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Connaught Place, India", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "traffic_predictor", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[{"lat":"28.6314","lon":"77.2167","display_name":"Connaught Place, New Delhi"}]`))
	}))
	defer server.Close()

	coord, err := NewNominatimClient(nominatimConfig(server.URL), nil).Geocode(context.Background(), " Connaught Place ")

	require.NoError(t, err)
	assert.InDelta(t, 28.6314, coord.Latitude, 1e-9)
	assert.InDelta(t, 77.2167, coord.Longitude, 1e-9)
}

func TestNominatimClient_EmptyResult(t *testing.T) {
	server := nominatimServer(t, http.StatusOK, `[]`)

	_, err := NewNominatimClient(nominatimConfig(server.URL), nil).Geocode(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestResolver_FallsBackToCityTable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"empty result", http.StatusOK, `[]`},
		{"out of range", http.StatusOK, `[{"lat":"95.0","lon":"77.2"}]`},
		{"unparseable", http.StatusOK, `[{"lat":"north","lon":"77.2"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := nominatimServer(t, tt.status, tt.body)
			r := NewResolver(NewNominatimClient(nominatimConfig(server.URL), nil), NewRandom(1))

			coord, source := r.Resolve(context.Background(), "Karol Bagh, New Delhi")

			assert.Equal(t, ResolvedByCityTable, source)
			assert.Equal(t, delhi, coord)
		})
	}
}

func TestResolver_UnreachableGeocoder(t *testing.T) {
	server := nominatimServer(t, http.StatusOK, `[]`)
	server.Close()

	r := NewResolver(NewNominatimClient(nominatimConfig(server.URL), nil), NewRandom(1))
	coord, source := r.Resolve(context.Background(), "bangalore airport")

	assert.Equal(t, ResolvedByCityTable, source)
	assert.Equal(t, geo.Coordinate{Latitude: 12.9716, Longitude: 77.5946}, coord)
}

func TestResolver_CityTableIsCaseInsensitiveAndOrdered(t *testing.T) {
	r := NewResolver(nil, NewRandom(1))

	coord, source := r.Resolve(context.Background(), "MUMBAI central")
	assert.Equal(t, ResolvedByCityTable, source)
	assert.Equal(t, geo.Coordinate{Latitude: 19.0760, Longitude: 72.8777}, coord)

	// Delhi precedes Mumbai in the table.
	coord, _ = r.Resolve(context.Background(), "Mumbai to Delhi")
	assert.Equal(t, delhi, coord)
}

func TestResolver_RandomFallbackStaysInIndia(t *testing.T) {
	r := NewResolver(nil, NewRandom(3))

	for i := 0; i < 200; i++ {
		coord, source := r.Resolve(context.Background(), "Atlantis")
		require.Equal(t, ResolvedByRandom, source)
		require.True(t, coord.Valid())
		require.True(t, inIndia(coord), coord.String())
	}
}

func TestResolver_CityHint(t *testing.T) {
	r := NewResolver(nil, NewRandom(1))

	coord, source := r.ResolveIn(context.Background(), "India Gate", "Delhi")
	assert.Equal(t, ResolvedByCityTable, source)
	assert.Equal(t, delhi, coord)

	// A place naming a city wins over the hint.
	coord, _ = r.ResolveIn(context.Background(), "Chennai Central", "Delhi")
	assert.Equal(t, geo.Coordinate{Latitude: 13.0827, Longitude: 80.2707}, coord)

	_, source = r.ResolveIn(context.Background(), "Atlantis", "El Dorado")
	assert.Equal(t, ResolvedByRandom, source)
}

func TestResolver_OpenCircuitSkipsGeocoder(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "nominatim-test",
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}, nil)

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	r := NewResolver(NewNominatimClient(nominatimConfig(server.URL), breaker), NewRandom(1))
	for i := 0; i < 3; i++ {
		coord, source := r.Resolve(context.Background(), "Hyderabad")
		assert.Equal(t, ResolvedByCityTable, source)
		assert.Equal(t, geo.Coordinate{Latitude: 17.3850, Longitude: 78.4867}, coord)
	}
	assert.Equal(t, 1, hits)
}

type geocoderFunc func(ctx context.Context, query string) (geo.Coordinate, error)

func (f geocoderFunc) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	return f(ctx, query)
}

func TestResolver_GeocodeCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	manager := cache.NewManager(redisclient.Wrap(db))

	calls := 0
	geocoder := geocoderFunc(func(context.Context, string) (geo.Coordinate, error) {
		calls++
		return geo.Coordinate{Latitude: 28.6129, Longitude: 77.2295}, nil
	})
	r := NewResolver(geocoder, NewRandom(1), WithGeocodeCache(manager, 24*time.Hour))
	key := cache.Keys.Geocode("India Gate")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, `{"latitude":28.6129,"longitude":77.2295}`, 24*time.Hour).SetVal("OK")
	_, source := r.Resolve(context.Background(), "India Gate")
	assert.Equal(t, ResolvedByGeocoder, source)

	mock.ExpectGet(key).SetVal(`{"latitude":28.6129,"longitude":77.2295}`)
	coord, source := r.Resolve(context.Background(), "india gate")
	assert.Equal(t, ResolvedByCache, source)
	assert.InDelta(t, 28.6129, coord.Latitude, 1e-9)

	assert.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolver_CacheErrorsAreIgnored(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	manager := cache.NewManager(redisclient.Wrap(db))

	geocoder := geocoderFunc(func(context.Context, string) (geo.Coordinate, error) {
		return geo.Coordinate{Latitude: 22.5726, Longitude: 88.3639}, nil
	})
	r := NewResolver(geocoder, NewRandom(1), WithGeocodeCache(manager, time.Hour))
	key := cache.Keys.Geocode("Howrah Bridge")

	mock.ExpectGet(key).SetErr(errors.New("redis down"))
	mock.ExpectSet(key, `{"latitude":22.5726,"longitude":88.3639}`, time.Hour).SetErr(errors.New("redis down"))

	coord, source := r.Resolve(context.Background(), "Howrah Bridge")
	assert.Equal(t, ResolvedByGeocoder, source)
	assert.InDelta(t, 22.5726, coord.Latitude, 1e-9)
}

func TestFallbackReason(t *testing.T) {
	assert.Equal(t, reasonCircuitOpen, fallbackReason(resilience.ErrCircuitOpen))
	assert.Equal(t, reasonEmpty, fallbackReason(ErrNoResult))
	assert.Equal(t, reasonEmpty, fallbackReason(errEmptyCondition))
	assert.Equal(t, reasonInvalid, fallbackReason(errInvalidCoordinate))
	assert.Equal(t, reasonInvalid, fallbackReason(errInvalidOutput))
	assert.Equal(t, reasonError, fallbackReason(errors.New("boom")))
}

func TestCitiesReturnsCopy(t *testing.T) {
	cities := Cities()
	require.Len(t, cities, 6)
	cities[0].Name = "Changed"
	assert.Equal(t, "Delhi", Cities()[0].Name)
}
