package traffic

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/richxcame/traffic-advisor/pkg/geo"
	"github.com/richxcame/traffic-advisor/pkg/httpclient"
	"github.com/richxcame/traffic-advisor/pkg/resilience"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
)

// NominatimClient geocodes through an OpenStreetMap Nominatim instance.
type NominatimClient struct {
	client  *httpclient.Client
	country string
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimClient creates a geocoder from config. Every query is suffixed
// with the configured country.
func NewNominatimClient(cfg config.GeocoderConfig, breaker *resilience.CircuitBreaker) *NominatimClient {
	return &NominatimClient{
		client: httpclient.NewClient(
			strings.TrimRight(cfg.BaseURL, "/"),
			cfg.Timeout,
			httpclient.WithHeader("User-Agent", cfg.UserAgent),
			httpclient.WithBreaker(breaker),
		),
		country: cfg.Country,
	}
}

// Geocode returns the first match for query.
func (n *NominatimClient) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	q := strings.TrimSpace(query)
	if n.country != "" {
		q = fmt.Sprintf("%s, %s", q, n.country)
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", "1")

	var places []nominatimPlace
	err := tracing.TraceExternalAPI(ctx, "traffic", "nominatim", "search", func(ctx context.Context) error {
		return n.client.GetJSON(ctx, "/search", params, &places)
	})
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("nominatim search: %w", err)
	}
	if len(places) == 0 {
		return geo.Coordinate{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}

	return geo.Coordinate{Latitude: lat, Longitude: lon}, nil
}
