package traffic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/richxcame/traffic-advisor/pkg/httpclient"
	"github.com/richxcame/traffic-advisor/pkg/resilience"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
)

// WeatherProvider returns the provider's primary condition string for a city,
// e.g. "Rain" or "Haze".
type WeatherProvider interface {
	CurrentCondition(ctx context.Context, city string) (string, error)
}

var errEmptyCondition = errors.New("no weather condition in response")

// OpenWeatherClient reads current conditions from the OpenWeatherMap API.
type OpenWeatherClient struct {
	client      *httpclient.Client
	apiKey      string
	countryCode string
}

type openWeatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// NewOpenWeatherClient creates a weather provider from config.
func NewOpenWeatherClient(cfg config.WeatherConfig, breaker *resilience.CircuitBreaker) *OpenWeatherClient {
	return &OpenWeatherClient{
		client: httpclient.NewClient(
			strings.TrimRight(cfg.BaseURL, "/"),
			cfg.Timeout,
			httpclient.WithBreaker(breaker),
		),
		apiKey:      cfg.APIKey,
		countryCode: cfg.CountryCode,
	}
}

// CurrentCondition returns the primary condition reported for city.
func (o *OpenWeatherClient) CurrentCondition(ctx context.Context, city string) (string, error) {
	q := strings.TrimSpace(city)
	if o.countryCode != "" {
		q = q + "," + o.countryCode
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("appid", o.apiKey)
	params.Set("units", "metric")

	var resp openWeatherResponse
	err := tracing.TraceExternalAPI(ctx, "traffic", "openweathermap", "current", func(ctx context.Context) error {
		return o.client.GetJSON(ctx, "/data/2.5/weather", params, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("openweathermap current: %w", err)
	}
	if len(resp.Weather) == 0 || resp.Weather[0].Main == "" {
		return "", fmt.Errorf("openweathermap current: %w", errEmptyCondition)
	}
	return resp.Weather[0].Main, nil
}

// MapCondition folds a provider condition into the four feature values.
// Drizzle counts as Rain; squalls and tornadoes as Thunderstorm; the
// atmosphere group (mist, haze, fog, smoke, dust) and snow as Clouds.
func MapCondition(condition string) (Weather, bool) {
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "clear":
		return WeatherClear, true
	case "clouds", "mist", "smoke", "haze", "dust", "fog", "sand", "ash", "snow":
		return WeatherClouds, true
	case "rain", "drizzle":
		return WeatherRain, true
	case "thunderstorm", "squall", "tornado":
		return WeatherThunderstorm, true
	default:
		return "", false
	}
}

// weatherFallback is the distribution drawn from when no live condition is available.
var weatherFallback = []struct {
	weather Weather
	weight  float64
}{
	{WeatherClear, 0.4},
	{WeatherClouds, 0.3},
	{WeatherRain, 0.2},
	{WeatherThunderstorm, 0.1},
}

func drawWeather(rng *Random) Weather {
	u := rng.Float64()
	cumulative := 0.0
	for _, w := range weatherFallback {
		cumulative += w.weight
		if u < cumulative {
			return w.weather
		}
	}
	return weatherFallback[len(weatherFallback)-1].weather
}
