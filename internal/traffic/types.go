package traffic

import (
	"math"
	"strings"
	"time"

	"github.com/richxcame/traffic-advisor/pkg/geo"
)

// Label is the expected congestion on a route segment.
type Label string

const (
	LabelLow    Label = "Low"
	LabelMedium Label = "Medium"
	LabelHigh   Label = "High"
)

// Labels lists congestion labels in probability order.
var Labels = [3]Label{LabelLow, LabelMedium, LabelHigh}

// ParseLabel matches s case-insensitively against the known labels.
func ParseLabel(s string) (Label, bool) {
	for _, l := range Labels {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, true
		}
	}
	return "", false
}

func (l Label) index() int {
	for i, candidate := range Labels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Mode is a recommended way to travel.
type Mode string

const (
	ModeWalk  Mode = "Walk"
	ModeBike  Mode = "Bike"
	ModeMetro Mode = "Metro"
	ModeCar   Mode = "Car"
)

// DayType classifies the calendar date of a trip.
type DayType string

const (
	DayTypeWeekday DayType = "weekday"
	DayTypeWeekend DayType = "weekend"
	DayTypeHoliday DayType = "holiday"
)

// Weather is the coarse condition used as a feature.
type Weather string

const (
	WeatherClear        Weather = "Clear"
	WeatherClouds       Weather = "Clouds"
	WeatherRain         Weather = "Rain"
	WeatherThunderstorm Weather = "Thunderstorm"
)

// RouteType is a distance-based classification of a segment.
type RouteType string

const (
	RouteLocal    RouteType = "local"
	RouteSuburban RouteType = "suburban"
	RouteHighway  RouteType = "highway"
)

// Probabilities holds class probabilities ordered (Low, Medium, High).
type Probabilities [3]float64

// Valid reports whether every component is in [0,1] and the sum is 1 within 1e-6.
func (p Probabilities) Valid() bool {
	sum := 0.0
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= 1e-6
}

// TripContext is the feature set derived for one prediction.
type TripContext struct {
	City       string    `json:"city"`
	DistanceKm float64   `json:"distance_km"`
	Hour       int       `json:"hour"`
	Weekday    int       `json:"weekday"` // 0 = Monday
	DayType    DayType   `json:"day_type"`
	Weather    Weather   `json:"weather"`
	EventFlag  bool      `json:"event"`
	RouteType  RouteType `json:"route_type"`
}

// IsWeekend reports whether the trip falls on Saturday or Sunday.
func (tc TripContext) IsWeekend() bool {
	return tc.Weekday == 5 || tc.Weekday == 6
}

// ClassifierSource names which classifier variant produced a result.
type ClassifierSource string

const (
	SourceModel     ClassifierSource = "model"
	SourceHeuristic ClassifierSource = "heuristic"
)

// PredictionResult is the outcome of one engine call.
type PredictionResult struct {
	CongestionLevel Label            `json:"congestion_level"`
	SuggestedMode   Mode             `json:"suggested_mode"`
	Probabilities   Probabilities    `json:"probabilities"`
	Context         TripContext      `json:"features"`
	Source          geo.Coordinate   `json:"source"`
	Destination     geo.Coordinate   `json:"destination"`
	Classifier      ClassifierSource `json:"classifier"`
	PredictedAt     time.Time        `json:"predicted_at"`
}

// mondayWeekday converts Go's Sunday-based weekday to 0 = Monday.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
