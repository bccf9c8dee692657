package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// PredictionCreatedData is emitted after a prediction has been served.
// Persisted is false when the store was unavailable and the record exists only
// in this event.
type PredictionCreatedData struct {
	PredictionID     uuid.UUID  `json:"prediction_id"`
	City             string     `json:"city"`
	Source           string     `json:"source"`
	Destination      string     `json:"destination"`
	SourceCell       string     `json:"source_h3,omitempty"`
	DestinationCell  string     `json:"destination_h3,omitempty"`
	DistanceKm       float64    `json:"distance_km"`
	DayType          string     `json:"day_type"`
	Weather          string     `json:"weather"`
	EventFlag        bool       `json:"event_flag"`
	RouteType        string     `json:"route_type"`
	Congestion       string     `json:"congestion"`
	Probabilities    [3]float64 `json:"probabilities"`
	SuggestedMode    string     `json:"suggested_mode"`
	ClassifierSource string     `json:"classifier_source"`
	Persisted        bool       `json:"persisted"`
	PredictedAt      time.Time  `json:"predicted_at"`
}
