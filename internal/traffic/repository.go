package traffic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/traffic-advisor/pkg/geo"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
)

// ErrPredictionNotFound is returned when no stored prediction has the given id.
var ErrPredictionNotFound = errors.New("prediction not found")

// PredictionRecord is a served prediction as stored in traffic_predictions.
type PredictionRecord struct {
	ID              uuid.UUID        `json:"id"`
	City            string           `json:"city"`
	Source          string           `json:"source"`
	Destination     string           `json:"destination"`
	SourceCoord     geo.Coordinate   `json:"source_coordinate"`
	DestCoord       geo.Coordinate   `json:"destination_coordinate"`
	SourceCell      string           `json:"source_h3,omitempty"`
	DestCell        string           `json:"destination_h3,omitempty"`
	DistanceKm      float64          `json:"distance_km"`
	Hour            int              `json:"hour"`
	Weekday         int              `json:"weekday"`
	DayType         DayType          `json:"day_type"`
	Weather         Weather          `json:"weather"`
	EventFlag       bool             `json:"event_flag"`
	RouteType       RouteType        `json:"route_type"`
	CongestionLevel Label            `json:"congestion_level"`
	SuggestedMode   Mode             `json:"suggested_mode"`
	Probabilities   Probabilities    `json:"probabilities"`
	Classifier      ClassifierSource `json:"classifier"`
	PredictedFor    time.Time        `json:"predicted_for"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NewPredictionRecord builds the stored form of a result served at createdAt.
// Endpoints are indexed into neighbourhood-sized H3 cells.
func NewPredictionRecord(city, source, destination string, result PredictionResult, createdAt time.Time) *PredictionRecord {
	tc := result.Context
	return &PredictionRecord{
		ID:              uuid.New(),
		City:            city,
		Source:          source,
		Destination:     destination,
		SourceCoord:     result.Source,
		DestCoord:       result.Destination,
		SourceCell:      geo.CellFor(result.Source, geo.H3ResolutionNeighbourhood),
		DestCell:        geo.CellFor(result.Destination, geo.H3ResolutionNeighbourhood),
		DistanceKm:      tc.DistanceKm,
		Hour:            tc.Hour,
		Weekday:         tc.Weekday,
		DayType:         tc.DayType,
		Weather:         tc.Weather,
		EventFlag:       tc.EventFlag,
		RouteType:       tc.RouteType,
		CongestionLevel: result.CongestionLevel,
		SuggestedMode:   result.SuggestedMode,
		Probabilities:   result.Probabilities,
		Classifier:      result.Classifier,
		PredictedFor:    result.PredictedAt,
		CreatedAt:       createdAt,
	}
}

// PredictionStats summarises stored predictions.
type PredictionStats struct {
	Total        int64            `json:"total"`
	ByCongestion map[string]int64 `json:"by_congestion"`
	ByMode       map[string]int64 `json:"by_mode"`
}

// PredictionStore is the persistence used by the HTTP handler.
type PredictionStore interface {
	Create(ctx context.Context, record *PredictionRecord) error
	List(ctx context.Context, limit, offset int) ([]*PredictionRecord, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*PredictionRecord, error)
	Stats(ctx context.Context) (*PredictionStats, error)
}

// Repository stores predictions in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

var _ PredictionStore = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const predictionColumns = `
	id, city, source, destination,
	source_latitude, source_longitude, dest_latitude, dest_longitude,
	source_h3, dest_h3, distance_km, hour, weekday, day_type, weather,
	event_flag, route_type, congestion_level, suggested_mode,
	prob_low, prob_medium, prob_high, classifier, predicted_for, created_at`

// Create inserts a prediction record.
func (r *Repository) Create(ctx context.Context, p *PredictionRecord) error {
	query := `INSERT INTO traffic_predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	return tracing.TraceDBQuery(ctx, tracerName, "insert_prediction", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query,
			p.ID, p.City, p.Source, p.Destination,
			p.SourceCoord.Latitude, p.SourceCoord.Longitude,
			p.DestCoord.Latitude, p.DestCoord.Longitude,
			p.SourceCell, p.DestCell, p.DistanceKm, p.Hour, p.Weekday,
			string(p.DayType), string(p.Weather), p.EventFlag, string(p.RouteType),
			string(p.CongestionLevel), string(p.SuggestedMode),
			p.Probabilities[0], p.Probabilities[1], p.Probabilities[2],
			string(p.Classifier), p.PredictedFor, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
		return nil
	})
}

// List returns predictions newest first together with the total count.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*PredictionRecord, int64, error) {
	var (
		records []*PredictionRecord
		total   int64
	)

	err := tracing.TraceDBQuery(ctx, tracerName, "list_predictions", func(ctx context.Context) error {
		if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM traffic_predictions`).Scan(&total); err != nil {
			return fmt.Errorf("count predictions: %w", err)
		}

		rows, err := r.db.Query(ctx, `SELECT `+predictionColumns+`
			FROM traffic_predictions
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return fmt.Errorf("list predictions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPrediction(rows)
			if err != nil {
				return err
			}
			records = append(records, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Get returns a single prediction.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*PredictionRecord, error) {
	var record *PredictionRecord

	err := tracing.TraceDBQuery(ctx, tracerName, "get_prediction", func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `SELECT `+predictionColumns+`
			FROM traffic_predictions WHERE id = $1`, id)
		p, err := scanPrediction(row)
		if err != nil {
			return err
		}
		record = p
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPredictionNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Stats counts stored predictions by congestion level and suggested mode.
func (r *Repository) Stats(ctx context.Context) (*PredictionStats, error) {
	stats := &PredictionStats{
		ByCongestion: make(map[string]int64),
		ByMode:       make(map[string]int64),
	}

	err := tracing.TraceDBQuery(ctx, tracerName, "prediction_stats", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT congestion_level, suggested_mode, COUNT(*)
			FROM traffic_predictions
			GROUP BY congestion_level, suggested_mode`)
		if err != nil {
			return fmt.Errorf("prediction stats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				congestion, mode string
				count            int64
			)
			if err := rows.Scan(&congestion, &mode, &count); err != nil {
				return fmt.Errorf("scan prediction stats: %w", err)
			}
			stats.Total += count
			stats.ByCongestion[congestion] += count
			stats.ByMode[mode] += count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func scanPrediction(row pgx.Row) (*PredictionRecord, error) {
	var (
		p                            PredictionRecord
		dayType, weather, routeType  string
		congestion, mode, classifier string
	)
	err := row.Scan(
		&p.ID, &p.City, &p.Source, &p.Destination,
		&p.SourceCoord.Latitude, &p.SourceCoord.Longitude,
		&p.DestCoord.Latitude, &p.DestCoord.Longitude,
		&p.SourceCell, &p.DestCell, &p.DistanceKm, &p.Hour, &p.Weekday,
		&dayType, &weather, &p.EventFlag, &routeType,
		&congestion, &mode,
		&p.Probabilities[0], &p.Probabilities[1], &p.Probabilities[2],
		&classifier, &p.PredictedFor, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan prediction: %w", err)
	}

	p.DayType = DayType(dayType)
	p.Weather = Weather(weather)
	p.RouteType = RouteType(routeType)
	p.CongestionLevel = Label(congestion)
	p.SuggestedMode = Mode(mode)
	p.Classifier = ClassifierSource(classifier)
	return &p, nil
}
