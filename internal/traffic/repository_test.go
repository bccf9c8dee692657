package traffic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/traffic-advisor/pkg/geo"
	"github.com/richxcame/traffic-advisor/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(city string, label Label, mode Mode, createdAt time.Time) *PredictionRecord {
	result := PredictionResult{
		CongestionLevel: label,
		SuggestedMode:   mode,
		Probabilities:   ProbabilitiesFor(label),
		Context: TripContext{
			City:       city,
			DistanceKm: 3.1,
			Hour:       createdAt.Hour(),
			Weekday:    mondayWeekday(createdAt),
			DayType:    DayTypeWeekday,
			Weather:    WeatherClouds,
			EventFlag:  true,
			RouteType:  RouteLocal,
		},
		Source:      geo.Coordinate{Latitude: 28.6315, Longitude: 77.2167},
		Destination: geo.Coordinate{Latitude: 28.6129, Longitude: 77.2295},
		Classifier:  SourceHeuristic,
		PredictedAt: createdAt.Add(30 * time.Minute),
	}
	return NewPredictionRecord(city, "Connaught Place", "India Gate", result, createdAt)
}

func TestNewPredictionRecord(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)
	record := sampleRecord("Delhi", LabelHigh, ModeMetro, now)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, geo.CellFor(record.SourceCoord, geo.H3ResolutionNeighbourhood), record.SourceCell)
	assert.NotEmpty(t, record.DestCell)
	assert.Equal(t, 9, record.Hour)
	assert.Equal(t, 2, record.Weekday)
	assert.Equal(t, now, record.CreatedAt)
	assert.Equal(t, now.Add(30*time.Minute), record.PredictedFor)
	assert.Equal(t, Probabilities{0.1, 0.2, 0.7}, record.Probabilities)
}

func TestRepository_Integration(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "traffic_predictions")

	repo := NewRepository(pool)
	ctx := context.Background()
	base := time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)

	older := sampleRecord("Delhi", LabelHigh, ModeMetro, base)
	newer := sampleRecord("Mumbai", LabelLow, ModeWalk, base.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	records, total, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)

	got, err := repo.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "Delhi", got.City)
	assert.Equal(t, LabelHigh, got.CongestionLevel)
	assert.Equal(t, older.SourceCell, got.SourceCell)
	assert.True(t, got.EventFlag)
	assert.InDelta(t, 0.7, got.Probabilities[LabelHigh.index()], 1e-9)
	assert.True(t, older.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, older.PredictedFor.Equal(got.PredictedFor))

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPredictionNotFound)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByCongestion["High"])
	assert.Equal(t, int64(1), stats.ByMode["Walk"])
}
