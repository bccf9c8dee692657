package traffic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/traffic-advisor/pkg/common"
	"github.com/richxcame/traffic-advisor/pkg/eventbus"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"github.com/richxcame/traffic-advisor/pkg/security"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
	"github.com/richxcame/traffic-advisor/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PredictRequest is the body of POST /predict, as JSON or form fields.
type PredictRequest struct {
	City          string `json:"city" form:"city" validate:"required,max=100,place"`
	Source        string `json:"source" form:"source" validate:"required,max=200,place"`
	Destination   string `json:"destination" form:"destination" validate:"required,max=200,place"`
	DepartureTime string `json:"departure_time,omitempty" form:"departure_time" validate:"omitempty,rfc3339"` // defaults to now
}

// PredictResponse is a served prediction with its storage outcome.
type PredictResponse struct {
	ID          uuid.UUID `json:"id"`
	City        string    `json:"city"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`

	Prediction      PredictionResult `json:"prediction"`
	SourceCell      string           `json:"source_h3,omitempty"`
	DestinationCell string           `json:"destination_h3,omitempty"`
	Persisted       bool             `json:"persisted"`
}

// Handler serves the traffic prediction API.
type Handler struct {
	engine    *Engine
	store     PredictionStore
	publisher eventbus.Publisher
	cities    []City
	clock     func() time.Time
}

// NewHandler creates a handler. store and publisher may be nil; predictions are
// then served without history or events.
func NewHandler(engine *Engine, store PredictionStore, publisher eventbus.Publisher) *Handler {
	return &Handler{
		engine:    engine,
		store:     store,
		publisher: publisher,
		cities:    Cities(),
		clock:     time.Now,
	}
}

// RegisterRoutes mounts the API under /api/v1/traffic. predictMiddleware runs
// only in front of the prediction endpoint, which is the one calling upstreams.
func (h *Handler) RegisterRoutes(r *gin.Engine, predictMiddleware ...gin.HandlerFunc) {
	api := r.Group("/api/v1/traffic")
	{
		handlers := append(append([]gin.HandlerFunc{}, predictMiddleware...), h.Predict)
		api.POST("/predict", handlers...)
		api.GET("/predictions", h.ListPredictions)
		api.GET("/predictions/:id", h.GetPrediction)
		api.GET("/stats", h.GetStats)
		api.GET("/cities", h.ListCities)
	}
}

// Predict validates the request, runs the engine and stores the result.
func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBind(&req); err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid request body", err))
		return
	}

	req.City = security.SanitizeString(req.City)
	req.Source = security.SanitizeString(req.Source)
	req.Destination = security.SanitizeString(req.Destination)
	req.DepartureTime = strings.TrimSpace(req.DepartureTime)
	if err := validation.ValidateStruct(req); err != nil {
		common.AppErrorResponse(c, common.NewValidationError(err.Error()))
		return
	}

	ctx := c.Request.Context()

	var result PredictionResult
	if req.DepartureTime != "" {
		departure, _ := time.Parse(time.RFC3339, req.DepartureTime)
		result = h.engine.PredictAt(ctx, req.City, req.Source, req.Destination, departure)
	} else {
		result = h.engine.Predict(ctx, req.City, req.Source, req.Destination)
	}

	record := NewPredictionRecord(req.City, req.Source, req.Destination, result, h.clock().UTC())
	tracing.AddSpanAttributes(ctx, attribute.String("traffic.prediction_id", record.ID.String()))
	persisted := h.persist(ctx, record)
	h.publish(ctx, record, persisted)

	common.SuccessResponse(c, PredictResponse{
		ID:              record.ID,
		City:            record.City,
		Source:          record.Source,
		Destination:     record.Destination,
		Prediction:      result,
		SourceCell:      record.SourceCell,
		DestinationCell: record.DestCell,
		Persisted:       persisted,
	})
}

func (h *Handler) persist(ctx context.Context, record *PredictionRecord) bool {
	if h.store == nil {
		return false
	}
	if err := h.store.Create(ctx, record); err != nil {
		recordFallback(ctx, componentStore, reasonError)
		logger.WarnContext(ctx, "failed to store prediction",
			zap.String("prediction_id", record.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (h *Handler) publish(ctx context.Context, record *PredictionRecord, persisted bool) {
	if h.publisher == nil {
		return
	}

	event, err := eventbus.NewEvent(eventbus.SubjectPredictionCreated, "traffic", eventbus.PredictionCreatedData{
		PredictionID:     record.ID,
		City:             record.City,
		Source:           record.Source,
		Destination:      record.Destination,
		SourceCell:       record.SourceCell,
		DestinationCell:  record.DestCell,
		DistanceKm:       record.DistanceKm,
		DayType:          string(record.DayType),
		Weather:          string(record.Weather),
		EventFlag:        record.EventFlag,
		RouteType:        string(record.RouteType),
		Congestion:       string(record.CongestionLevel),
		Probabilities:    record.Probabilities,
		SuggestedMode:    string(record.SuggestedMode),
		ClassifierSource: string(record.Classifier),
		Persisted:        persisted,
		PredictedAt:      record.PredictedFor,
	})
	if err == nil {
		err = h.publisher.Publish(ctx, eventbus.SubjectPredictionCreated, event)
	}
	if err != nil {
		recordFallback(ctx, componentEvents, reasonError)
		logger.WarnContext(ctx, "failed to publish prediction event",
			zap.String("prediction_id", record.ID.String()),
			zap.Error(err),
		)
	}
}

// ListPredictions returns stored predictions newest first.
func (h *Handler) ListPredictions(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	limit, offset := common.ParsePagination(c, defaultPageSize, maxPageSize)

	records, total, err := h.store.List(c.Request.Context(), limit, offset)
	if common.HandleServiceError(c, err, "failed to list predictions") {
		return
	}
	if records == nil {
		records = []*PredictionRecord{}
	}

	common.SuccessResponseWithMeta(c, records, &common.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

// GetPrediction returns one stored prediction.
func (h *Handler) GetPrediction(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "prediction id")
	if !ok {
		return
	}
	if !h.requireStore(c) {
		return
	}

	record, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, ErrPredictionNotFound) {
		common.AppErrorResponse(c, common.NewNotFoundError("prediction not found", err))
		return
	}
	if common.HandleServiceError(c, err, "failed to get prediction") {
		return
	}

	common.SuccessResponse(c, record)
}

// GetStats returns prediction counts by congestion level and mode.
func (h *Handler) GetStats(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	stats, err := h.store.Stats(c.Request.Context())
	if common.HandleServiceError(c, err, "failed to get prediction stats") {
		return
	}

	common.SuccessResponse(c, stats)
}

// ListCities returns the static city table.
func (h *Handler) ListCities(c *gin.Context) {
	common.SuccessResponse(c, h.cities)
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store != nil {
		return true
	}
	common.AppErrorResponse(c, common.NewServiceUnavailableError("prediction history is unavailable", nil))
	return false
}
