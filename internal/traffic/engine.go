package traffic

import (
	"context"
	"time"

	"github.com/richxcame/traffic-advisor/pkg/geo"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "traffic"

// Engine orchestrates one prediction: resolve both endpoints, measure the
// distance, derive the trip context, classify it and pick a mode.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	resolver   *Resolver
	deriver    *ContextDeriver
	classifier Classifier
	clock      func() time.Time
	location   *time.Location
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces the wall clock used by Predict.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLocation sets the zone in which hour, weekday and holidays are read.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		e.location = loc
	}
}

// NewEngine wires the prediction pipeline. A nil classifier selects the heuristic.
func NewEngine(resolver *Resolver, deriver *ContextDeriver, classifier Classifier, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:   resolver,
		deriver:    deriver,
		classifier: classifier,
		clock:      time.Now,
		location:   time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = HeuristicClassifier{}
	}
	return e
}

// Predict runs the pipeline at the current time.
func (e *Engine) Predict(ctx context.Context, city, source, destination string) PredictionResult {
	return e.PredictAt(ctx, city, source, destination, e.clock())
}

// PredictAt runs the pipeline as if the trip started at now. It always
// returns a structurally valid result.
func (e *Engine) PredictAt(ctx context.Context, city, source, destination string, now time.Time) PredictionResult {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "traffic.predict")
	defer span.End()

	now = now.In(e.location)

	src, srcResolution := e.resolver.ResolveIn(ctx, source, city)
	dst, dstResolution := e.resolver.ResolveIn(ctx, destination, city)
	distance := geo.DistanceKm(src, dst)

	tc := e.deriver.Derive(ctx, city, distance, now)
	classification := e.classifier.Classify(ctx, tc)
	mode := SuggestMode(classification.Label, tc.DistanceKm)

	result := PredictionResult{
		CongestionLevel: classification.Label,
		SuggestedMode:   mode,
		Probabilities:   classification.Probabilities,
		Context:         tc,
		Source:          src,
		Destination:     dst,
		Classifier:      classification.Source,
		PredictedAt:     now,
	}

	span.SetAttributes(
		tracing.CityKey.String(city),
		tracing.DistanceKey.Float64(distance),
		tracing.RouteTypeKey.String(string(tc.RouteType)),
		tracing.CongestionKey.String(string(result.CongestionLevel)),
		tracing.ModeKey.String(string(mode)),
		tracing.ClassifierKey.String(string(result.Classifier)),
		attribute.String("traffic.source_resolution", string(srcResolution)),
		attribute.String("traffic.destination_resolution", string(dstResolution)),
	)

	predictionsTotal.WithLabelValues(string(result.CongestionLevel), string(mode)).Inc()
	predictionDuration.Observe(time.Since(start).Seconds())

	logger.DebugContext(ctx, "traffic predicted",
		zap.String("city", city),
		zap.Float64("distance_km", distance),
		zap.String("congestion", string(result.CongestionLevel)),
		zap.String("mode", string(mode)),
		zap.String("classifier", string(result.Classifier)),
	)

	return result
}
