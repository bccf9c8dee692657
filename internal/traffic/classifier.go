package traffic

import (
	"context"
	"errors"
	"fmt"
	"math"

	sentryerrors "github.com/richxcame/traffic-advisor/pkg/errors"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"go.uber.org/zap"
)

var (
	errInvalidOutput = errors.New("invalid model output")
	errModelPanic    = errors.New("model panicked")
)

// Classification is a congestion label with its class probabilities.
type Classification struct {
	Label         Label
	Probabilities Probabilities
	Source        ClassifierSource
}

// Classifier turns a trip context into a congestion estimate. Implementations
// never fail.
type Classifier interface {
	Classify(ctx context.Context, tc TripContext) Classification
}

// NewClassifier selects the classifier variant once: the model when one was
// loaded, otherwise the heuristic.
func NewClassifier(model Model) Classifier {
	if model == nil {
		return HeuristicClassifier{}
	}
	return &ModelClassifier{model: model}
}

// HeuristicClassifier scores a trip with fixed rules.
type HeuristicClassifier struct{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(_ context.Context, tc TripContext) Classification {
	label := LabelForScore(HeuristicScore(tc))
	return Classification{
		Label:         label,
		Probabilities: ProbabilitiesFor(label),
		Source:        SourceHeuristic,
	}
}

// HeuristicScore adds up the congestion risk factors of a trip.
func HeuristicScore(tc TripContext) int {
	score := 0

	switch {
	case tc.DistanceKm > 20:
		score += 2
	case tc.DistanceKm > 10:
		score++
	}

	switch {
	case IsPeakHour(tc.Hour):
		score += 2
	case isExtendedPeakHour(tc.Hour):
		score++
	}

	if tc.IsWeekend() {
		score++
	}
	if tc.Weather == WeatherRain || tc.Weather == WeatherThunderstorm {
		score++
	}
	if tc.EventFlag {
		score++
	}

	return score
}

// LabelForScore maps a heuristic score to a label.
func LabelForScore(score int) Label {
	switch {
	case score >= 4:
		return LabelHigh
	case score >= 2:
		return LabelMedium
	default:
		return LabelLow
	}
}

// ProbabilitiesFor returns the fixed distribution reported with a heuristic label.
func ProbabilitiesFor(label Label) Probabilities {
	switch label {
	case LabelHigh:
		return Probabilities{0.1, 0.2, 0.7}
	case LabelMedium:
		return Probabilities{0.2, 0.6, 0.2}
	default:
		return Probabilities{0.7, 0.2, 0.1}
	}
}

// ModelClassifier asks a trained model and falls back to the heuristic for
// any call the model cannot answer.
type ModelClassifier struct {
	model    Model
	fallback HeuristicClassifier
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, tc TripContext) Classification {
	result, err := c.classify(ctx, tc)
	if err == nil {
		return result
	}

	recordFallback(ctx, componentModel, fallbackReason(err))
	if errors.Is(err, errModelPanic) {
		sentryerrors.CaptureErrorWithContext(ctx, err, map[string]interface{}{"component": componentModel})
	}
	logger.WithContext(ctx).Warn("model inference failed, using heuristic",
		zap.String("component", componentModel),
		zap.Error(err),
	)
	return c.fallback.Classify(ctx, tc)
}

func (c *ModelClassifier) classify(ctx context.Context, tc TripContext) (result Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errModelPanic, r)
		}
	}()

	features := FeaturesFrom(tc)

	rawLabel, err := c.model.Predict(ctx, features)
	if err != nil {
		return Classification{}, err
	}
	label, ok := ParseLabel(rawLabel)
	if !ok {
		return Classification{}, fmt.Errorf("%w: unknown label %q", errInvalidOutput, rawLabel)
	}

	raw, err := c.model.PredictProbabilities(ctx, features)
	if err != nil {
		return Classification{}, err
	}
	probs, err := orderProbabilities(raw)
	if err != nil {
		return Classification{}, err
	}

	return Classification{Label: label, Probabilities: probs, Source: SourceModel}, nil
}

// orderProbabilities rearranges model output into (Low, Medium, High) and
// renormalises it to sum to one.
func orderProbabilities(raw ClassProbabilities) (Probabilities, error) {
	if len(raw.Classes) != len(Labels) || len(raw.Values) != len(Labels) {
		return Probabilities{}, fmt.Errorf("%w: got %d classes and %d probabilities",
			errInvalidOutput, len(raw.Classes), len(raw.Values))
	}

	var (
		out  Probabilities
		seen [3]bool
		sum  float64
	)
	for i, name := range raw.Classes {
		label, ok := ParseLabel(name)
		if !ok {
			return Probabilities{}, fmt.Errorf("%w: unknown class %q", errInvalidOutput, name)
		}
		idx := label.index()
		if seen[idx] {
			return Probabilities{}, fmt.Errorf("%w: duplicate class %q", errInvalidOutput, name)
		}
		v := raw.Values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Probabilities{}, fmt.Errorf("%w: probability %v for %s", errInvalidOutput, v, name)
		}
		seen[idx] = true
		out[idx] = v
		sum += v
	}
	if sum <= 0 {
		return Probabilities{}, fmt.Errorf("%w: probabilities sum to %v", errInvalidOutput, sum)
	}

	for i := range out {
		out[i] /= sum
	}
	return out, nil
}
