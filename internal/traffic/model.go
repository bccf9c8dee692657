package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/richxcame/traffic-advisor/pkg/httpclient"
	"github.com/richxcame/traffic-advisor/pkg/resilience"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrModelNotFound is returned by LoadModel when no model source is configured or present.
var ErrModelNotFound = errors.New("no congestion model available")

// FeatureVector is the ordered model input
// [city, distance_km, hour, weekday, day_type, weather, event, route_type].
type FeatureVector struct {
	City       string
	DistanceKm float64
	Hour       int
	Weekday    int
	DayType    string
	Weather    string
	Event      bool
	RouteType  string
}

// FeaturesFrom builds the model input from a trip context.
func FeaturesFrom(tc TripContext) FeatureVector {
	return FeatureVector{
		City:       tc.City,
		DistanceKm: tc.DistanceKm,
		Hour:       tc.Hour,
		Weekday:    tc.Weekday,
		DayType:    string(tc.DayType),
		Weather:    string(tc.Weather),
		Event:      tc.EventFlag,
		RouteType:  string(tc.RouteType),
	}
}

// Values returns the features in model order.
func (f FeatureVector) Values() []interface{} {
	return []interface{}{f.City, f.DistanceKm, f.Hour, f.Weekday, f.DayType, f.Weather, f.Event, f.RouteType}
}

// ClassProbabilities pairs model class names with their probabilities, in
// the model's own column order.
type ClassProbabilities struct {
	Classes []string  `json:"classes"`
	Values  []float64 `json:"probabilities"`
}

// Model is a pre-trained congestion classifier.
type Model interface {
	Predict(ctx context.Context, features FeatureVector) (string, error)
	PredictProbabilities(ctx context.Context, features FeatureVector) (ClassProbabilities, error)
}

// LoadModel opens the configured model once at startup. A remote model
// server takes precedence over a local artifact.
func LoadModel(cfg config.ModelConfig, breaker *resilience.CircuitBreaker) (Model, error) {
	if strings.TrimSpace(cfg.ServerURL) != "" {
		return NewRemoteModel(cfg, breaker), nil
	}
	if strings.TrimSpace(cfg.ArtifactPath) == "" {
		return nil, ErrModelNotFound
	}

	model, err := LoadLinearModel(cfg.ArtifactPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ArtifactPath)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

// LinearModel is a multinomial logistic regression exported by the training
// pipeline. It is immutable after loading and safe for concurrent use.
type LinearModel struct {
	classes    []string
	categories [4][]string // city, day_type, weather, route_type
	mean       []float64
	scale      []float64
	weights    *mat.Dense
	bias       *mat.VecDense
}

// numericFeatures is the column order of the numeric block.
var numericFeatures = []string{"distance_km", "hour", "weekday", "event"}

// categoricalFeatures is the order of the one-hot blocks after the numeric block.
var categoricalFeatures = [4]string{"city", "day_type", "weather", "route_type"}

type linearArtifact struct {
	Format     string              `json:"format"`
	Classes    []string            `json:"classes"`
	Categories map[string][]string `json:"categories"`
	Scaler     struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

const linearArtifactFormat = "traffic-logistic/v1"

// LoadLinearModel reads and validates a JSON model artifact.
func LoadLinearModel(path string) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	return ParseLinearModel(raw)
}

// ParseLinearModel decodes and validates a JSON model artifact.
func ParseLinearModel(raw []byte) (*LinearModel, error) {
	var a linearArtifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Format != linearArtifactFormat {
		return nil, fmt.Errorf("unsupported model format %q", a.Format)
	}

	if len(a.Classes) != len(Labels) {
		return nil, fmt.Errorf("model has %d classes, want %d", len(a.Classes), len(Labels))
	}
	seen := make(map[Label]bool)
	for _, c := range a.Classes {
		l, ok := ParseLabel(c)
		if !ok || seen[l] {
			return nil, fmt.Errorf("model classes %v do not cover Low, Medium, High", a.Classes)
		}
		seen[l] = true
	}

	m := &LinearModel{classes: a.Classes}

	width := len(numericFeatures)
	for i, name := range categoricalFeatures {
		m.categories[i] = a.Categories[name]
		width += len(m.categories[i])
	}

	m.mean = a.Scaler.Mean
	m.scale = a.Scaler.Scale
	if m.mean == nil {
		m.mean = make([]float64, len(numericFeatures))
	}
	if m.scale == nil {
		m.scale = []float64{1, 1, 1, 1}
	}
	if len(m.mean) != len(numericFeatures) || len(m.scale) != len(numericFeatures) {
		return nil, fmt.Errorf("scaler must have %d entries", len(numericFeatures))
	}
	for _, s := range m.scale {
		if s == 0 || math.IsNaN(s) {
			return nil, errors.New("scaler contains a zero or NaN scale")
		}
	}

	if len(a.Weights) != len(a.Classes) || len(a.Bias) != len(a.Classes) {
		return nil, fmt.Errorf("weights/bias must have one row per class")
	}
	flat := make([]float64, 0, len(a.Classes)*width)
	for i, row := range a.Weights {
		if len(row) != width {
			return nil, fmt.Errorf("weights row %d has %d columns, want %d", i, len(row), width)
		}
		flat = append(flat, row...)
	}

	m.weights = mat.NewDense(len(a.Classes), width, flat)
	m.bias = mat.NewVecDense(len(a.Bias), a.Bias)
	return m, nil
}

// Classes returns the model's class names in column order.
func (m *LinearModel) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)
	return out
}

func (m *LinearModel) encode(f FeatureVector) *mat.VecDense {
	_, width := m.weights.Dims()
	x := make([]float64, width)

	event := 0.0
	if f.Event {
		event = 1
	}
	numeric := []float64{f.DistanceKm, float64(f.Hour), float64(f.Weekday), event}
	for i, v := range numeric {
		x[i] = (v - m.mean[i]) / m.scale[i]
	}

	offset := len(numeric)
	values := [4]string{f.City, f.DayType, f.Weather, f.RouteType}
	for i, vocab := range m.categories {
		for j, category := range vocab {
			// Unknown categories encode as all zeros.
			if strings.EqualFold(category, values[i]) {
				x[offset+j] = 1
				break
			}
		}
		offset += len(vocab)
	}

	return mat.NewVecDense(width, x)
}

func (m *LinearModel) softmax(f FeatureVector) []float64 {
	var logits mat.VecDense
	logits.MulVec(m.weights, m.encode(f))
	logits.AddVec(&logits, m.bias)

	z := make([]float64, logits.Len())
	for i := range z {
		z[i] = logits.AtVec(i)
	}
	lse := floats.LogSumExp(z)
	for i := range z {
		z[i] = math.Exp(z[i] - lse)
	}
	return z
}

// Predict returns the most probable class.
func (m *LinearModel) Predict(_ context.Context, f FeatureVector) (string, error) {
	return m.classes[floats.MaxIdx(m.softmax(f))], nil
}

// PredictProbabilities returns the class distribution in the model's column order.
func (m *LinearModel) PredictProbabilities(_ context.Context, f FeatureVector) (ClassProbabilities, error) {
	return ClassProbabilities{Classes: m.Classes(), Values: m.softmax(f)}, nil
}

// RemoteModel calls a model server exposing POST /predict and /predict_proba.
type RemoteModel struct {
	client *httpclient.Client
}

type remoteRequest struct {
	Features []interface{} `json:"features"`
}

type remotePrediction struct {
	Label string `json:"label"`
}

// NewRemoteModel creates a client for the model server at cfg.ServerURL.
func NewRemoteModel(cfg config.ModelConfig, breaker *resilience.CircuitBreaker) *RemoteModel {
	return &RemoteModel{
		client: httpclient.NewClient(strings.TrimRight(cfg.ServerURL, "/"), cfg.Timeout, httpclient.WithBreaker(breaker)),
	}
}

// Predict asks the server for a label.
func (r *RemoteModel) Predict(ctx context.Context, f FeatureVector) (string, error) {
	var out remotePrediction
	err := tracing.TraceExternalAPI(ctx, "traffic", "model", "predict", func(ctx context.Context) error {
		return r.client.PostJSON(ctx, "/predict", remoteRequest{Features: f.Values()}, &out)
	})
	if err != nil {
		return "", fmt.Errorf("model predict: %w", err)
	}
	return out.Label, nil
}

// PredictProbabilities asks the server for the class distribution.
func (r *RemoteModel) PredictProbabilities(ctx context.Context, f FeatureVector) (ClassProbabilities, error) {
	var out ClassProbabilities
	err := tracing.TraceExternalAPI(ctx, "traffic", "model", "predict_proba", func(ctx context.Context) error {
		return r.client.PostJSON(ctx, "/predict_proba", remoteRequest{Features: f.Values()}, &out)
	})
	if err != nil {
		return ClassProbabilities{}, fmt.Errorf("model predict_proba: %w", err)
	}
	return out, nil
}
