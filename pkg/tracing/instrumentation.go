package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prediction span attributes
const (
	CityKey          = attribute.Key("traffic.city")
	DistanceKey      = attribute.Key("traffic.distance_km")
	RouteTypeKey     = attribute.Key("traffic.route_type")
	CongestionKey    = attribute.Key("traffic.congestion")
	ModeKey          = attribute.Key("traffic.suggested_mode")
	FallbackKey      = attribute.Key("traffic.fallback")
	ClassifierKey    = attribute.Key("traffic.classifier")
	DBOperationKey   = attribute.Key("db.operation")
	DBSystemKey      = attribute.Key("db.system")
	ExternalService  = attribute.Key("external.service")
	ExternalOperation = attribute.Key("external.operation")
)

// TraceExternalAPI wraps an outbound call with a client span
func TraceExternalAPI(ctx context.Context, tracerName, serviceName, operation string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, fmt.Sprintf("%s.%s", serviceName, operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			ExternalService.String(serviceName),
			ExternalOperation.String(operation),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// TraceDBQuery wraps a database call with a client span
func TraceDBQuery(ctx context.Context, tracerName, operation string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			DBSystemKey.String("postgresql"),
			DBOperationKey.String(operation),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// AddSpanEvent adds an event to the current span
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
