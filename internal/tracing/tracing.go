// Package tracing holds the span and attribute helpers shared by the
// generator's entry points.
package tracing

import (
	"context"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "churn-datagen"

// InitPropagator registers W3C trace context, baggage and X-Ray propagation
func InitPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}

// StartHandlerSpan starts a span for one pipeline stage
func StartHandlerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartColdStartSpan starts the span that parents initialization work
func StartColdStartSpan(ctx context.Context, function string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ColdStart", trace.WithAttributes(Function(function)))
}

// RecordError records err on span and marks the span as failed
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RequestID tags a span with the Lambda request id
func RequestID(id string) attribute.KeyValue {
	return attribute.String("request_id", id)
}

// Function tags a span with the function that produced it
func Function(name string) attribute.KeyValue {
	return attribute.String("function", name)
}

// Container tags a span with the dataset container name
func Container(name string) attribute.KeyValue {
	return attribute.String("datagen.container", name)
}

// StreamPath tags a span with the resolved output stream name
func StreamPath(path string) attribute.KeyValue {
	return attribute.String("datagen.stream_path", path)
}

// TablePath tags a span with the resolved enrichment table name
func TablePath(path string) attribute.KeyValue {
	return attribute.String("datagen.table_path", path)
}

// RecordCount tags a span with the number of records it handled
func RecordCount(n int) attribute.KeyValue {
	return attribute.Int("datagen.record_count", n)
}
