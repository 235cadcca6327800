package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestStringAttributes(t *testing.T) {
	tests := []struct {
		attr attribute.KeyValue
		key  string
		want string
	}{
		{RequestID("req-123"), "request_id", "req-123"},
		{Function("churn-datagen"), "function", "churn-datagen"},
		{Container("bigdata"), "datagen.container", "bigdata"},
		{StreamPath("churn/events"), "datagen.stream_path", "churn/events"},
		{TablePath("churn/postcodes"), "datagen.table_path", "churn/postcodes"},
	}
	for _, tt := range tests {
		if string(tt.attr.Key) != tt.key {
			t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
		}
		if tt.attr.Value.AsString() != tt.want {
			t.Errorf("expected value %q, got %q", tt.want, tt.attr.Value.AsString())
		}
	}
}

func TestRecordCount(t *testing.T) {
	attr := RecordCount(2002000)

	if attr.Key != "datagen.record_count" {
		t.Errorf("expected key 'datagen.record_count', got %q", attr.Key)
	}
	if attr.Value.AsInt64() != 2002000 {
		t.Errorf("expected value 2002000, got %d", attr.Value.AsInt64())
	}
}

func TestStartHandlerSpan(t *testing.T) {
	exporter, tp := newTestProvider(t)

	_, span := StartHandlerSpan(context.Background(), "PublishEvents",
		RequestID("req-123"),
		Container("bigdata"),
	)
	span.End()

	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if s.Name != "PublishEvents" {
		t.Errorf("expected span name 'PublishEvents', got %q", s.Name)
	}

	attrMap := make(map[string]string)
	for _, attr := range s.Attributes {
		attrMap[string(attr.Key)] = attr.Value.AsString()
	}
	if attrMap["request_id"] != "req-123" {
		t.Errorf("expected request_id 'req-123', got %q", attrMap["request_id"])
	}
	if attrMap["datagen.container"] != "bigdata" {
		t.Errorf("expected datagen.container 'bigdata', got %q", attrMap["datagen.container"])
	}
}

func TestRecordError(t *testing.T) {
	exporter, tp := newTestProvider(t)

	_, span := otel.Tracer("test").Start(context.Background(), "TestSpan")
	RecordError(span, errors.New("something went wrong"))
	span.End()

	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if len(s.Events) == 0 {
		t.Error("expected at least one event (error), got none")
	}
	if s.Status.Code != codes.Error {
		t.Errorf("expected error status code %d, got %d", codes.Error, s.Status.Code)
	}
	if s.Status.Description != "something went wrong" {
		t.Errorf("expected status description 'something went wrong', got %q", s.Status.Description)
	}
}

func TestStartColdStartSpan(t *testing.T) {
	exporter, tp := newTestProvider(t)

	_, span := StartColdStartSpan(context.Background(), "test-function")
	span.End()

	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if s.Name != "ColdStart" {
		t.Errorf("expected span name 'ColdStart', got %q", s.Name)
	}

	attrMap := make(map[string]string)
	for _, attr := range s.Attributes {
		attrMap[string(attr.Key)] = attr.Value.AsString()
	}
	if attrMap["function"] != "test-function" {
		t.Errorf("expected function 'test-function', got %q", attrMap["function"])
	}
}

func TestInitPropagator(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

	InitPropagator()

	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}

	newTestProvider(t)
	ctx, span := otel.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	propagator.Inject(ctx, carrier)

	if carrier.Get("X-Amzn-Trace-Id") == "" {
		t.Error("expected X-Amzn-Trace-Id header to be set, got empty string")
	}
	if carrier.Get("traceparent") == "" {
		t.Error("expected traceparent header to be set, got empty string")
	}
}
