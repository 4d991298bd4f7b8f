package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{
		RunID:  "run-001",
		Step:   2,
		NodeID: "analyze",
		Msg:    MsgNodeEnd,
		Meta:   map[string]interface{}{"duration_ms": int64(120), "model": "gemini-pro", "attempt": 1},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgNodeEnd {
		t.Errorf("span name = %q", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	if attrs["ria.run_id"] != "run-001" {
		t.Errorf("run_id = %v", attrs["ria.run_id"])
	}
	if attrs["ria.step"] != int64(2) {
		t.Errorf("step = %v", attrs["ria.step"])
	}
	if attrs["ria.node.latency_ms"] != int64(120) {
		t.Errorf("latency = %v", attrs["ria.node.latency_ms"])
	}
	if attrs["ria.llm.model"] != "gemini-pro" {
		t.Errorf("model = %v", attrs["ria.llm.model"])
	}
	if attrs["ria.attempt"] != int64(1) {
		t.Errorf("attempt = %v", attrs["ria.attempt"])
	}
}

func TestOTelEmitter_Error(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{RunID: "r", NodeID: "scrape", Msg: MsgNodeError, Meta: map[string]interface{}{"error": "timeout"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "timeout" {
		t.Errorf("status = %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestOTelEmitter_FlushWithoutSDK(t *testing.T) {
	emitter, _ := newTestTracer(t)
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush = %v", err)
	}
}
