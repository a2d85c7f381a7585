package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitProducesTraceIDs(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "curated-feeds-test"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "probe")
	defer span.End()
	if !span.SpanContext().HasTraceID() {
		t.Fatal("expected a recording span with a trace id")
	}
}
