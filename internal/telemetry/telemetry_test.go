package telemetry

import (
	"context"
	"testing"
)

func TestInit_DisabledInstallsNoop(t *testing.T) {
	t.Setenv("BENEISSUE_OTEL_ENABLED", "")
	if Enabled() {
		t.Fatal("Enabled() = true with env unset")
	}
	if err := Init(context.Background(), "beneissue", "test"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := Tracer("").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer produced a recording span")
	}
	span.End()
	Shutdown(context.Background())
}

func TestInit_EnabledWithoutExporters(t *testing.T) {
	t.Setenv("BENEISSUE_OTEL_ENABLED", "true")
	t.Setenv("BENEISSUE_OTEL_STDOUT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	if err := Init(context.Background(), "beneissue", "test"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Shutdown(context.Background())

	_, span := Tracer("").Start(context.Background(), "node")
	if !span.SpanContext().IsValid() {
		t.Error("expected a sampled span when enabled")
	}
	span.End()

	c, err := Meter("").Int64Counter("beneissue.test")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	c.Add(context.Background(), 1)
}
