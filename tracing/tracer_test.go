package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviderDisabledInstallsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if provider.tp != nil {
		t.Error("expected a noop provider (tp == nil)")
	}

	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	defer span.End()
	if span.IsRecording() {
		t.Error("expected a noop tracer span to be non-recording")
	}
}

func TestProviderShutdownOnNoopIsSafe(t *testing.T) {
	provider := &Provider{}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error shutting down a noop provider, got: %v", err)
	}
}

func TestStartStageTagsJobAndStep(t *testing.T) {
	ctx, span := StartStage(context.Background(), "job-1", "RENDER_FINAL")
	if span == nil {
		t.Fatal("expected a non-nil span")
	}
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	span.End()
}

func TestEndStageRecordsError(t *testing.T) {
	_, span := StartStage(context.Background(), "job-1", "TRANSCRIBE")
	// EndStage must not panic whether or not an error is supplied.
	EndStage(span, nil)

	_, span2 := StartStage(context.Background(), "job-1", "TRANSCRIBE")
	EndStage(span2, context.DeadlineExceeded)
}
