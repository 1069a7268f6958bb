package feedback

import (
	"testing"
	"time"
)

func TestIngestPlatformAnalyticsClampsAndValidates(t *testing.T) {
	f, err := IngestPlatformAnalytics(PlatformAnalyticsPayload{
		WatchPercent: 0.9, HookHoldPercent: 0.8, CompletionPercent: 0.7, CTR: 0.1,
	}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Source != "platform" {
		t.Errorf("expected source platform, got %s", f.Source)
	}
}

func TestIngestPlatformAnalyticsRejectsOutOfRange(t *testing.T) {
	_, err := IngestPlatformAnalytics(PlatformAnalyticsPayload{WatchPercent: 1.5}, time.Unix(0, 0))
	if err == nil {
		t.Error("expected validation error for watchPercent > 1")
	}
}

func TestIngestCorrectionMapsToSyntheticMetrics(t *testing.T) {
	f, err := IngestCorrection(CorrectionPayload{Category: CorrectionGreatEdit}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ManualScore < 80 {
		t.Errorf("expected a high manual score for great_edit, got %v", f.ManualScore)
	}
}

func TestIngestCorrectionRejectsUnknownCategory(t *testing.T) {
	_, err := IngestCorrection(CorrectionPayload{Category: "nonsense"}, time.Unix(0, 0))
	if err == nil {
		t.Error("expected validation error for unknown category")
	}
}

func TestAppendToHistoryTrimsToMaxEntries(t *testing.T) {
	var history []RetentionFeedback
	for i := 0; i < MaxHistoryEntries+10; i++ {
		history = AppendToHistory(history, RetentionFeedback{ManualScore: float64(i)})
	}
	if len(history) != MaxHistoryEntries {
		t.Fatalf("expected history trimmed to %d, got %d", MaxHistoryEntries, len(history))
	}
	if history[len(history)-1].ManualScore != float64(MaxHistoryEntries+9) {
		t.Error("expected most-recent entry retained at the tail")
	}
}
