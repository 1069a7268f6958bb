package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/livepeer/retention-engine/calibration"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/style"
)

func TestTargetInterruptCountScalesWithDuration(t *testing.T) {
	pacing := style.PacingProfile{PatternIntervalMin: 8, PatternIntervalMax: 12}
	count := targetInterruptCount(100, pacing)
	if count != 10 {
		t.Errorf("expected 10 interrupts for a 100s video at interval ~10, got %d", count)
	}
}

func TestTargetInterruptCountFloorsAtOne(t *testing.T) {
	pacing := style.PacingProfile{PatternIntervalMin: 40, PatternIntervalMax: 60}
	if count := targetInterruptCount(5, pacing); count != 1 {
		t.Errorf("expected a floor of 1 interrupt, got %d", count)
	}
}

func TestTargetInterruptCountHandlesZeroInterval(t *testing.T) {
	if count := targetInterruptCount(100, style.PacingProfile{}); count != 0 {
		t.Errorf("expected 0 interrupts with a zero interval, got %d", count)
	}
}

func TestRenderDimensionsVertical(t *testing.T) {
	w, h := renderDimensions(model.RenderConfig{Mode: model.RenderModeVertical})
	if w != 1080 || h != 1920 {
		t.Errorf("expected 1080x1920 for vertical mode, got %dx%d", w, h)
	}
}

func TestRenderDimensionsHorizontalQualityPresets(t *testing.T) {
	cases := []struct {
		quality      string
		wantW, wantH int
	}{
		{"720p", 1280, 720},
		{"4k", 3840, 2160},
		{"", 1920, 1080},
	}
	for _, c := range cases {
		w, h := renderDimensions(model.RenderConfig{Horizontal: model.HorizontalModeOutput{Quality: c.quality}})
		if w != c.wantW || h != c.wantH {
			t.Errorf("quality %q: expected %dx%d, got %dx%d", c.quality, c.wantW, c.wantH, w, h)
		}
	}
}

func TestWatermarkPathRespectsEnabledFlag(t *testing.T) {
	if path := watermarkPath(model.RenderConfig{WatermarkEnabled: false}); path != "" {
		t.Errorf("expected no watermark path when disabled, got %q", path)
	}
}

func TestHookWeightsFromCalibrationFallsBackToDefault(t *testing.T) {
	weights := hookWeightsFromCalibration(calibration.Profile{})
	if weights != (hookWeightsFromCalibration(calibration.Profile{HookWeights: map[string]float64{}})) {
		t.Fatalf("expected a stable default for empty calibration weights")
	}
}

func TestHookWeightsFromCalibrationRenormalizes(t *testing.T) {
	profile := calibration.Profile{HookWeights: map[string]float64{"score": 0.2, "audit": 0.2, "curiosity": 0.6}}
	weights := hookWeightsFromCalibration(profile)
	if got := weights.Score + weights.Audit; got < 0.99 || got > 1.01 {
		t.Errorf("expected score+audit to renormalize to ~1, got %v", got)
	}
	if weights.Score != weights.Audit {
		t.Errorf("expected equal score/audit weights from equal inputs, got %+v", weights)
	}
}

func TestJobCompletionPatchMarshalsJSONColumns(t *testing.T) {
	job := &model.Job{
		ID:                       "job-1",
		OutputObjectKey:          "job-1/output.mp4",
		VerticalOutputObjectKeys: []string{"job-1/output.1.mp4"},
		OptimizationNotes:        []string{"render fell back to segment_fallback strategy"},
		Analysis:                 map[string]interface{}{"strategy": "HOOK_FIRST"},
	}
	patch, err := jobCompletionPatch(job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var notes []string
	if err := json.Unmarshal(patch["optimization_notes"].([]byte), &notes); err != nil {
		t.Fatalf("optimization_notes did not round-trip as JSON: %v", err)
	}
	if len(notes) != 1 || notes[0] != job.OptimizationNotes[0] {
		t.Errorf("expected optimization notes to round-trip, got %v", notes)
	}

	var keys []string
	if err := json.Unmarshal(patch["vertical_output_object_keys"].([]byte), &keys); err != nil {
		t.Fatalf("vertical_output_object_keys did not round-trip as JSON: %v", err)
	}
	if len(keys) != 1 || keys[0] != job.VerticalOutputObjectKeys[0] {
		t.Errorf("expected vertical output keys to round-trip, got %v", keys)
	}

	if patch["status"] != string(model.StatusCompleted) {
		t.Errorf("expected status completed in patch, got %v", patch["status"])
	}
}
