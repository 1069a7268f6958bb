package retry

import (
	"testing"

	"github.com/livepeer/retention-engine/editplan"
	"github.com/livepeer/retention-engine/judge"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/style"
)

func strongWindows(n int) []model.EngagementWindow {
	windows := make([]model.EngagementWindow, n)
	for i := range windows {
		windows[i] = model.EngagementWindow{AudioEnergy: 0.7, SpeechIntensity: 0.6, MotionScore: 0.5, FacePresence: 0.5, Score: 0.7, HookScore: 0.7, EmotionIntensity: 0.5}
	}
	return windows
}

func TestRunChoosesBestPassingStrategy(t *testing.T) {
	base := editplan.Input{
		Windows: strongWindows(40),
		Cues: []model.TranscriptCue{
			{Start: 1, End: 3, Text: "Here's why this actually works.", CuriosityTrigger: 0.7, KeywordIntensity: 0.5},
		},
		Duration:       40,
		Pacing:         style.PacingProfile{EarlyTargetSeconds: 3, MiddleTargetSeconds: 4, LateTargetSeconds: 3, SpeedCap: 1.3, PatternIntervalMin: 6, PatternIntervalMax: 10},
		FaceoffWeights: editplan.DefaultHookFaceoffWeights(),
	}
	ji := judge.Input{
		Captions:            true,
		Thresholds:          judge.DeriveThresholds(0, 0, 0, 0, 0, -10),
		TargetSegmentLength: 4,
		TargetInterrupts:    2,
	}
	outcome := Run(base, ji, CalibrationBias{StrategyBias: map[string]float64{}}, true, 0.8)
	if outcome.Err != nil {
		t.Fatalf("expected a passing strategy, got error: %v", outcome.Err)
	}
	if outcome.Chosen == nil {
		t.Fatal("expected a chosen attempt")
	}
}

func TestRunFallsThroughToGateErrorWhenHopeless(t *testing.T) {
	base := editplan.Input{
		Windows:        make([]model.EngagementWindow, 10),
		Duration:       10,
		Pacing:         style.PacingProfile{EarlyTargetSeconds: 3, MiddleTargetSeconds: 4, LateTargetSeconds: 3, SpeedCap: 1.1},
		FaceoffWeights: editplan.DefaultHookFaceoffWeights(),
	}
	ji := judge.Input{
		Thresholds:          judge.DeriveThresholds(0, 0, 0, 0, 0, 4),
		TargetSegmentLength: 4,
	}
	outcome := Run(base, ji, CalibrationBias{}, false, 0.1)
	if outcome.Err == nil {
		t.Fatal("expected a gate error for a hopeless plan")
	}
}
