package editplan

import (
	"testing"

	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/style"
)

func makeWindows(n int, engaged bool) []model.EngagementWindow {
	windows := make([]model.EngagementWindow, n)
	for i := range windows {
		if engaged {
			windows[i] = model.EngagementWindow{AudioEnergy: 0.7, SpeechIntensity: 0.6, MotionScore: 0.5, FacePresence: 0.5, Score: 0.6, HookScore: 0.5}
		} else {
			windows[i] = model.EngagementWindow{AudioEnergy: 0.05, SpeechIntensity: 0.05, MotionScore: 0.02, FacePresence: 0.0, Score: 0.05}
		}
	}
	return windows
}

func TestComputeBoringRemovalRemovesLongQuietRuns(t *testing.T) {
	windows := makeWindows(20, false)
	removal := ComputeBoringRemoval(windows, nil, false)
	if totalDuration(removal) <= 0 {
		t.Fatal("expected some boring removal on a fully quiet timeline")
	}
}

func TestComputeBoringRemovalRespectsMaxRatio(t *testing.T) {
	windows := makeWindows(100, false)
	removal := ComputeBoringRemoval(windows, nil, false)
	if totalDuration(removal) > 100*0.68+1 {
		t.Fatalf("removal exceeded max cut ratio: %v", totalDuration(removal))
	}
}

func TestSegmentTimelineProducesSegmentsWithinPaceBounds(t *testing.T) {
	survivors := []model.Range{{Start: 0, End: 30}}
	windows := makeWindows(30, true)
	pacing := style.PacingProfile{EarlyTargetSeconds: 3, MiddleTargetSeconds: 4, LateTargetSeconds: 3, SpeedCap: 1.3}
	segments := SegmentTimeline(survivors, windows, pacing)
	if len(segments) == 0 {
		t.Fatal("expected segments")
	}
	for _, seg := range segments {
		if seg.Speed < 1.0 || seg.Speed > pacing.SpeedCap+0.001 {
			t.Errorf("speed out of bounds: %v", seg.Speed)
		}
	}
}

func TestBuildProducesNonEmptyPlan(t *testing.T) {
	windows := makeWindows(60, true)
	cues := []model.TranscriptCue{
		{Start: 1, End: 3, Text: "Here's why this actually works.", CuriosityTrigger: 0.6, KeywordIntensity: 0.4},
		{Start: 20, End: 22, Text: "This is the turning point.", CuriosityTrigger: 0.3},
	}
	plan := Build(Input{
		Windows:        windows,
		Cues:           cues,
		Duration:       60,
		Pacing:         style.PacingProfile{EarlyTargetSeconds: 3, MiddleTargetSeconds: 4, LateTargetSeconds: 3, SpeedCap: 1.3, PatternIntervalMin: 6, PatternIntervalMax: 10},
		FaceoffWeights: DefaultHookFaceoffWeights(),
	})
	if len(plan.Segments) == 0 {
		t.Fatal("expected non-empty segments in plan")
	}
	if plan.Hook.Duration <= 0 {
		t.Errorf("expected a hook to be chosen, got %+v", plan.Hook)
	}
}
