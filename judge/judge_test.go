package judge

import (
	"testing"

	"github.com/livepeer/retention-engine/model"
)

func TestDeriveThresholdsClampsFeedbackOffset(t *testing.T) {
	th := DeriveThresholds(0, 0, 0, 0, 0, 100)
	unclamped := DeriveThresholds(0, 0, 0, 0, 0, 4)
	if th != unclamped {
		t.Errorf("expected feedback offset clamped to 4, got thresholds %+v vs %+v", th, unclamped)
	}
}

func TestEvaluateStrongPlanPasses(t *testing.T) {
	windows := make([]model.EngagementWindow, 30)
	for i := range windows {
		windows[i] = model.EngagementWindow{AudioEnergy: 0.6, EmotionIntensity: 0.5, VocalExcitement: 0.5}
	}
	plan := model.EditPlan{
		Hook:     model.HookCandidate{Score: 0.9, AuditScore: 0.9, AuditPassed: true},
		Segments: []model.Segment{{Start: 0, End: 4}, {Start: 4, End: 8}},
		Windows:  windows,
		Meta:     model.EditPlanMeta{BoredomRatio: 0.3},
	}
	report := Evaluate(Input{
		Plan:                plan,
		Captions:            true,
		PatternInterruptCount: 4,
		TargetInterrupts:    4,
		Thresholds:          DeriveThresholds(0, 0, 0, 0, 0, 0),
		TargetSegmentLength: 4,
	})
	if report.RetentionScore <= 0 {
		t.Errorf("expected positive retention score, got %v", report.RetentionScore)
	}
}

func TestEvaluateWeakPlanFailsAndFlagsFixes(t *testing.T) {
	windows := make([]model.EngagementWindow, 10)
	plan := model.EditPlan{
		Hook:     model.HookCandidate{Score: 0.1, AuditScore: 0.1},
		Segments: []model.Segment{{Start: 0, End: 1}},
		Windows:  windows,
	}
	report := Evaluate(Input{
		Plan:                plan,
		Thresholds:          DeriveThresholds(0, 0, 0, 0, 0, 0),
		TargetSegmentLength: 4,
	})
	if report.Passed {
		t.Error("expected weak plan to fail the gate")
	}
	if !report.RequiredFixes.StrongerHook {
		t.Error("expected StrongerHook fix to be flagged")
	}
}
