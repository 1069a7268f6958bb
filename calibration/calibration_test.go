package calibration

import (
	"testing"

	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/retry"
)

func TestComputeReturnsDefaultBelowMinSamples(t *testing.T) {
	profile := Compute([]model.JobSummary{
		{Strategy: retry.StrategyBaseline, RetentionScore: 70},
	})
	if !profile.IsDefault {
		t.Error("expected default calibration with fewer than MinSamples jobs")
	}
}

func TestComputeDerivesStrategyBiasFromHistory(t *testing.T) {
	summaries := []model.JobSummary{
		{Strategy: retry.StrategyHookFirst, ContentFormat: "tiktok_short", RetentionScore: 90},
		{Strategy: retry.StrategyHookFirst, ContentFormat: "tiktok_short", RetentionScore: 88},
		{Strategy: retry.StrategyBaseline, ContentFormat: "tiktok_short", RetentionScore: 50},
		{Strategy: retry.StrategyBaseline, ContentFormat: "tiktok_short", RetentionScore: 48},
	}
	profile := Compute(summaries)
	if profile.IsDefault {
		t.Fatal("expected a computed calibration, not default")
	}
	if profile.StrategyBias[retry.StrategyHookFirst] <= profile.StrategyBias[retry.StrategyBaseline] {
		t.Errorf("expected HOOK_FIRST bias to exceed BASELINE bias, got %+v", profile.StrategyBias)
	}
	if profile.DominantStyle != "tiktok_short" {
		t.Errorf("expected dominant style tiktok_short, got %s", profile.DominantStyle)
	}
}

func TestDeriveHookWeightsSumToOne(t *testing.T) {
	outcomes := []jobOutcome{
		{Strategy: retry.StrategyHookFirst, Outcome: 0.9},
		{Strategy: retry.StrategyBaseline, Outcome: 0.5},
		{Strategy: retry.StrategyBaseline, Outcome: 0.4},
	}
	weights := deriveHookWeights(outcomes)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("expected normalized weights to sum to ~1, got %v", sum)
	}
}
