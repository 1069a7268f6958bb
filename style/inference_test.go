package style

import (
	"testing"

	"github.com/livepeer/retention-engine/model"
)

func TestInferContentStyleMatchesKeywords(t *testing.T) {
	cues := []model.TranscriptCue{{Text: "ok so first we open the file, then we run the build"}}
	profile := InferContentStyle(cues, nil)
	if profile.Style != "tutorial" {
		t.Errorf("expected tutorial style, got %s", profile.Style)
	}
}

func TestInferVideoNicheHighEnergy(t *testing.T) {
	windows := make([]model.EngagementWindow, 10)
	for i := range windows {
		windows[i] = model.EngagementWindow{SceneChangeRate: 0.6, EmotionalSpike: 1}
	}
	niche := InferVideoNiche(windows)
	if niche.Niche != "high_energy" {
		t.Errorf("expected high_energy, got %s", niche.Niche)
	}
}

func TestDerivePacingProfileFallsBackForUnknownNiche(t *testing.T) {
	p := DerivePacingProfile(VideoNicheProfile{Niche: "unknown"}, ContentStyleProfile{})
	if p.SpeedCap <= 0 {
		t.Errorf("expected a valid fallback pacing profile, got %+v", p)
	}
}

func TestResolveRuntimeStyleRescueModeIsMoreAggressive(t *testing.T) {
	pacing := pacingByNiche["talking_head"]
	baseline := ResolveRuntimeStyle("BASELINE", pacing)
	rescue := ResolveRuntimeStyle("RESCUE_MODE", pacing)
	if rescue.AvgCutIntervalSeconds >= baseline.AvgCutIntervalSeconds {
		t.Errorf("expected rescue mode to cut faster: rescue=%v baseline=%v", rescue.AvgCutIntervalSeconds, baseline.AvgCutIntervalSeconds)
	}
}
