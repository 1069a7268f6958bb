package style

import (
	"strings"

	"github.com/livepeer/retention-engine/model"
)

// ContentStyleProfile classifies the creative style of the transcript/footage
// (spec §4.5).
type ContentStyleProfile struct {
	Style      string // reaction|vlog|tutorial|gaming|story
	Confidence float64
	Rationale  string
}

// VideoNicheProfile classifies the visual/energy niche (spec §4.5).
type VideoNicheProfile struct {
	Niche string // high_energy|education|talking_head|story
}

// PacingProfile carries per-niche segment-length targets (spec §4.6).
type PacingProfile struct {
	EarlyTargetSeconds  float64
	MiddleTargetSeconds float64
	LateTargetSeconds   float64
	Jitter              float64
	SpeedCap            float64
	PatternIntervalMin  float64
	PatternIntervalMax  float64
}

// RuntimeStyleProfile derives pacing shifts from the chosen retention
// strategy (spec §4.5).
type RuntimeStyleProfile struct {
	AvgCutIntervalSeconds      float64
	PatternInterruptIntervalS  float64
	EscalationCurve            []float64
}

// StyleArchetypeBlend is resolved from an external collaborator; this engine
// has no such collaborator wired, so it always returns the zero blend
// (spec §4.5's "external collaborator" is explicitly out of scope per §1).
type StyleArchetypeBlend struct {
	Weights map[string]float64
}

var styleKeywords = map[string][]string{
	"reaction": {"whoa", "look at this", "can you believe", "oh my"},
	"tutorial": {"step", "first", "next", "now we", "how to"},
	"gaming":   {"kill", "level", "boss", "respawn", "clip"},
	"vlog":     {"today i", "my day", "with me", "so yeah"},
	"story":    {"one day", "so then", "turns out", "happened"},
}

// InferContentStyle scores transcript keyword hits against a fixed lexicon
// plus window means, returning the best match with a rationale (spec §4.5).
func InferContentStyle(cues []model.TranscriptCue, windows []model.EngagementWindow) ContentStyleProfile {
	full := strings.Builder{}
	for _, c := range cues {
		full.WriteString(strings.ToLower(c.Text))
		full.WriteString(" ")
	}
	text := full.String()

	bestStyle := "story"
	bestScore := -1.0
	for styleName, keywords := range styleKeywords {
		score := 0.0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStyle = styleName
		}
	}

	avgEnergy, avgFace := windowMeans(windows)
	confidence := clamp01(0.3 + 0.1*bestScore)
	rationale := "keyword match"
	if bestScore <= 0 {
		if avgFace > 0.5 {
			bestStyle = "vlog"
			rationale = "high average face presence, no strong keyword signal"
		} else if avgEnergy > 0.6 {
			bestStyle = "reaction"
			rationale = "high average energy, no strong keyword signal"
		} else {
			rationale = "default fallback, no strong signal"
		}
		confidence = 0.35
	}

	return ContentStyleProfile{Style: bestStyle, Confidence: confidence, Rationale: rationale}
}

// InferVideoNiche derives a niche from speech/scene/emotion averages and the
// emotional-spike ratio (spec §4.5).
func InferVideoNiche(windows []model.EngagementWindow) VideoNicheProfile {
	if len(windows) == 0 {
		return VideoNicheProfile{Niche: "talking_head"}
	}
	var speechSum, sceneSum, emotionSum float64
	var spikes int
	for _, w := range windows {
		speechSum += w.SpeechIntensity
		sceneSum += w.SceneChangeRate
		emotionSum += w.EmotionIntensity
		spikes += w.EmotionalSpike
	}
	n := float64(len(windows))
	avgSpeech, avgScene, avgEmotion := speechSum/n, sceneSum/n, emotionSum/n
	spikeRatio := float64(spikes) / n

	switch {
	case avgScene > 0.4 && spikeRatio > 0.1:
		return VideoNicheProfile{Niche: "high_energy"}
	case avgEmotion > 0.45:
		return VideoNicheProfile{Niche: "story"}
	case avgSpeech > 0.55 && avgScene < 0.2:
		return VideoNicheProfile{Niche: "education"}
	default:
		return VideoNicheProfile{Niche: "talking_head"}
	}
}

var pacingByNiche = map[string]PacingProfile{
	"high_energy": {EarlyTargetSeconds: 2.2, MiddleTargetSeconds: 2.8, LateTargetSeconds: 2.0, Jitter: 0.6, SpeedCap: 1.6, PatternIntervalMin: 4, PatternIntervalMax: 8},
	"education":   {EarlyTargetSeconds: 4.5, MiddleTargetSeconds: 5.5, LateTargetSeconds: 4.0, Jitter: 1.0, SpeedCap: 1.2, PatternIntervalMin: 10, PatternIntervalMax: 18},
	"talking_head": {EarlyTargetSeconds: 3.2, MiddleTargetSeconds: 4.0, LateTargetSeconds: 3.0, Jitter: 0.8, SpeedCap: 1.3, PatternIntervalMin: 7, PatternIntervalMax: 14},
	"story":       {EarlyTargetSeconds: 3.6, MiddleTargetSeconds: 4.4, LateTargetSeconds: 3.2, Jitter: 0.9, SpeedCap: 1.25, PatternIntervalMin: 8, PatternIntervalMax: 15},
}

// DerivePacingProfile looks up the niche's base pacing and blends in the
// content style's typical cut cadence (spec §4.5).
func DerivePacingProfile(niche VideoNicheProfile, styleProfile ContentStyleProfile) PacingProfile {
	p, ok := pacingByNiche[niche.Niche]
	if !ok {
		p = pacingByNiche["talking_head"]
	}
	if styleProfile.Style == "reaction" || styleProfile.Style == "gaming" {
		p.SpeedCap += 0.15
		p.PatternIntervalMin *= 0.85
		p.PatternIntervalMax *= 0.85
	}
	return p
}

// ResolveRuntimeStyle derives behavior-driven pacing shifts from the chosen
// retention strategy name (spec §4.5).
func ResolveRuntimeStyle(strategy string, pacing PacingProfile) RuntimeStyleProfile {
	base := (pacing.EarlyTargetSeconds + pacing.MiddleTargetSeconds + pacing.LateTargetSeconds) / 3
	interruptInterval := (pacing.PatternIntervalMin + pacing.PatternIntervalMax) / 2
	curve := []float64{1.0, 1.05, 1.1, 1.2}

	switch strategy {
	case "HOOK_FIRST":
		base *= 0.9
	case "EMOTION_FIRST":
		curve = []float64{1.0, 1.1, 1.25, 1.4}
	case "PACING_FIRST":
		base *= 0.8
		interruptInterval *= 0.8
	case "RESCUE_MODE":
		base *= 0.7
		interruptInterval *= 0.65
		curve = []float64{1.0, 1.15, 1.35, 1.6}
	}

	return RuntimeStyleProfile{
		AvgCutIntervalSeconds:     base,
		PatternInterruptIntervalS: interruptInterval,
		EscalationCurve:           curve,
	}
}

// ResolveStyleArchetypeBlend always returns an empty blend: the "external
// collaborator" spec §4.5 references is out of scope per §1, and no pack
// dependency offers an equivalent archetype service to wire instead.
func ResolveStyleArchetypeBlend() StyleArchetypeBlend {
	return StyleArchetypeBlend{Weights: map[string]float64{}}
}

func windowMeans(windows []model.EngagementWindow) (avgEnergy, avgFace float64) {
	if len(windows) == 0 {
		return 0, 0
	}
	for _, w := range windows {
		avgEnergy += w.AudioEnergy
		avgFace += w.FacePresence
	}
	n := float64(len(windows))
	return avgEnergy / n, avgFace / n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
