package judge

import (
	"math"

	"github.com/livepeer/retention-engine/model"
)

// Thresholds is the applied_thresholds table (spec §4.7): base values offset
// by aggression/transcript/signal-strength/format/platform/feedback terms.
type Thresholds struct {
	Retention float64
	Hook      float64
	Pacing    float64
	Clarity   float64
}

var baseThresholds = Thresholds{Retention: 62, Hook: 58, Pacing: 55, Clarity: 55}

// DeriveThresholds builds applied_thresholds from the base table plus the
// offsets spec §4.7 names, clamping the feedback offset to [-4,4] and
// flooring every threshold at zero.
func DeriveThresholds(aggressionOffset, transcriptOffset, signalStrengthOffset, formatOffset, platformOffset, feedbackOffset float64) Thresholds {
	feedbackOffset = math.Max(-4, math.Min(4, feedbackOffset))
	total := aggressionOffset + transcriptOffset + signalStrengthOffset + formatOffset + platformOffset + feedbackOffset

	floor := func(v float64) float64 { return math.Max(0, v) }
	return Thresholds{
		Retention: floor(baseThresholds.Retention + total),
		Hook:      floor(baseThresholds.Hook + total),
		Pacing:    floor(baseThresholds.Pacing + total),
		Clarity:   floor(baseThresholds.Clarity + total),
	}
}

// Input bundles everything RetentionJudge needs to score an edit plan
// (spec §4.7).
type Input struct {
	Plan                model.EditPlan
	Captions            bool
	PatternInterruptCount int
	Thresholds          Thresholds
	ContentFormat       string
	TargetPlatform      string
	StrategyProfile     string
	GateMode            string // strict|adaptive
	TargetInterrupts    int
	TargetSegmentLength float64
	AudioScore          float64
}

// Evaluate computes the full RetentionJudgeReport per spec §4.7's five-step
// fusion.
func Evaluate(in Input) model.RetentionJudgeReport {
	windows := in.Plan.Windows

	consistency := audioConsistency(windows)
	pacingDistance := pacingDistanceScore(in.Plan.Segments, in.TargetSegmentLength)
	boredomRemovalRatio := in.Plan.Meta.BoredomRatio
	spikeDensity := emotionalSpikeDensity(windows)
	interruptCoverage := interruptCoverage(in.PatternInterruptCount, in.TargetInterrupts)
	captionsFactor := 0.0
	if in.Captions {
		captionsFactor = 1.0
	}

	retentionScore := 100 * clamp01(
		0.22*in.Plan.Hook.Score+
			0.16*consistency+
			0.16*pacingDistance+
			0.14*boredomRemovalRatio+
			0.12*spikeDensity+
			0.1*interruptCoverage+
			0.05*captionsFactor+
			0.05*in.AudioScore,
	)

	hookStrength := 100 * clamp01(0.65*in.Plan.Hook.Score+0.35*in.Plan.Hook.AuditScore)
	pacingScore := 100 * clamp01(0.7*pacingDistance+0.3*interruptCoverage)

	auditFactor := 0.6
	if in.Plan.Hook.AuditPassed {
		auditFactor = 1.0
	}
	contextPenalty := 1 - (in.Plan.Hook.Score) // proxy: weak score implies unresolved context penalty
	clarityScore := 100 * clamp01(0.72*(1-clamp01(contextPenalty))+0.14*captionsFactor+0.14*auditFactor)

	emotionalPull := 100 * clamp01(averageEmotion(windows)*0.6+averageVocal(windows)*0.2+spikeDensity*0.15+in.Plan.Hook.AuditScore*0.05)

	report := model.RetentionJudgeReport{
		RetentionScore:    retentionScore,
		HookStrength:      hookStrength,
		PacingScore:       pacingScore,
		ClarityScore:      clarityScore,
		EmotionalPull:     emotionalPull,
		ContentFormat:     in.ContentFormat,
		TargetPlatform:    in.TargetPlatform,
		StrategyProfile:   in.StrategyProfile,
		AppliedThresholds: map[string]float64{
			"retention": in.Thresholds.Retention,
			"hook":      in.Thresholds.Hook,
			"pacing":    in.Thresholds.Pacing,
			"clarity":   in.Thresholds.Clarity,
		},
		GateMode: in.GateMode,
	}

	report.Passed = retentionScore >= in.Thresholds.Retention &&
		hookStrength >= in.Thresholds.Hook &&
		pacingScore >= in.Thresholds.Pacing &&
		clarityScore >= in.Thresholds.Clarity

	report.RequiredFixes = model.RequiredFixes{
		StrongerHook:       hookStrength < in.Thresholds.Hook,
		RaiseEmotion:       emotionalPull < 55,
		ImprovePacing:      pacingScore < in.Thresholds.Pacing,
		IncreaseInterrupts: interruptCoverage < 0.8,
	}
	if report.RequiredFixes.StrongerHook {
		report.WhatIsGeneric = append(report.WhatIsGeneric, "hook does not stand out from the section")
	} else {
		report.WhyKeepWatching = append(report.WhyKeepWatching, "hook scores above threshold")
	}
	if !report.RequiredFixes.ImprovePacing {
		report.WhyKeepWatching = append(report.WhyKeepWatching, "pacing matches format target")
	}

	return report
}

func audioConsistency(windows []model.EngagementWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	var sum float64
	for _, w := range windows {
		sum += w.AudioEnergy
	}
	mean := sum / float64(len(windows))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, w := range windows {
		d := w.AudioEnergy - mean
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(len(windows)))
	return clamp01(1 - stdev/mean)
}

func pacingDistanceScore(segments []model.Segment, targetLength float64) float64 {
	if len(segments) == 0 || targetLength <= 0 {
		return 0
	}
	var sum float64
	for _, seg := range segments {
		sum += seg.End - seg.Start
	}
	avg := sum / float64(len(segments))
	distance := math.Abs(avg - targetLength)
	return clamp01(1 - distance/targetLength)
}

func emotionalSpikeDensity(windows []model.EngagementWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	var spikes int
	for _, w := range windows {
		spikes += w.EmotionalSpike
	}
	return clamp01(float64(spikes) / float64(len(windows)) * 5)
}

func interruptCoverage(actual, target int) float64 {
	if target <= 0 {
		return 1
	}
	return clamp01(float64(actual) / float64(target))
}

func averageEmotion(windows []model.EngagementWindow) float64 {
	return average(windows, func(w model.EngagementWindow) float64 { return w.EmotionIntensity })
}

func averageVocal(windows []model.EngagementWindow) float64 {
	return average(windows, func(w model.EngagementWindow) float64 { return w.VocalExcitement })
}

func average(windows []model.EngagementWindow, f func(model.EngagementWindow) float64) float64 {
	if len(windows) == 0 {
		return 0
	}
	var sum float64
	for _, w := range windows {
		sum += f(w)
	}
	return sum / float64(len(windows))
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
