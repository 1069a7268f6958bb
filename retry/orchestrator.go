package retry

import (
	"github.com/livepeer/retention-engine/editplan"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/judge"
	"github.com/livepeer/retention-engine/model"
)

// Strategy names, ordered (spec §4.8).
const (
	StrategyBaseline     = "BASELINE"
	StrategyHookFirst    = "HOOK_FIRST"
	StrategyEmotionFirst = "EMOTION_FIRST"
	StrategyPacingFirst  = "PACING_FIRST"
	StrategyRescueMode   = "RESCUE_MODE"
)

var orderedStrategies = []string{StrategyBaseline, StrategyHookFirst, StrategyEmotionFirst, StrategyPacingFirst}

// Attempt records one strategy's outcome, kept on the job's analysis
// (spec §4.8: "All attempts are recorded").
type Attempt struct {
	Strategy       string
	Plan           model.EditPlan
	Judge          model.RetentionJudgeReport
	HookUsed       model.HookCandidate
	PredictedScore float64
	VariantScore   float64
}

// CalibrationBias supplies per-strategy and style bias points from the
// CalibrationStore (spec §4.8, §4.11).
type CalibrationBias struct {
	StrategyBias map[string]float64 // points in [-12,12]
	StyleBias    float64
}

// Outcome is the result of running the full retry loop.
type Outcome struct {
	Attempts     []Attempt
	Chosen       *Attempt
	RescueUsed   bool
	OverrideUsed bool
	Err          error
}

// variantInput builds a per-strategy editplan.Input variant (spec §4.8:
// "subtract hook from story, optionally reorder for emotion, apply stricter
// pacing, etc.").
func variantInput(base editplan.Input, strategy string) editplan.Input {
	in := base
	switch strategy {
	case StrategyHookFirst:
		in.FaceoffWeights = editplan.HookFaceoffWeights{Score: 0.8, Audit: 0.2}
	case StrategyEmotionFirst:
		in.ContentFormat = "tiktok_short" // bias the reorder step toward lifting emotional beats forward
	case StrategyPacingFirst:
		in.Pacing.SpeedCap = minFloat(in.Pacing.SpeedCap+0.2, 2.0)
		in.Pacing.PatternIntervalMin *= 0.75
		in.Pacing.PatternIntervalMax *= 0.75
	case StrategyRescueMode:
		in.Aggressive = true
		in.Pacing.PatternIntervalMin *= 0.6
		in.Pacing.PatternIntervalMax *= 0.6
	}
	return in
}

// Run evaluates BASELINE..PACING_FIRST in order, falls through to
// RESCUE_MODE if none pass, and applies the override rules (spec §4.8).
func Run(base editplan.Input, judgeInput judge.Input, bias CalibrationBias, hasTranscript bool, styleConfidence float64) Outcome {
	var attempts []Attempt
	var bestPassing *Attempt
	bestVariantScore := -1.0

	for _, strategy := range orderedStrategies {
		attempt := evaluateStrategy(base, judgeInput, strategy, bias)
		attempts = append(attempts, attempt)
		if attempt.Judge.Passed && attempt.VariantScore > bestVariantScore {
			bestVariantScore = attempt.VariantScore
			a := attempt
			bestPassing = &a
		}
	}

	if bestPassing != nil {
		return Outcome{Attempts: attempts, Chosen: bestPassing}
	}

	rescue := evaluateStrategy(base, judgeInput, StrategyRescueMode, bias)
	attempts = append(attempts, rescue)

	lowSignal := !hasTranscript || styleConfidence < 0.4
	withinBuffers := withinAdaptiveBuffers(rescue.Judge, judgeInput.Thresholds)

	if lowSignal && withinBuffers {
		r := rescue
		return Outcome{Attempts: attempts, Chosen: &r, RescueUsed: true, OverrideUsed: true}
	}

	if meetsRescueMinimums(rescue.Judge) {
		r := rescue
		return Outcome{Attempts: attempts, Chosen: &r, RescueUsed: true}
	}

	return Outcome{
		Attempts: attempts,
		Err: xerrors.NewGateError(xerrors.GateQuality, "no strategy met the quality gate", map[string]interface{}{
			"attempts": len(attempts),
		}),
	}
}

func evaluateStrategy(base editplan.Input, judgeInput judge.Input, strategy string, bias CalibrationBias) Attempt {
	in := variantInput(base, strategy)
	plan := editplan.Build(in)

	ji := judgeInput
	ji.Plan = plan
	ji.StrategyProfile = strategy
	report := judge.Evaluate(ji)

	strategyBias := bias.StrategyBias[strategy]
	predicted := report.RetentionScore + strategyBias + bias.StyleBias + 10*plan.Hook.Score - 10*(1-plan.Hook.AuditScore)

	passBonus := 0.0
	if report.Passed {
		passBonus = 3.5
	}
	variantScore := 0.8*predicted + 0.2*report.RetentionScore + passBonus

	return Attempt{
		Strategy:       strategy,
		Plan:           plan,
		Judge:          report,
		HookUsed:       plan.Hook,
		PredictedScore: predicted,
		VariantScore:   variantScore,
	}
}

// withinAdaptiveBuffers checks the "override pass" condition: retention, hook
// and pacing each within a fixed 6-point buffer of their thresholds
// (spec §4.8). Emotional pull is not checked; Thresholds has no emotion entry.
func withinAdaptiveBuffers(report model.RetentionJudgeReport, th judge.Thresholds) bool {
	const buffer = 6.0
	return report.RetentionScore >= th.Retention-buffer &&
		report.HookStrength >= th.Hook-buffer &&
		report.PacingScore >= th.Pacing-buffer
}

// meetsRescueMinimums implements the force-render floor (spec §4.8).
func meetsRescueMinimums(report model.RetentionJudgeReport) bool {
	return report.RetentionScore >= 44 && report.HookStrength >= 52 && report.PacingScore >= 50
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
