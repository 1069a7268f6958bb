package calibration

import (
	"fmt"

	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/retry"
)

// MinSamples is the minimum number of completed jobs required before a
// non-default calibration is computed (spec §4.11).
const MinSamples = 3

// Profile is the adaptive calibration consumed by the hook faceoff and by
// RetryOrchestrator's predictedRetention (spec §4.11).
type Profile struct {
	HookWeights   map[string]float64 `yaml:"hookWeights"`  // score|audit|curiosity|duration|keyword, normalized, each in [0.05,0.7]
	StrategyBias  map[string]float64 `yaml:"strategyBias"` // points in [-12,12]
	DominantStyle string             `yaml:"dominantStyle"`
	Rationale     []string           `yaml:"rationale"`
	SampleCount   int                `yaml:"sampleCount"`
	IsDefault     bool               `yaml:"isDefault"`
}

// Default returns the calibration used when fewer than MinSamples jobs are
// available (spec §4.11: "otherwise return a default calibration").
func Default() Profile {
	return Profile{
		HookWeights: map[string]float64{
			"score": 0.35, "audit": 0.25, "curiosity": 0.15, "duration": 0.15, "keyword": 0.10,
		},
		StrategyBias: map[string]float64{
			retry.StrategyBaseline:     0,
			retry.StrategyHookFirst:    0,
			retry.StrategyEmotionFirst: 0,
			retry.StrategyPacingFirst:  0,
			retry.StrategyRescueMode:   0,
		},
		DominantStyle: "",
		Rationale:     []string{"insufficient history, using default calibration"},
		IsDefault:     true,
	}
}

// ToRetryBias projects a Profile onto the narrower shape retry.Run consumes.
// Strategy keys already match between the two packages; style bias is left
// at zero here since Profile only records a dominant style label, not a
// per-style point value.
func (p Profile) ToRetryBias() retry.CalibrationBias {
	return retry.CalibrationBias{StrategyBias: p.StrategyBias, StyleBias: 0}
}

// jobOutcome is the per-job weighted outcome signal computed from a
// completed job's analysis (spec §4.11).
type jobOutcome struct {
	Strategy    string
	Style       string
	Outcome     float64 // model retention blended with averaged watch/hook/completion/manual feedback; no first30 or platform composite term
}

// Compute derives an adaptive calibration profile from the user's last
// config.HookCalibrationLookbackJobs completed jobs (spec §4.11).
func Compute(summaries []model.JobSummary) Profile {
	if len(summaries) > config.HookCalibrationLookbackJobs {
		summaries = summaries[:config.HookCalibrationLookbackJobs]
	}

	outcomes := make([]jobOutcome, 0, len(summaries))
	for _, s := range summaries {
		outcomes = append(outcomes, scoreJobOutcome(s))
	}
	if len(outcomes) < MinSamples {
		return Default()
	}

	return Profile{
		HookWeights:   deriveHookWeights(outcomes),
		StrategyBias:  deriveStrategyBias(outcomes),
		DominantStyle: dominantStyle(outcomes),
		Rationale:     buildRationale(outcomes),
		SampleCount:   len(outcomes),
	}
}

func scoreJobOutcome(s model.JobSummary) jobOutcome {
	outcome := s.RetentionScore / 100

	if s.Analysis != nil {
		if fbRaw, ok := s.Analysis["feedbackHistory"]; ok {
			if entries, ok := fbRaw.([]interface{}); ok && len(entries) > 0 {
				outcome = blendWithFeedback(outcome, entries)
			}
		}
	}
	return jobOutcome{Strategy: s.Strategy, Style: s.ContentFormat, Outcome: clamp01(outcome)}
}

// blendWithFeedback folds the average of recorded watch/hook/completion/
// manual signals into the model-predicted retention score, weighting
// real-world feedback more heavily once it exists.
func blendWithFeedback(modelRetention float64, entries []interface{}) float64 {
	var sum, count float64
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var components []float64
		if v, ok := numeric(entry["watchPercent"]); ok {
			components = append(components, v)
		}
		if v, ok := numeric(entry["hookHoldPercent"]); ok {
			components = append(components, v)
		}
		if v, ok := numeric(entry["completionPercent"]); ok {
			components = append(components, v)
		}
		if v, ok := numeric(entry["manualScore"]); ok {
			components = append(components, v/100)
		}
		if len(components) == 0 {
			continue
		}
		var entrySum float64
		for _, c := range components {
			entrySum += c
		}
		sum += entrySum / float64(len(components))
		count++
	}
	if count == 0 {
		return modelRetention
	}
	feedbackAvg := sum / count
	return 0.4*modelRetention + 0.6*feedbackAvg
}

func numeric(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// deriveHookWeights normalizes the 5 hook-faceoff components based on how
// well hook-first-biased jobs performed relative to the cohort mean
// (spec §4.11: "normalized across 5 components; each clamped to [0.05,0.7]").
func deriveHookWeights(outcomes []jobOutcome) map[string]float64 {
	mean := meanOutcome(outcomes)
	hookFirstLift := strategyMean(outcomes, retry.StrategyHookFirst) - mean

	weights := map[string]float64{
		"score":    0.35 + 0.1*hookFirstLift,
		"audit":    0.25 + 0.05*hookFirstLift,
		"curiosity": 0.15,
		"duration": 0.15,
		"keyword":  0.10,
	}
	return normalizeClamped(weights, 0.05, 0.7)
}

func normalizeClamped(weights map[string]float64, lo, hi float64) map[string]float64 {
	for k, v := range weights {
		if v < lo {
			weights[k] = lo
		} else if v > hi {
			weights[k] = hi
		}
	}
	var total float64
	for _, v := range weights {
		total += v
	}
	if total == 0 {
		return weights
	}
	for k, v := range weights {
		weights[k] = v / total
	}
	return weights
}

// deriveStrategyBias computes mean-centered per-strategy bias points
// (spec §4.11: "Per-strategy bias in points ∈ [-12,12] from mean-centered
// outcomes").
func deriveStrategyBias(outcomes []jobOutcome) map[string]float64 {
	mean := meanOutcome(outcomes)
	bias := map[string]float64{}
	for _, strategy := range []string{retry.StrategyBaseline, retry.StrategyHookFirst, retry.StrategyEmotionFirst, retry.StrategyPacingFirst, retry.StrategyRescueMode} {
		strategyOutcomes := filterByStrategy(outcomes, strategy)
		if len(strategyOutcomes) == 0 {
			bias[strategy] = 0
			continue
		}
		delta := meanOutcome(strategyOutcomes) - mean
		bias[strategy] = clampFloat(delta*24, -12, 12)
	}
	return bias
}

func dominantStyle(outcomes []jobOutcome) string {
	counts := map[string]int{}
	for _, o := range outcomes {
		if o.Style != "" {
			counts[o.Style]++
		}
	}
	best, bestCount := "", 0
	for style, count := range counts {
		if count > bestCount {
			best, bestCount = style, count
		}
	}
	return best
}

func buildRationale(outcomes []jobOutcome) []string {
	var rationale []string
	mean := meanOutcome(outcomes)
	rationale = append(rationale, fmt.Sprintf("computed from %d prior jobs, mean outcome %.2f", len(outcomes), mean))
	for _, strategy := range []string{retry.StrategyHookFirst, retry.StrategyEmotionFirst, retry.StrategyPacingFirst} {
		strategyOutcomes := filterByStrategy(outcomes, strategy)
		if len(strategyOutcomes) == 0 {
			continue
		}
		delta := meanOutcome(strategyOutcomes) - mean
		if delta > 0.05 {
			rationale = append(rationale, fmt.Sprintf("%s has outperformed the cohort by %.2f, biased upward", strategy, delta))
		} else if delta < -0.05 {
			rationale = append(rationale, fmt.Sprintf("%s has underperformed the cohort by %.2f, biased downward", strategy, -delta))
		}
	}
	return rationale
}

func meanOutcome(outcomes []jobOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var sum float64
	for _, o := range outcomes {
		sum += o.Outcome
	}
	return sum / float64(len(outcomes))
}

func strategyMean(outcomes []jobOutcome, strategy string) float64 {
	filtered := filterByStrategy(outcomes, strategy)
	return meanOutcome(filtered)
}

func filterByStrategy(outcomes []jobOutcome, strategy string) []jobOutcome {
	var out []jobOutcome
	for _, o := range outcomes {
		if o.Strategy == strategy {
			out = append(out, o)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return clampFloat(v, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
