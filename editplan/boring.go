package editplan

import (
	"math"

	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/model"
)

const (
	lowSpeechThreshold  = 0.18
	lowMotionThreshold  = 0.15
	lowFaceThreshold    = 0.1
	lowEnergyThreshold  = 0.2
	boringRunFillerGap  = 6.0 // split runs longer than this into chunks with a small gap
	boringRunChunkLimit = 6.0
)

// isBoringSecond evaluates the combined low-signal predicate for one window
// (spec §4.6: "low speech + low motion + face absent + low energy + not
// emotional").
func isBoringSecond(w model.EngagementWindow) bool {
	return w.SpeechIntensity < lowSpeechThreshold &&
		w.MotionScore < lowMotionThreshold &&
		w.FacePresence < lowFaceThreshold &&
		w.AudioEnergy < lowEnergyThreshold &&
		w.EmotionalSpike == 0
}

// ComputeBoringRemoval coalesces boring runs >= CUT_MIN into removal ranges,
// caps total removal at the aggression-dependent max cut ratio, breaks up
// overlong runs with a fixed length/gap pattern, and never cuts across
// continuity-protection ranges (spec §4.6).
func ComputeBoringRemoval(windows []model.EngagementWindow, protected []model.Range, aggressive bool) []model.Range {
	if len(windows) == 0 {
		return nil
	}

	var runs []model.Range
	runStart := -1.0
	for i, w := range windows {
		t := float64(i)
		if isBoringSecond(w) {
			if runStart < 0 {
				runStart = t
			}
		} else if runStart >= 0 {
			runs = append(runs, model.Range{Start: runStart, End: t})
			runStart = -1
		}
	}
	if runStart >= 0 {
		runs = append(runs, model.Range{Start: runStart, End: float64(len(windows))})
	}

	maxRatio := config.MaxCutRatio
	if aggressive {
		maxRatio = config.MaxCutRatioAggressive
	}
	totalSeconds := float64(len(windows))
	maxRemovable := totalSeconds * maxRatio

	var removal []model.Range
	var removed float64
	for _, run := range runs {
		if run.End-run.Start < config.CutMinSeconds {
			continue
		}
		for _, chunk := range splitLongRun(run) {
			if overlapsAny(chunk, protected) {
				continue
			}
			remaining := maxRemovable - removed
			if remaining <= 0 {
				break
			}
			length := chunk.End - chunk.Start
			if length > remaining {
				chunk.End = chunk.Start + remaining
				length = remaining
			}
			if length < config.CutMinSeconds {
				continue
			}
			removal = append(removal, chunk)
			removed += length
		}
	}
	return mergeRanges(removal)
}

// splitLongRun breaks a run longer than boringRunFillerGap into chunks of at
// most boringRunChunkLimit seconds, leaving a small gap between them so the
// cut doesn't feel like a single jarring jump (spec §4.6: "break up long
// runs using a fixed length/gap pattern").
func splitLongRun(run model.Range) []model.Range {
	length := run.End - run.Start
	if length <= boringRunFillerGap {
		return []model.Range{run}
	}
	var chunks []model.Range
	cursor := run.Start
	for cursor < run.End {
		end := math.Min(cursor+boringRunChunkLimit, run.End)
		chunks = append(chunks, model.Range{Start: cursor, End: end})
		cursor = end + 0.5 // small protected gap between chunks
	}
	return chunks
}
