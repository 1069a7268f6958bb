package editplan

import (
	"math"

	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/style"
)

// SegmentTimeline subdivides the surviving timeline into segments whose
// lengths target the pacing profile's early/middle/late bands, honoring
// PACE_MIN..PACE_MAX, and assigns per-segment speed based on local
// engagement (spec §4.6). The band targets are used as-is: the profile's
// Jitter is not applied.
func SegmentTimeline(survivors []model.Range, windows []model.EngagementWindow, pacing style.PacingProfile) []model.Segment {
	total := totalDuration(survivors)
	if total <= 0 {
		return nil
	}

	var segments []model.Segment
	var elapsed float64
	for _, span := range survivors {
		cursor := span.Start
		for cursor < span.End {
			progress := elapsed / total
			target := targetLength(progress, pacing)
			length := math.Min(target, span.End-cursor)
			if length < config.PaceMinSeconds && span.End-cursor >= config.PaceMinSeconds {
				length = config.PaceMinSeconds
			}
			length = math.Min(math.Max(length, 0.5), config.PaceMaxSeconds)
			end := math.Min(cursor+length, span.End)

			seg := model.Segment{
				Start:           cursor,
				End:             end,
				Speed:           localSpeed(windows, cursor, end, pacing, progress),
				TransitionStyle: "smooth",
				AudioGain:       1.0,
			}
			segments = append(segments, seg)

			elapsed += end - cursor
			cursor = end
		}
	}
	return segments
}

func targetLength(progress float64, pacing style.PacingProfile) float64 {
	var base float64
	switch {
	case progress < 0.2:
		base = pacing.EarlyTargetSeconds
	case progress > 0.8:
		base = pacing.LateTargetSeconds
	default:
		base = pacing.MiddleTargetSeconds
	}
	return base
}

// localSpeed derives a per-segment speed multiplier in [1, pacing.SpeedCap]
// from local engagement: slow down near scene spikes/high vocal excitement,
// never speed openings/closings beyond a modest cap (spec §4.6).
func localSpeed(windows []model.EngagementWindow, start, end float64, pacing style.PacingProfile, progress float64) float64 {
	localWindows := windowsInRange(windows, start, end)
	if len(localWindows) == 0 {
		return 1.0
	}
	var sceneSum, vocalSum, engagementSum float64
	for _, w := range localWindows {
		sceneSum += w.SceneChangeRate
		vocalSum += w.VocalExcitement
		engagementSum += w.Score
	}
	n := float64(len(localWindows))
	avgScene, avgVocal, avgEngagement := sceneSum/n, vocalSum/n, engagementSum/n

	if avgScene > 0.5 || avgVocal > 0.6 {
		return 1.0 // slow down (no speed-up) near scene spikes / excited speech
	}

	cap := pacing.SpeedCap
	if progress < 0.08 || progress > 0.92 {
		cap = math.Min(cap, 1.15) // modest cap on openings/closings
	}

	// low engagement -> speed up toward the cap, high engagement -> stay near 1
	speed := 1.0 + (1-avgEngagement)*(cap-1.0)
	return math.Min(cap, math.Max(1.0, speed))
}

func windowsInRange(windows []model.EngagementWindow, start, end float64) []model.EngagementWindow {
	var out []model.EngagementWindow
	for i := int(math.Floor(start)); i < len(windows) && float64(i) < end; i++ {
		if i < 0 {
			continue
		}
		out = append(out, windows[i])
	}
	return out
}
