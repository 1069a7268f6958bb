package editplan

import (
	"math"

	"github.com/livepeer/retention-engine/model"
)

// AppendEndingSpike appends a truncated copy of the highest-scoring pre-tail
// segment (<=5s) as the closer when the final 5s average hook-score falls
// below 0.95x the overall average (spec §4.6).
func AppendEndingSpike(segments []model.Segment, windows []model.EngagementWindow) []model.Segment {
	if len(segments) == 0 || len(windows) == 0 {
		return segments
	}

	overallAvg := averageHookScore(windows, 0, float64(len(windows)))
	tailStart := math.Max(0, float64(len(windows))-5)
	tailAvg := averageHookScore(windows, tailStart, float64(len(windows)))
	if tailAvg >= 0.95*overallAvg {
		return segments
	}

	bestIdx := -1
	bestScore := -1.0
	for i, seg := range segments[:len(segments)-1] {
		score := averageHookScore(windows, seg.Start, seg.End)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return segments
	}

	closer := segments[bestIdx]
	if closer.End-closer.Start > 5 {
		closer.Start = closer.End - 5
	}
	closer.TransitionStyle = "jump"
	return append(segments, closer)
}

func averageHookScore(windows []model.EngagementWindow, start, end float64) float64 {
	local := windowsInRange(windows, start, end)
	if len(local) == 0 {
		return 0
	}
	var sum float64
	for _, w := range local {
		sum += w.HookScore
	}
	return sum / float64(len(local))
}

// ReorderForStory lifts one strong mid-video beat to index 1 and moves one
// strong late beat to the tail. Only the tiktok_short content format with at
// least 4 segments is reordered; every other format, and long-form, is
// returned in order (spec §4.6).
func ReorderForStory(segments []model.Segment, windows []model.EngagementWindow, contentFormat string, longForm bool) ([]model.Segment, map[int]int) {
	identity := identityReorderMap(len(segments))
	if longForm || contentFormat != "tiktok_short" || len(segments) < 4 {
		return segments, identity
	}

	midIdx := bestScoringIndex(segments, windows, len(segments)/4, 3*len(segments)/4)
	lateIdx := bestScoringIndex(segments, windows, 3*len(segments)/4, len(segments))
	if midIdx < 0 || lateIdx < 0 || midIdx == lateIdx {
		return segments, identity
	}

	reordered := make([]model.Segment, 0, len(segments))
	reorderMap := map[int]int{}

	insertAt := 1
	reordered = append(reordered, segments[0])
	reorderMap[0] = 0
	reordered = append(reordered, segments[midIdx])
	reorderMap[insertAt] = midIdx

	for i, seg := range segments {
		if i == 0 || i == midIdx || i == lateIdx {
			continue
		}
		reorderMap[len(reordered)] = i
		reordered = append(reordered, seg)
	}
	reorderMap[len(reordered)] = lateIdx
	reordered = append(reordered, segments[lateIdx])

	return reordered, reorderMap
}

func identityReorderMap(n int) map[int]int {
	m := make(map[int]int, n)
	for i := 0; i < n; i++ {
		m[i] = i
	}
	return m
}

func bestScoringIndex(segments []model.Segment, windows []model.EngagementWindow, from, to int) int {
	best := -1
	bestScore := -1.0
	for i := from; i < to && i < len(segments); i++ {
		score := averageHookScore(windows, segments[i].Start, segments[i].End)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}
