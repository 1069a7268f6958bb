package editplan

import (
	"sort"

	"github.com/livepeer/retention-engine/model"
)

func mergeRanges(ranges []model.Range) []model.Range {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	merged := []model.Range{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func totalDuration(ranges []model.Range) float64 {
	var total float64
	for _, r := range ranges {
		total += r.End - r.Start
	}
	return total
}

func overlapsAny(r model.Range, others []model.Range) bool {
	for _, o := range others {
		if r.Start < o.End && r.End > o.Start {
			return true
		}
	}
	return false
}

// subtractRanges returns the complement of `removed` within [0,duration),
// i.e. the surviving timeline after cuts.
func subtractRanges(duration float64, removed []model.Range) []model.Range {
	merged := mergeRanges(removed)
	var kept []model.Range
	cursor := 0.0
	for _, r := range merged {
		if r.Start > cursor {
			kept = append(kept, model.Range{Start: cursor, End: r.Start})
		}
		if r.End > cursor {
			cursor = r.End
		}
	}
	if cursor < duration {
		kept = append(kept, model.Range{Start: cursor, End: duration})
	}
	return kept
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
