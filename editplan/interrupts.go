package editplan

import (
	"math"

	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/style"
)

// InjectPatternInterrupts marks zoom/brightness/emphasize on segments spaced
// every [patternIntervalMin, patternIntervalMax] seconds along the edited
// runtime, guaranteeing at least ceil(runtime/targetInterval) interrupts
// (spec §4.6).
func InjectPatternInterrupts(segments []model.Segment, pacing style.PacingProfile) int {
	if len(segments) == 0 {
		return 0
	}
	runtime := segments[len(segments)-1].End - segments[0].Start
	targetInterval := (pacing.PatternIntervalMin + pacing.PatternIntervalMax) / 2
	minCount := int(math.Ceil(runtime / targetInterval))

	var nextMark float64
	count := 0
	for i := range segments {
		if segments[i].Start >= nextMark {
			applyInterrupt(&segments[i], count)
			count++
			nextMark = segments[i].Start + targetInterval
		}
	}

	// guarantee the minimum count by sweeping again at tighter spacing if we
	// fell short (e.g. segments were longer than the target interval).
	if count < minCount && len(segments) > 0 {
		step := len(segments) / minCount
		if step < 1 {
			step = 1
		}
		for i := 0; i < len(segments) && count < minCount; i += step {
			if !segments[i].Emphasize {
				applyInterrupt(&segments[i], count)
				count++
			}
		}
	}
	return count
}

func applyInterrupt(seg *model.Segment, index int) {
	seg.Emphasize = true
	if seg.Zoom == 0 {
		seg.Zoom = 0.06
	}
	if index%2 == 0 {
		seg.Brightness += 0.05
	} else {
		seg.Brightness -= 0.03
	}
}
