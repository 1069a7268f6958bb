package editplan

import (
	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/model"
)

// Silence is a detected low-energy range before padding is applied.
type Silence struct {
	Start float64
	End   float64
}

// TrimSilences drops silences shorter than SILENCE_MIN and pads the
// survivors by SILENCE_TRIM_PADDING_SECS on each side (spec §4.6).
func TrimSilences(silences []Silence, duration float64) []model.Range {
	var ranges []model.Range
	for _, s := range silences {
		if s.End-s.Start < config.SilenceMinSeconds {
			continue
		}
		start := s.Start + config.SilenceTrimPaddingSecs
		end := s.End - config.SilenceTrimPaddingSecs
		if end <= start {
			continue
		}
		if start < 0 {
			start = 0
		}
		if end > duration {
			end = duration
		}
		ranges = append(ranges, model.Range{Start: start, End: end})
	}
	return mergeRanges(ranges)
}
