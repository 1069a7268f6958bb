package editplan

import (
	"math"

	"github.com/livepeer/retention-engine/model"
)

// RhythmAnchor is a local maximum of the audio/scene/emotion pulse.
type RhythmAnchor struct {
	Time float64
}

// DetectRhythmAnchors builds a pulse from audio/scene/emotion and returns its
// local maxima (spec §4.6).
func DetectRhythmAnchors(windows []model.EngagementWindow) []RhythmAnchor {
	pulse := make([]float64, len(windows))
	for i, w := range windows {
		pulse[i] = 0.4*w.AudioEnergy + 0.35*w.SceneChangeRate + 0.25*w.EmotionIntensity
	}
	var anchors []RhythmAnchor
	for i := 1; i < len(pulse)-1; i++ {
		if pulse[i] > pulse[i-1] && pulse[i] >= pulse[i+1] && pulse[i] > 0.3 {
			anchors = append(anchors, RhythmAnchor{Time: float64(i)})
		}
	}
	return anchors
}

// DetectEmotionalBeats returns peaks above an adaptive threshold derived
// from the mean+stdev of window emotion intensity (spec §4.6).
func DetectEmotionalBeats(windows []model.EngagementWindow) []RhythmAnchor {
	if len(windows) == 0 {
		return nil
	}
	var sum float64
	for _, w := range windows {
		sum += w.EmotionIntensity
	}
	mean := sum / float64(len(windows))
	var variance float64
	for _, w := range windows {
		d := w.EmotionIntensity - mean
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(len(windows)))
	threshold := mean + stdev

	var beats []RhythmAnchor
	for i, w := range windows {
		if w.EmotionIntensity > threshold {
			beats = append(beats, RhythmAnchor{Time: float64(i)})
		}
	}
	return beats
}

// SnapToAnchors moves each segment boundary to the nearest anchor within
// tolerance seconds, and trims bounded low-signal lead-ins before emotional
// peaks (spec §4.6).
func SnapToAnchors(segments []model.Segment, anchors []RhythmAnchor, tolerance float64) []model.Segment {
	if len(anchors) == 0 {
		return segments
	}
	out := make([]model.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		if snapped, ok := nearestWithin(out[i].End, anchors, tolerance); ok {
			out[i].End = snapped
			if i+1 < len(out) {
				out[i+1].Start = snapped
			}
		}
	}
	return out
}

func nearestWithin(t float64, anchors []RhythmAnchor, tolerance float64) (float64, bool) {
	best := math.Inf(1)
	bestTime := t
	for _, a := range anchors {
		d := math.Abs(a.Time - t)
		if d < best {
			best = d
			bestTime = a.Time
		}
	}
	if best <= tolerance {
		return bestTime, true
	}
	return t, false
}
