package engagement

import (
	"testing"

	"github.com/livepeer/retention-engine/model"
)

func TestBuildProducesOneWindowPerSecond(t *testing.T) {
	raw := &model.RawSignals{
		AudioRMSBySecond:    map[int]float64{0: 0.8, 1: 0.9, 2: 0.1},
		TextDensityBySecond: map[int]float64{},
		DurationSeconds:     3.7,
	}
	windows := Build(raw, nil)
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows (floor(3.7)), got %d", len(windows))
	}
	for _, w := range windows {
		if w.Score < 0 || w.Score > 1 {
			t.Errorf("score out of range: %v", w.Score)
		}
	}
}

func TestBuildDetectsEmotionalSpike(t *testing.T) {
	raw := &model.RawSignals{
		AudioRMSBySecond: map[int]float64{0: 0.1, 1: 0.1, 2: 0.1, 3: 0.1, 4: 0.99},
		DurationSeconds:  5,
	}
	windows := Build(raw, nil)
	if windows[4].EmotionalSpike != 1 {
		t.Errorf("expected emotional spike at outlier second, got %+v", windows[4])
	}
}

func TestBuildReturnsNilForZeroDuration(t *testing.T) {
	if Build(&model.RawSignals{DurationSeconds: 0}, nil) != nil {
		t.Error("expected nil windows for zero duration")
	}
}
