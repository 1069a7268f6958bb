package engagement

import (
	"math"

	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/transcript"
)

// fusion weights from spec §4.4.
const (
	wAudioEnergy      = 0.20
	wSpeechIntensity  = 0.20
	wMotionScore      = 0.14
	wFacePresence     = 0.12
	wEmotionIntensity = 0.15
	wTextDensity      = 0.09
	wVocalExcitement  = 0.06
	wVisualImpact     = 0.04

	introBiasSeconds = 20
	introBiasAmount  = 0.05
)

// Build fuses raw extractor output and transcript cues into a time-indexed
// slice of EngagementWindow covering [0, floor(durationSec)) (spec §4.4).
func Build(raw *model.RawSignals, cues []model.TranscriptCue) []model.EngagementWindow {
	if raw == nil {
		return nil
	}
	total := int(math.Floor(raw.DurationSeconds))
	if total <= 0 {
		return nil
	}

	cueIndex := transcript.CuesToSecondIndex(cues)
	sceneRate := sceneChangeRatePerSecond(raw.SceneChanges, total)
	faceBySecond := indexFaceSamples(raw.FaceSamples)

	windows := make([]model.EngagementWindow, total)
	for t := 0; t < total; t++ {
		w := model.EngagementWindow{Time: t}

		w.AudioEnergy = clamp01(raw.AudioRMSBySecond[t])
		w.SpeechIntensity = w.AudioEnergy // no dedicated VAD signal in this pack; speech proxied by audio energy
		w.TextDensity = clamp01(raw.TextDensityBySecond[t])
		w.SceneChangeRate = clamp01(sceneRate[t])

		if face, ok := faceBySecond[t]; ok {
			w.FacePresence = face.Presence
			w.FaceIntensity = face.Intensity
			cx, cy := face.CenterX, face.CenterY
			w.FaceCenterX = &cx
			w.FaceCenterY = &cy
		}

		w.EmotionIntensity = clamp01(emotionIntensityAt(raw.EmotionSamples, t))
		w.MotionScore = clamp01(0.5*w.SceneChangeRate + 0.5*w.AudioEnergy)
		w.VocalExcitement = clamp01(0.6*w.AudioEnergy + 0.4*w.EmotionIntensity)

		if cue, ok := cueIndex[t]; ok {
			w.KeywordIntensity = cue.KeywordIntensity
			w.CuriosityTrigger = cue.CuriosityTrigger
			w.FillerDensity = cue.FillerDensity
		}

		visualImpact := clamp01(0.5*w.SceneChangeRate + 0.5*w.FaceIntensity)

		score := wAudioEnergy*w.AudioEnergy +
			wSpeechIntensity*w.SpeechIntensity +
			wMotionScore*w.MotionScore +
			wFacePresence*w.FacePresence +
			wEmotionIntensity*w.EmotionIntensity +
			wTextDensity*w.TextDensity +
			wVocalExcitement*w.VocalExcitement +
			wVisualImpact*visualImpact

		if t < introBiasSeconds {
			score += introBiasAmount * (1 - float64(t)/introBiasSeconds)
		}
		score += 0.5 * w.CuriosityTrigger * (1 - w.FillerDensity)

		w.Score = clamp01(score)
		windows[t] = w
	}

	meanAudio, stdevAudio := meanStdev(extractAudioEnergy(windows))
	for t := range windows {
		if windows[t].AudioEnergy > meanAudio+1.5*stdevAudio {
			windows[t].EmotionalSpike = 1
		}
		windows[t].HookScore = clamp01(0.6*windows[t].Score + 0.25*windows[t].CuriosityTrigger + 0.15*windows[t].KeywordIntensity)
		windows[t].BoredomScore = clamp01(1 - windows[t].Score - 0.2*windows[t].FillerDensity)
	}
	return windows
}

func extractAudioEnergy(windows []model.EngagementWindow) []float64 {
	out := make([]float64, len(windows))
	for i, w := range windows {
		out[i] = w.AudioEnergy
	}
	return out
}

func meanStdev(values []float64) (mean, stdev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func sceneChangeRatePerSecond(changes []model.SceneChange, totalSeconds int) []float64 {
	rate := make([]float64, totalSeconds)
	for _, c := range changes {
		sec := int(c.Time)
		if sec >= 0 && sec < totalSeconds {
			rate[sec] += 1
		}
	}
	return rate
}

func indexFaceSamples(samples []model.FaceSample) map[int]model.FaceSample {
	out := make(map[int]model.FaceSample, len(samples))
	for _, s := range samples {
		out[s.Time] = s
	}
	return out
}

func emotionIntensityAt(samples []model.EmotionSample, second int) float64 {
	var best float64
	for _, s := range samples {
		if int(s.Time) == second && s.Intensity > best {
			best = s.Intensity
		}
	}
	return best
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
