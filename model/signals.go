package model

// EngagementWindow is one second of fused signal scores (spec §3).
type EngagementWindow struct {
	Time             int // second index
	AudioEnergy      float64
	SpeechIntensity  float64
	MotionScore      float64
	FacePresence     float64
	FaceIntensity    float64
	FaceCenterX      *float64
	FaceCenterY      *float64
	TextDensity      float64
	SceneChangeRate  float64
	EmotionalSpike   int // 0 or 1
	VocalExcitement  float64
	EmotionIntensity float64
	AudioVariance    float64
	KeywordIntensity float64
	CuriosityTrigger float64
	FillerDensity    float64
	BoredomScore     float64
	HookScore        float64
	Score            float64 // fused
}

// TranscriptCue is a parsed subtitle cue with derived scores (spec §3).
type TranscriptCue struct {
	Start            float64
	End              float64
	Text             string
	KeywordIntensity float64
	CuriosityTrigger float64
	FillerDensity    float64
}

// SceneChange is a detected scene-cut timestamp from the scene-change extractor.
type SceneChange struct {
	Time float64
}

// FaceSample is a per-second face-presence observation.
type FaceSample struct {
	Time      int
	Presence  float64
	Intensity float64
	CenterX   float64
	CenterY   float64
}

// RawSignals is the best-effort output of SignalExtractors before fusion.
type RawSignals struct {
	AudioRMSBySecond   map[int]float64
	SceneChanges       []SceneChange
	FaceSamples        []FaceSample
	TextDensityBySecond map[int]float64
	EmotionSamples     []EmotionSample
	DurationSeconds    float64
}

// EmotionSample is one {time, intensity} reading from the emotion sidecar.
type EmotionSample struct {
	Time      float64
	Intensity float64
}
