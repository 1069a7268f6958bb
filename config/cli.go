package config

// Cli holds every environment/flag-driven knob for the engine, parsed via
// peterbourgon/ff in cmd/engine.
type Cli struct {
	PromPort int

	JobConcurrency            int
	JobQueueRecoveryIntervalMS int64
	StalePipelineMS            int64

	MaxRenderSegments            int
	LongFormRuntimeThresholdSecs int
	LongFormContextWindowSecs    int
	FilterComplexScriptThreshold int

	HookAnalyzeMaxSeconds  int
	AnalysisFrameFPS       int
	AnalysisFrameScaleWidth int
	DisableFaceDetection   bool
	DisableTextDensity     bool
	DisableEmotionModel    bool

	FFMPEGBin             string
	FFProbeBin            string
	FFMPEGFilterThreads   int
	FFMPEGPreset          string
	FFMPEGCRF             int
	FFMPEGAudioBitrate    string
	FFMPEGAudioSampleRate int

	HookCalibrationLookbackJobs int

	WhisperBin   string
	WhisperModel string
	WhisperArgs  string

	TextDensityModelBin string
	TesseractBin        string
	EnableTesseract     bool

	EmotionModelBin string

	WatermarkImagePath string

	PrimaryBucketURL   string
	SecondaryBucketURL string

	MetricsDBConnectionString string

	RedisAddr string

	CalibrationWeightsPath string

	ScratchDir string
}
