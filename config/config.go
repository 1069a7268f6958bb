package config

import "time"

var Version string

// Used so that we can generate fixed timestamps in tests
var Clock TimestampGenerator = RealTimestampGenerator{}

// Render / segment limits
const (
	MaxRenderSegments               = 180
	LongFormRuntimeThresholdSeconds = 95
	LongFormContextWindowSeconds    = 18.0
	LongFormMinContextSeconds       = 2.2
	FilterComplexScriptThreshold    = 16000
	MaxVerticalClips                = 3
)

// Analysis / signal-extraction limits
const (
	HookAnalyzeMaxSeconds    = 1800
	AnalysisFrameFPS         = 2
	AnalysisFrameScaleWidth  = 360
	HookMinSeconds           = 5
	HookMaxSeconds           = 10
	SilenceMinSeconds        = 0.8
	SilenceTrimPaddingSecs   = 0.12
	CutMinSeconds            = 3.0
	MaxCutRatio              = 0.68
	MaxCutRatioAggressive    = 0.74
	PaceMinSeconds           = 1.6
	PaceMaxSeconds           = 9.0
	MaxQualityGateRetries    = 3 // + 1 baseline attempt = 4
)

// Hook waiting
var (
	HookSelectionWaitMS              int64 = 8000
	HookSelectionPollMS              int64 = 400
	HookSelectionMatchStartToleranceSec           = 0.75
	HookSelectionMatchDurationToleranceSec        = 0.75
	HookCandidateTopK                       = 5
)

// Encoder / filter-thread defaults, overridden via config.Cli
var (
	FFMPEGFilterThreads   = 1
	FFMPEGPreset          = "veryfast"
	FFMPEGCRF             = 21
	FFMPEGAudioBitrate    = "128k"
	FFMPEGAudioSampleRate = 48000
)

// Scheduler defaults
var (
	JobQueueRecoveryInterval = 30 * time.Second
	StalePipelineThreshold   = 90 * time.Minute
	SlidingWindowSize        = 25
	DefaultPipelineETASecs   = 210.0
	MinPipelineETASecs       = 20.0
	MaxPipelineETASecs       = 10800.0
	RecoverySweepLimit       = 200
)

// FFMPEGRetryDelay is the backoff delay between transient media-tool
// invocation retries (sidecar hiccups, not content errors).
var FFMPEGRetryDelay = 500 * time.Millisecond

var HookCalibrationLookbackJobs = 24

// Disable flags for optional analysis sidecars
var (
	DisableFaceDetection = false
	DisableTextDensity   = false
	DisableEmotionModel  = false
)

// External sidecar binaries
var (
	WhisperBin  = "whisper"
	WhisperModel = "base"
	WhisperArgs  = ""

	TextDensityModelBin string
	TesseractBin        = "tesseract"
	EnableTesseract     = false

	EmotionModelBin string
)

var WatermarkImagePath string
