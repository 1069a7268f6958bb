package model

import "time"

// StepStatus is the per-step lifecycle enum (spec §3).
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepName enumerates the fixed pipeline steps (spec §2, §3).
type StepName string

const (
	StepTranscribe          StepName = "TRANSCRIBE"
	StepFrameAnalysis        StepName = "FRAME_ANALYSIS"
	StepBestMomentScoring    StepName = "BEST_MOMENT_SCORING"
	StepHookSelectAndAudit   StepName = "HOOK_SELECT_AND_AUDIT"
	StepTimelineReorder      StepName = "TIMELINE_REORDER"
	StepPacingAndInterrupts  StepName = "PACING_AND_INTERRUPTS"
	StepStoryQualityGate     StepName = "STORY_QUALITY_GATE"
	StepRenderFinal          StepName = "RENDER_FINAL"
	StepRetentionScore       StepName = "RETENTION_SCORE"
)

// StepOrder is the fixed execution order of the pipeline state machine
// (spec §2's control-flow arrow chain).
var StepOrder = []StepName{
	StepTranscribe,
	StepFrameAnalysis,
	StepBestMomentScoring,
	StepHookSelectAndAudit,
	StepTimelineReorder,
	StepPacingAndInterrupts,
	StepStoryQualityGate,
	StepRenderFinal,
	StepRetentionScore,
}

// legacyStepAliases preserves back-compat reads of step state written under
// earlier step names (spec §3: "plus legacy aliases preserved for back-compat reads").
var legacyStepAliases = map[StepName]StepName{
	"TRANSCRIPTION":    StepTranscribe,
	"ANALYZE_FRAMES":   StepFrameAnalysis,
	"SCORE_MOMENTS":    StepBestMomentScoring,
	"SELECT_HOOK":      StepHookSelectAndAudit,
	"REORDER_TIMELINE": StepTimelineReorder,
	"PACING":           StepPacingAndInterrupts,
	"QUALITY_GATE":     StepStoryQualityGate,
	"RENDER":           StepRenderFinal,
	"SCORE_RETENTION":  StepRetentionScore,
}

// CanonicalStepName resolves a legacy alias to its current step name.
func CanonicalStepName(name StepName) StepName {
	if canon, ok := legacyStepAliases[name]; ok {
		return canon
	}
	return name
}

// PipelineStepState is one record per (Job, StepName) (spec §3).
type PipelineStepState struct {
	JobID       string
	Step        StepName
	Status      StepStatus
	Attempts    int
	Retries     int
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   string
	Meta        map[string]interface{}
}
