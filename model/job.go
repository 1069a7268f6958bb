package model

import "time"

// Status is the Job lifecycle enum (spec §3).
type Status string

const (
	StatusQueued     Status = "queued"
	StatusUploading  Status = "uploading"
	StatusAnalyzing  Status = "analyzing"
	StatusHooking    Status = "hooking"
	StatusCutting    Status = "cutting"
	StatusPacing     Status = "pacing"
	StatusStory      Status = "story"
	StatusSubtitling Status = "subtitling"
	StatusAudio      Status = "audio"
	StatusRetention  Status = "retention"
	StatusRendering  Status = "rendering"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StatusTransitions is the fixed adjacency table JobStore.update validates
// every status change against (spec §4.1, §8.3).
var StatusTransitions = map[Status][]Status{
	StatusQueued:     {StatusUploading, StatusAnalyzing, StatusFailed, StatusQueued},
	StatusUploading:  {StatusAnalyzing, StatusQueued, StatusFailed},
	StatusAnalyzing:  {StatusHooking, StatusFailed, StatusQueued},
	StatusHooking:    {StatusCutting, StatusFailed, StatusQueued},
	StatusCutting:    {StatusPacing, StatusFailed, StatusQueued},
	StatusPacing:     {StatusStory, StatusFailed, StatusQueued},
	StatusStory:      {StatusSubtitling, StatusAudio, StatusRetention, StatusFailed, StatusQueued},
	StatusSubtitling: {StatusAudio, StatusRetention, StatusFailed, StatusQueued},
	StatusAudio:      {StatusRetention, StatusFailed, StatusQueued},
	StatusRetention:  {StatusRendering, StatusFailed, StatusQueued},
	StatusRendering:  {StatusCompleted, StatusFailed, StatusQueued},
	StatusCompleted:  {},
	StatusFailed:     {StatusQueued},
}

// CanTransition reports whether from->to is a legal status transition.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := StatusTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// RecoverableStatuses are the statuses the recovery sweep scans for.
var RecoverableStatuses = []Status{
	StatusQueued, StatusUploading, StatusAnalyzing, StatusHooking, StatusCutting,
	StatusPacing, StatusStory, StatusSubtitling, StatusAudio, StatusRetention, StatusRendering,
}

// ImmediateRecoverableStatuses are jobs that never made it past upload; the
// recovery sweep re-enqueues these as soon as they have made any progress,
// regardless of how recently they were touched (spec §4.2 rule 1).
var ImmediateRecoverableStatuses = []Status{StatusQueued, StatusUploading}

// InProgressRecoverableStatuses are jobs already past upload when a worker
// died; the recovery sweep only reclaims these once they've gone stale, and
// resets them to queued first (spec §4.2 rule 2).
var InProgressRecoverableStatuses = []Status{
	StatusAnalyzing, StatusHooking, StatusCutting, StatusPacing, StatusStory,
	StatusSubtitling, StatusAudio, StatusRetention, StatusRendering,
}

// HorizontalModeOutput is a tagged union: quality preset, "source", or an
// explicit {w,h} pair (spec §9 design notes).
type HorizontalModeOutput struct {
	Kind    string // "quality" | "source" | "dimensions"
	Quality string
	Width   int
	Height  int
}

type VerticalLayoutMode string

const (
	VerticalLayoutStacked VerticalLayoutMode = "stacked"
	VerticalLayoutSingle  VerticalLayoutMode = "single"
)

type RenderMode string

const (
	RenderModeHorizontal RenderMode = "horizontal"
	RenderModeVertical   RenderMode = "vertical"
)

// RenderConfig is the user-facing shape choice for a job (spec GLOSSARY).
type RenderConfig struct {
	Mode              RenderMode            `json:"mode" yaml:"mode"`
	Horizontal        HorizontalModeOutput  `json:"horizontal,omitempty" yaml:"horizontal,omitempty"`
	FitMode           string                `json:"fitMode,omitempty" yaml:"fitMode,omitempty"` // cover|contain
	VerticalLayout    VerticalLayoutMode    `json:"verticalLayout,omitempty" yaml:"verticalLayout,omitempty"`
	VerticalClipCount int                   `json:"verticalClipCount,omitempty" yaml:"verticalClipCount,omitempty"`
	WebcamCropEnabled bool                  `json:"webcamCropEnabled,omitempty" yaml:"webcamCropEnabled,omitempty"`
	AutoCaptions      bool                  `json:"autoCaptions" yaml:"autoCaptions"`
	SubtitlePreset    string                `json:"subtitlePreset,omitempty" yaml:"subtitlePreset,omitempty"`
	AggressionLevel   string                `json:"aggressionLevel,omitempty" yaml:"aggressionLevel,omitempty"` // low|medium|high|viral
	TargetPlatform    string                `json:"targetPlatform,omitempty" yaml:"targetPlatform,omitempty"`
	GateMode          string                `json:"gateMode,omitempty" yaml:"gateMode,omitempty"` // strict|adaptive
	WatermarkEnabled  bool                  `json:"watermarkEnabled,omitempty" yaml:"watermarkEnabled,omitempty"`
}

// Job identifies a user's video task (spec §3).
type Job struct {
	ID                       string
	OwnerUserID              string
	Status                   Status
	Progress                 int // 0-100
	InputObjectKey           string
	OutputObjectKey          string
	VerticalOutputObjectKeys []string
	InputDurationSeconds     float64
	RequestedQuality         string
	FinalQuality             string
	WatermarkApplied         bool
	RetentionScore           float64
	OptimizationNotes        []string
	RenderSettings           RenderConfig
	Analysis                 map[string]interface{}
	PriorityLevel            int // 1 = priority, 2 = normal
	Error                    string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// JobSummary is the reduced shape returned by listRecentCompleted, used for
// calibration (spec §4.1).
type JobSummary struct {
	ID             string
	UserID         string
	RetentionScore float64
	Strategy       string
	ContentFormat  string
	CompletedAt    time.Time
	Analysis       map[string]interface{}
}
