package model

// Segment is one timeline clip in an EditPlan, carrying per-segment render
// treatment (spec §3).
type Segment struct {
	Start           float64
	End             float64
	Speed           float64 // [0.25,4], default 1
	Zoom            float64 // [0,0.15]
	Brightness      float64 // [-0.45,0.45]
	AudioGain       float64 // [0.8,1.24]
	FaceFocusX      *float64
	FaceFocusY      *float64
	TransitionStyle string // jump|smooth
	SoundFxLevel    float64
	Emphasize       bool
}

// HookCandidate is a scored opening-window contender (spec §3, §4.6).
type HookCandidate struct {
	Start       float64
	Duration    float64 // [HOOK_MIN, HOOK_MAX]
	Score       float64
	AuditScore  float64
	AuditPassed bool
	Text        string
	Reason      string
	Synthetic   bool
}

// RequiredFixes captures which corrective levers the judge is asking the
// retry orchestrator to pull (spec §3, §4.7).
type RequiredFixes struct {
	StrongerHook       bool
	RaiseEmotion       bool
	ImprovePacing      bool
	IncreaseInterrupts bool
}

// RetentionJudgeReport is the output of the judge stage (spec §3, §4.7).
type RetentionJudgeReport struct {
	RetentionScore  float64 // 0-100
	HookStrength    float64
	PacingScore     float64
	ClarityScore    float64
	EmotionalPull   float64
	ContentFormat   string
	TargetPlatform  string
	StrategyProfile string
	WhyKeepWatching []string
	WhatIsGeneric   []string
	RequiredFixes   RequiredFixes
	AppliedThresholds map[string]float64
	GateMode        string // strict|adaptive
	Passed          bool
}

// Range is a half-open [Start,End) timeline interval.
type Range struct {
	Start float64
	End   float64
}

// EditPlanMeta holds derived bookkeeping about how a plan was assembled
// (spec §3: "derived metadata").
type EditPlanMeta struct {
	InterruptCount int
	BoredomRatio   float64
	ReorderMap     map[int]int // new index -> original index
}

// EditPlan is the full ordered recipe for the renderer (spec §3, §4.6).
type EditPlan struct {
	Hook             HookCandidate
	Segments         []Segment
	RemovedRanges    []Range
	CompressedRanges []Range
	Windows          []EngagementWindow
	Candidates       []HookCandidate
	Meta             EditPlanMeta
}
