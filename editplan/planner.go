package editplan

import (
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/style"
)

// Input bundles everything the planner needs to build a plan (spec §4.6).
type Input struct {
	Windows         []model.EngagementWindow
	Cues            []model.TranscriptCue
	Silences        []Silence
	Duration        float64
	StyleProfile    style.ContentStyleProfile
	NicheProfile    style.VideoNicheProfile
	Pacing          style.PacingProfile
	Aggressive      bool
	ContentFormat   string
	LongForm        bool
	PreferredHook   *model.HookCandidate
	FaceoffWeights  HookFaceoffWeights
	SnapTolerance   float64
}

// Build runs the full edit-planning algorithm end to end, in the order laid
// out by spec §4.6: silence trim -> boring removal -> pacing segmentation ->
// hook search -> rhythm/beat alignment -> pattern interrupts -> ending
// spike -> story reorder.
func Build(in Input) model.EditPlan {
	silenceRanges := TrimSilences(in.Silences, in.Duration)

	protected := continuityProtectedRanges(in.Windows, in.Cues)
	boringRanges := ComputeBoringRemoval(in.Windows, protected, in.Aggressive)

	removed := mergeRanges(append(append([]model.Range{}, silenceRanges...), boringRanges...))
	survivors := subtractRanges(in.Duration, removed)

	segments := SegmentTimeline(survivors, in.Windows, in.Pacing)

	candidates := SearchHookCandidates(in.Windows, in.Cues, in.Duration)
	hook := ChooseHook(candidates, in.FaceoffWeights)
	if in.PreferredHook != nil && hookMatches(*in.PreferredHook, candidates) {
		hook = *in.PreferredHook
	}

	rhythmAnchors := DetectRhythmAnchors(in.Windows)
	tolerance := in.SnapTolerance
	if tolerance <= 0 {
		tolerance = 1.5
	}
	segments = SnapToAnchors(segments, rhythmAnchors, tolerance)

	interruptCount := InjectPatternInterrupts(segments, in.Pacing)

	segments = AppendEndingSpike(segments, in.Windows)

	segments, reorderMap := ReorderForStory(segments, in.Windows, in.ContentFormat, in.LongForm)

	boredomRatio := 0.0
	if in.Duration > 0 {
		boredomRatio = totalDuration(boringRanges) / in.Duration
	}

	return model.EditPlan{
		Hook:             hook,
		Segments:         segments,
		RemovedRanges:    boringRanges,
		CompressedRanges: silenceRanges,
		Windows:          in.Windows,
		Candidates:       candidates,
		Meta: model.EditPlanMeta{
			InterruptCount: interruptCount,
			BoredomRatio:   boredomRatio,
			ReorderMap:     reorderMap,
		},
	}
}

// continuityProtectedRanges builds the "never cut across" anchor set: scene
// anchors, speech anchors, and emotional anchors (spec §4.6).
func continuityProtectedRanges(windows []model.EngagementWindow, cues []model.TranscriptCue) []model.Range {
	var protected []model.Range
	for i, w := range windows {
		if w.SceneChangeRate > 0.6 || w.EmotionalSpike == 1 {
			t := float64(i)
			protected = append(protected, model.Range{Start: t - 0.5, End: t + 0.5})
		}
	}
	for _, c := range cues {
		if c.End-c.Start > 0 {
			protected = append(protected, model.Range{Start: c.Start, End: c.End})
		}
	}
	return mergeRanges(protected)
}

func hookMatches(preferred model.HookCandidate, candidates []model.HookCandidate) bool {
	for _, c := range candidates {
		if c.Start == preferred.Start && c.Duration == preferred.Duration {
			return true
		}
	}
	return false
}
