package render

import (
	"context"
	"fmt"
	"math"

	"github.com/livepeer/retention-engine/config"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/rendergraph"
)

// VerticalClipPlan is one sub-range of the edit plan rendered as its own
// vertical output (spec §4.9: "up to MaxVerticalClips sub-ranges").
type VerticalClipPlan struct {
	Segments     []model.Segment
	SubtitlePath string
}

// SplitForVertical breaks a long edit plan's segments into up to
// config.MaxVerticalClips contiguous groups, each renderable as its own
// vertical clip (spec §4.9).
func SplitForVertical(segments []model.Segment, maxClips int) []VerticalClipPlan {
	if len(segments) == 0 {
		return nil
	}
	clipCount := maxClips
	if clipCount < 1 {
		clipCount = 1
	}
	if clipCount > len(segments) {
		clipCount = len(segments)
	}
	perClip := int(math.Ceil(float64(len(segments)) / float64(clipCount)))

	var plans []VerticalClipPlan
	for i := 0; i < len(segments); i += perClip {
		end := i + perClip
		if end > len(segments) {
			end = len(segments)
		}
		plans = append(plans, VerticalClipPlan{Segments: segments[i:end]})
	}
	return plans
}

// RunVertical renders each vertical clip independently at 1080x1920. For the
// stacked layout with webcam crop enabled it only switches the fit mode to
// cover; no webcam crop is composited above the main crop.
func (e *Executor) RunVertical(ctx context.Context, baseReq Request) ([]Result, error) {
	clips := SplitForVertical(baseReq.Plan.Segments, config.MaxVerticalClips)
	if len(clips) == 0 {
		return nil, xerrors.ErrNoRenderableSegments
	}

	results := make([]Result, 0, len(clips))
	for i, clip := range clips {
		clipReq := baseReq
		clipReq.Plan = model.EditPlan{Segments: clip.Segments, Hook: baseReq.Plan.Hook}
		clipReq.OutputPath = fmt.Sprintf("%s.clip%d.mp4", baseReq.OutputPath, i)
		clipReq.TargetWidth, clipReq.TargetHeight = 1080, 1920

		if baseReq.RenderConfig.VerticalLayout == model.VerticalLayoutStacked && baseReq.RenderConfig.WebcamCropEnabled {
			clipReq.RenderConfig.FitMode = "cover"
		}

		result, err := e.Run(ctx, clipReq)
		if err != nil {
			return results, fmt.Errorf("rendering vertical clip %d: %w", i, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

// stackedLayoutParams returns single-crop Params at half the target height
// with cover fit. It builds no webcam crop and no vstack composite, and
// nothing in this package calls it.
func stackedLayoutParams(segments []model.Segment, width, height int) rendergraph.Params {
	return rendergraph.Params{
		Segments:     segments,
		TargetWidth:  width,
		TargetHeight: height / 2,
		FitMode:      "cover",
	}
}
