package render

import (
	"testing"

	"github.com/livepeer/retention-engine/model"
)

func TestSplitForVerticalRespectsMaxClips(t *testing.T) {
	segments := make([]model.Segment, 10)
	for i := range segments {
		segments[i] = model.Segment{Start: float64(i), End: float64(i + 1)}
	}
	clips := SplitForVertical(segments, 3)
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	total := 0
	for _, c := range clips {
		total += len(c.Segments)
	}
	if total != len(segments) {
		t.Errorf("expected all segments distributed across clips, got %d of %d", total, len(segments))
	}
}

func TestSplitForVerticalHandlesFewerSegmentsThanClips(t *testing.T) {
	segments := []model.Segment{{Start: 0, End: 1}}
	clips := SplitForVertical(segments, 3)
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip when only 1 segment exists, got %d", len(clips))
	}
}

func TestSplitForVerticalEmptyInput(t *testing.T) {
	if clips := SplitForVertical(nil, 3); clips != nil {
		t.Errorf("expected nil clips for empty segments, got %v", clips)
	}
}

func TestVerifyOutputRejectsMissingFile(t *testing.T) {
	if err := verifyOutput("/nonexistent/path/output.mp4"); err == nil {
		t.Error("expected an error for a missing output file")
	}
}

func TestVerifyOutputRejectsEmptyPath(t *testing.T) {
	if err := verifyOutput(""); err == nil {
		t.Error("expected an error for an empty output path")
	}
}

func TestNeedsPostProcessOnlyWhenSubtitlesRequested(t *testing.T) {
	if needsPostProcess(Request{}) {
		t.Error("expected no post-process pass without a subtitle path")
	}
	if !needsPostProcess(Request{SubtitlePath: "captions.srt"}) {
		t.Error("expected a post-process pass when a subtitle path is set")
	}
}

func TestAcceptConcatOutputRejectsMissingSource(t *testing.T) {
	e := &Executor{}
	if _, err := e.acceptConcatOutput(&Result{OutputPath: "/nonexistent/concat.mp4"}, "/nonexistent/final.mp4"); err == nil {
		t.Error("expected an error when the concat source file doesn't exist")
	}
}
