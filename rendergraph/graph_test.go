package rendergraph

import (
	"strings"
	"testing"

	"github.com/livepeer/retention-engine/model"
)

func TestBuildProducesConcatChain(t *testing.T) {
	segs := []model.Segment{
		{Start: 0, End: 4, Speed: 1},
		{Start: 10, End: 14, Speed: 1.2},
	}
	g, err := Build(Params{Segments: segs, TargetWidth: 1080, TargetHeight: 1920, FitMode: "cover"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(g.FilterComplex, "concat=n=2:v=1:a=0") {
		t.Errorf("expected a 2-way video concat, got: %s", g.FilterComplex)
	}
	if g.VideoOutLabel != "vconcat" || g.AudioOutLabel != "aconcat" {
		t.Errorf("unexpected output labels: %+v", g)
	}
	if g.UsesScriptFile {
		t.Error("small filter graph should not spill to a script file")
	}
}

func TestBuildUsesXfadeWhenEnabled(t *testing.T) {
	segs := []model.Segment{
		{Start: 0, End: 4, Speed: 1},
		{Start: 10, End: 14, Speed: 1},
	}
	g, err := Build(Params{Segments: segs, TargetWidth: 1080, TargetHeight: 1920, EnableXfade: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(g.FilterComplex, "xfade=") {
		t.Errorf("expected an xfade stage, got: %s", g.FilterComplex)
	}
	if !strings.Contains(g.FilterComplex, "acrossfade=") {
		t.Errorf("expected an acrossfade stage, got: %s", g.FilterComplex)
	}
}

func TestAtempoChainStaysWithinPerStageBounds(t *testing.T) {
	chain := atempoChain(3.0)
	if strings.Contains(chain, "atempo=3") {
		t.Errorf("expected atempo split into multiple stages, got: %s", chain)
	}
	if !strings.Contains(chain, "atempo=2.0") {
		t.Errorf("expected a 2.0 stage for a 3x speedup, got: %s", chain)
	}
}

func TestXfadeDurationUsesJumpCutForShortTransitions(t *testing.T) {
	a := model.Segment{Start: 0, End: 4, TransitionStyle: "jump"}
	b := model.Segment{Start: 4, End: 8}
	if d := xfadeDuration(a, b); d != 0.012 {
		t.Errorf("expected jump-cut duration 0.012, got %v", d)
	}
}

func TestBuildSpillsLargeGraphToScriptFile(t *testing.T) {
	segs := make([]model.Segment, 400)
	for i := range segs {
		segs[i] = model.Segment{Start: float64(i), End: float64(i + 1), Speed: 1, TransitionStyle: "crossfade"}
	}
	g, err := Build(Params{Segments: segs, TargetWidth: 1080, TargetHeight: 1920, EnableXfade: true, SubtitlePath: "captions.srt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.UsesScriptFile {
		t.Error("expected a large filter graph to spill to a script file")
	}
	if g.ScriptPath == "" {
		t.Error("expected a non-empty script path")
	}
}
