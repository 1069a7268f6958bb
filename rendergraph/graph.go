package rendergraph

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/model"
)

// Params bundles everything RenderGraph needs to emit a filter description
// (spec §4.9).
type Params struct {
	Segments          []model.Segment
	TargetWidth       int
	TargetHeight      int
	FitMode           string // cover|contain
	SubtitlePath      string
	SubtitlePreset    string
	WatermarkPath     string
	EnableXfade       bool
	AudioPolish       bool
	TargetLUFS        float64 // -13.4 to -14.6
}

// Graph is the synthesized filter_complex description plus the input/output
// stream labels the caller wires into the ffmpeg argv.
type Graph struct {
	FilterComplex  string
	VideoOutLabel  string
	AudioOutLabel  string
	UsesScriptFile bool
	ScriptPath     string
}

// Build assembles the full per-segment + concat + subtitle + watermark +
// audio-polish filter chain described in spec §4.9.
func Build(p Params) (Graph, error) {
	var parts []string
	var videoLabels, audioLabels []string

	for i, seg := range p.Segments {
		vLabel := fmt.Sprintf("v%d", i)
		aLabel := fmt.Sprintf("a%d", i)
		parts = append(parts, videoFilterChain(i, seg, p, vLabel))
		parts = append(parts, audioFilterChain(i, seg, aLabel))
		videoLabels = append(videoLabels, "["+vLabel+"]")
		audioLabels = append(audioLabels, "["+aLabel+"]")
	}

	videoOut, audioOut := "vconcat", "aconcat"
	if p.EnableXfade && len(p.Segments) > 1 {
		vChain, vOut := xfadeChain(videoLabels, p.Segments)
		aChain, aOut := acrossfadeChain(audioLabels, p.Segments)
		parts = append(parts, vChain, aChain)
		videoOut, audioOut = vOut, aOut
	} else {
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[%s]", strings.Join(videoLabels, ""), len(videoLabels), videoOut))
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[%s]", strings.Join(audioLabels, ""), len(audioLabels), audioOut))
	}

	finalVideo := videoOut
	if p.SubtitlePath != "" {
		subStage := SubtitleFilter(p.SubtitlePath, p.SubtitlePreset)
		parts = append(parts, fmt.Sprintf("[%s]%s[vsub]", finalVideo, subStage))
		finalVideo = "vsub"
	}
	if p.WatermarkPath != "" {
		parts = append(parts, fmt.Sprintf("[%s]movie=%s[wm];[%s][wm]overlay=W-w-20:H-h-20[vwm]", finalVideo, p.WatermarkPath, finalVideo))
		finalVideo = "vwm"
	}

	finalAudio := audioOut
	if p.AudioPolish {
		parts = append(parts, fmt.Sprintf("[%s]%s[apolish]", finalAudio, AudioPolishFilter(p.TargetLUFS)))
		finalAudio = "apolish"
	}

	description := strings.Join(parts, ";\n")
	graph := Graph{FilterComplex: description, VideoOutLabel: finalVideo, AudioOutLabel: finalAudio}

	if len(description) > config.FilterComplexScriptThreshold {
		path, err := writeScriptFile(description)
		if err != nil {
			return graph, err
		}
		graph.UsesScriptFile = true
		graph.ScriptPath = path
	}
	return graph, nil
}

func videoFilterChain(i int, seg model.Segment, p Params, label string) string {
	speed := seg.Speed
	if speed == 0 {
		speed = 1
	}
	chain := fmt.Sprintf("[0:v]trim=start=%.3f:end=%.3f,setpts=(PTS-STARTPTS)/%.4f", seg.Start, seg.End, speed)

	if seg.Zoom > 0 {
		cx, cy := 0.5, 0.5
		if seg.FaceFocusX != nil {
			cx = *seg.FaceFocusX
		}
		if seg.FaceFocusY != nil {
			cy = *seg.FaceFocusY
		}
		zoomScale := 1 + seg.Zoom
		chain += fmt.Sprintf(",scale=iw*%.4f:ih*%.4f,crop=iw/%.4f:ih/%.4f:(iw-iw/%.4f)*%.3f:(ih-ih/%.4f)*%.3f",
			zoomScale, zoomScale, zoomScale, zoomScale, zoomScale, cx, zoomScale, cy)
	}
	if seg.Brightness != 0 {
		chain += fmt.Sprintf(",eq=brightness=%.3f", seg.Brightness)
	}

	fitFilter := "cover"
	if p.FitMode != "" {
		fitFilter = p.FitMode
	}
	chain += fitFilterExpr(fitFilter, p.TargetWidth, p.TargetHeight)
	chain += ",format=yuv420p"
	chain += "[" + label + "]"
	return chain
}

func fitFilterExpr(mode string, w, h int) string {
	switch mode {
	case "contain":
		return fmt.Sprintf(",scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
	default: // cover
		return fmt.Sprintf(",scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", w, h, w, h)
	}
}

func audioFilterChain(i int, seg model.Segment, label string) string {
	speed := seg.Speed
	if speed == 0 {
		speed = 1
	}
	chain := fmt.Sprintf("[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS", seg.Start, seg.End)
	chain += atempoChain(speed)

	gain := seg.AudioGain
	if gain == 0 {
		gain = 1
	}
	chain += fmt.Sprintf(",volume=%.3f", gain)
	chain += ",afade=t=in:d=0.04,afade=t=out:d=0.04"
	chain += ",aresample=48000,aformat=channel_layouts=stereo"

	if seg.SoundFxLevel >= 0.16 {
		chain += fmt.Sprintf(",volume=%.3f", 1.0) // placeholder unity-gain stage; no sound-fx mix is applied anywhere in the graph
	}
	chain += "[" + label + "]"
	return chain
}

// atempoChain chains atempo stages to stay within [0.5,2.0] per stage, since
// ffmpeg's atempo filter rejects speeds outside that range (spec §4.9).
func atempoChain(speed float64) string {
	if speed == 1 {
		return ""
	}
	var stages []string
	remaining := speed
	for remaining > 2.0 {
		stages = append(stages, "atempo=2.0")
		remaining /= 2.0
	}
	for remaining < 0.5 {
		stages = append(stages, "atempo=0.5")
		remaining /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.4f", remaining))
	return "," + strings.Join(stages, ",")
}

func xfadeChain(videoLabels []string, segments []model.Segment) (string, string) {
	var parts []string
	cur := strings.Trim(videoLabels[0], "[]")
	var offset float64
	for i := 1; i < len(segments); i++ {
		dur := xfadeDuration(segments[i-1], segments[i])
		offset += (segments[i-1].End - segments[i-1].Start) - dur
		next := strings.Trim(videoLabels[i], "[]")
		outLabel := fmt.Sprintf("vx%d", i)
		parts = append(parts, fmt.Sprintf("[%s][%s]xfade=transition=fade:duration=%.4f:offset=%.4f[%s]", cur, next, dur, offset, outLabel))
		cur = outLabel
	}
	return strings.Join(parts, ";\n"), cur
}

func acrossfadeChain(audioLabels []string, segments []model.Segment) (string, string) {
	var parts []string
	cur := strings.Trim(audioLabels[0], "[]")
	for i := 1; i < len(segments); i++ {
		dur := xfadeDuration(segments[i-1], segments[i])
		next := strings.Trim(audioLabels[i], "[]")
		outLabel := fmt.Sprintf("ax%d", i)
		parts = append(parts, fmt.Sprintf("[%s][%s]acrossfade=d=%.4f:c1=tri:c2=tri[%s]", cur, next, dur, outLabel))
		cur = outLabel
	}
	return strings.Join(parts, ";\n"), cur
}

// xfadeDuration picks min(0.08s, halves of neighbors), or the shorter
// jump-cut fade (0.012s) when either neighbor uses a jump transition
// (spec §4.9).
func xfadeDuration(a, b model.Segment) float64 {
	if a.TransitionStyle == "jump" || b.TransitionStyle == "jump" {
		return 0.012
	}
	halfA := (a.End - a.Start) / 2
	halfB := (b.End - b.Start) / 2
	return math.Min(0.08, math.Min(halfA, halfB))
}

// SubtitleFilter builds the subtitle burn-in filter expression for a given
// preset, exported so a post-processing pass can apply it outside the
// segment-trim graph (spec §4.9 step 3).
func SubtitleFilter(path, preset string) string {
	if preset == "animated" {
		return fmt.Sprintf("ass=%s", strings.Replace(path, ".srt", ".ass", 1))
	}
	style := ""
	switch preset {
	case "bold":
		style = ":force_style='Fontsize=28,Bold=1'"
	case "minimal":
		style = ":force_style='Fontsize=20'"
	}
	return fmt.Sprintf("subtitles=%s%s", path, style)
}

// AudioPolishFilter assembles the optional mastering stage: highpass/lowpass
// + tonal EQ + dynaudnorm + loudness normalization to the platform target +
// limiter, exported so a standalone post-processing pass can reapply it over
// an already-concatenated file (spec §4.9 step 3).
func AudioPolishFilter(targetLUFS float64) string {
	if targetLUFS == 0 {
		targetLUFS = -14.0
	}
	stages := []string{
		"highpass=f=80",
		"lowpass=f=15000",
		"equalizer=f=3000:t=q:w=1:g=2",
		"dynaudnorm=f=150:g=15",
		fmt.Sprintf("loudnorm=I=%.1f:TP=-1.5:LRA=11", targetLUFS),
		"alimiter=limit=0.98",
	}
	return strings.Join(stages, ",")
}

// writeScriptFile persists a filter description over FilterComplexScriptThreshold
// characters to a temp file, to be passed via -filter_complex_script
// (spec §4.9).
func writeScriptFile(description string) (string, error) {
	f, err := os.CreateTemp("", "rendergraph-*.filter")
	if err != nil {
		return "", fmt.Errorf("creating filter script file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(description); err != nil {
		return "", fmt.Errorf("writing filter script file: %w", err)
	}
	return f.Name(), nil
}
