package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/livepeer/retention-engine/config"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/rendergraph"
	"github.com/livepeer/retention-engine/scheduler"
	"github.com/livepeer/retention-engine/subprocess"
)

// ChildRegistrar lets the executor register spawned ffmpeg processes so the
// scheduler can SIGKILL them on cancellation (spec §4.9).
type ChildRegistrar interface {
	RegisterChild(jobID string, pid int, cmd *exec.Cmd)
}

var _ ChildRegistrar = (*scheduler.Scheduler)(nil)

// Request bundles a single render attempt's inputs.
type Request struct {
	JobID         string
	InputPath     string
	OutputPath    string
	Plan          model.EditPlan
	RenderConfig  model.RenderConfig
	SubtitlePath  string
	WatermarkPath string
	TargetWidth   int
	TargetHeight  int
	TargetLUFS    float64
}

// Result carries the outcome of a render attempt, including diagnostics the
// Coordinator folds into Job.OptimizationNotes (spec §4.9).
type Result struct {
	OutputPath       string
	OptimizationNote string
	CapturedOutput   string
	FormattedCommand string
}

// Executor runs RenderGraph-produced filter descriptions through ffmpeg,
// falling back through progressively safer strategies on failure
// (spec §4.9 RenderExecutor contract).
type Executor struct {
	FFMPEGBin  string
	Registrar  ChildRegistrar
	IsCanceled func(jobID string) bool
}

func New(ffmpegBin string, registrar ChildRegistrar, isCanceled func(jobID string) bool) *Executor {
	return &Executor{FFMPEGBin: ffmpegBin, Registrar: registrar, IsCanceled: isCanceled}
}

// Run attempts the full graph, then graph-variant fallbacks, then a
// segment-file fallback, then an emergency render, in that order, returning
// the first that produces a valid output file.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if e.IsCanceled != nil && e.IsCanceled(req.JobID) {
		return nil, xerrors.ErrQueueCanceledByUser
	}

	attempts := []struct {
		name string
		fn   func(context.Context, Request) (*Result, error)
	}{
		{"full_graph", e.runFullGraph},
		{"graph_no_overlays", e.runGraphWithoutOverlays},
		{"graph_no_xfade", e.runGraphWithoutXfade},
		{"segment_fallback", e.runSegmentFallback},
		{"emergency", e.runEmergency},
	}

	var lastErr error
	for _, attempt := range attempts {
		if e.IsCanceled != nil && e.IsCanceled(req.JobID) {
			return nil, xerrors.ErrQueueCanceledByUser
		}
		result, err := attempt.fn(ctx, req)
		if err == nil {
			if verifyErr := verifyOutput(result.OutputPath); verifyErr != nil {
				lastErr = verifyErr
				continue
			}
			if attempt.name != "full_graph" {
				result.OptimizationNote = fmt.Sprintf("render fell back to %s strategy", attempt.name)
				log.Log(req.JobID, "render fallback used", "strategy", attempt.name)
			}
			return result, nil
		}
		lastErr = err
		log.LogError(req.JobID, "render attempt failed, trying next fallback", err, "strategy", attempt.name)
	}
	return nil, xerrors.EditedRenderFailed(fmt.Sprintf("all render strategies exhausted: %v", lastErr))
}

func (e *Executor) runFullGraph(ctx context.Context, req Request) (*Result, error) {
	return e.runWithGraphParams(ctx, req, rendergraph.Params{
		Segments:       req.Plan.Segments,
		TargetWidth:    req.TargetWidth,
		TargetHeight:   req.TargetHeight,
		FitMode:        req.RenderConfig.FitMode,
		SubtitlePath:   req.SubtitlePath,
		SubtitlePreset: req.RenderConfig.SubtitlePreset,
		WatermarkPath:  req.WatermarkPath,
		EnableXfade:    true,
		AudioPolish:    true,
		TargetLUFS:     req.TargetLUFS,
	})
}

func (e *Executor) runGraphWithoutOverlays(ctx context.Context, req Request) (*Result, error) {
	return e.runWithGraphParams(ctx, req, rendergraph.Params{
		Segments:     req.Plan.Segments,
		TargetWidth:  req.TargetWidth,
		TargetHeight: req.TargetHeight,
		FitMode:      req.RenderConfig.FitMode,
		EnableXfade:  true,
		AudioPolish:  true,
		TargetLUFS:   req.TargetLUFS,
	})
}

func (e *Executor) runGraphWithoutXfade(ctx context.Context, req Request) (*Result, error) {
	return e.runWithGraphParams(ctx, req, rendergraph.Params{
		Segments:     req.Plan.Segments,
		TargetWidth:  req.TargetWidth,
		TargetHeight: req.TargetHeight,
		FitMode:      req.RenderConfig.FitMode,
		EnableXfade:  false,
		AudioPolish:  true,
		TargetLUFS:   req.TargetLUFS,
	})
}

func (e *Executor) runWithGraphParams(ctx context.Context, req Request, params rendergraph.Params) (*Result, error) {
	if len(params.Segments) == 0 {
		return nil, xerrors.ErrNoRenderableSegments
	}
	return e.renderGraphToFile(ctx, req, params, req.OutputPath)
}

// runSegmentFallback renders each segment through its own trim+speed+fit(+
// per-segment audio) filter graph, concatenates the results via the concat
// demuxer (stream-copy first, then a transcode pass if that fails). When a
// subtitle path is set, it then runs a second pass over the concat output
// that burns in the subtitles and applies audio polish; without subtitles no
// second pass runs and the output has no audio polish. If that second pass
// fails, the concat result is accepted with the degradation recorded on the
// result (spec §4.9 step 3).
func (e *Executor) runSegmentFallback(ctx context.Context, req Request) (*Result, error) {
	if len(req.Plan.Segments) == 0 {
		return nil, xerrors.ErrNoRenderableSegments
	}
	if e.IsCanceled != nil && e.IsCanceled(req.JobID) {
		return nil, xerrors.ErrQueueCanceledByUser
	}

	tmpDir, err := os.MkdirTemp("", "render-segments-*")
	if err != nil {
		return nil, fmt.Errorf("creating segment temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	listPath := filepath.Join(tmpDir, "concat.txt")
	listFile, err := os.Create(listPath)
	if err != nil {
		return nil, fmt.Errorf("creating concat list: %w", err)
	}

	for i, seg := range req.Plan.Segments {
		if e.IsCanceled != nil && e.IsCanceled(req.JobID) {
			listFile.Close()
			return nil, xerrors.ErrQueueCanceledByUser
		}
		segPath := filepath.Join(tmpDir, fmt.Sprintf("seg_%03d.mp4", i))
		result, err := e.renderGraphToFile(ctx, req, rendergraph.Params{
			Segments:     []model.Segment{seg},
			TargetWidth:  req.TargetWidth,
			TargetHeight: req.TargetHeight,
			FitMode:      req.RenderConfig.FitMode,
			EnableXfade:  false,
			AudioPolish:  false,
		}, segPath)
		if err != nil {
			listFile.Close()
			out := ""
			cmd := ""
			if result != nil {
				out, cmd = result.CapturedOutput, result.FormattedCommand
			}
			return &Result{CapturedOutput: out, FormattedCommand: cmd}, fmt.Errorf("rendering segment %d: %w", i, err)
		}
		fmt.Fprintf(listFile, "file '%s'\n", segPath)
	}
	listFile.Close()

	concatPath := filepath.Join(tmpDir, "concat_output.mp4")
	concatArgs := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", concatPath}
	output, formatted, err := e.runFFMPEG(ctx, req.JobID, concatArgs)
	if err != nil {
		transcodeArgs := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c:v", "libx264", "-c:a", "aac", concatPath}
		output, formatted, err = e.runFFMPEG(ctx, req.JobID, transcodeArgs)
		if err != nil {
			return &Result{CapturedOutput: output, FormattedCommand: formatted}, fmt.Errorf("concatenating segments: %w", err)
		}
	}
	concatResult := &Result{OutputPath: concatPath, CapturedOutput: output, FormattedCommand: formatted}

	if !needsPostProcess(req) {
		return e.acceptConcatOutput(concatResult, req.OutputPath)
	}
	if e.IsCanceled != nil && e.IsCanceled(req.JobID) {
		return nil, xerrors.ErrQueueCanceledByUser
	}

	polished, err := e.runPostProcessPass(ctx, req, concatPath)
	if err != nil {
		log.LogError(req.JobID, "segment-fallback post-process pass failed, accepting concat output", err)
		accepted, acceptErr := e.acceptConcatOutput(concatResult, req.OutputPath)
		if acceptErr != nil {
			return nil, acceptErr
		}
		accepted.OptimizationNote = "segment_fallback post-process pass failed, accepted un-post-processed concat output"
		return accepted, nil
	}
	return polished, nil
}

// needsPostProcess reports whether the segment-fallback path runs its
// post-process pass: only when a subtitle path is set. The per-segment graphs
// always skip audio polish, but that alone does not trigger the pass
// (spec §4.9 step 3).
func needsPostProcess(req Request) bool {
	return req.SubtitlePath != ""
}

// runPostProcessPass reapplies subtitles and audio polish over the
// already-concatenated segment-fallback output, as a standalone ffmpeg pass
// rather than through the per-segment trim graph.
func (e *Executor) runPostProcessPass(ctx context.Context, req Request, concatPath string) (*Result, error) {
	args := []string{"-y", "-i", concatPath}
	if req.SubtitlePath != "" {
		args = append(args, "-vf", rendergraph.SubtitleFilter(req.SubtitlePath, req.RenderConfig.SubtitlePreset))
	}
	args = append(args, "-af", rendergraph.AudioPolishFilter(req.TargetLUFS))
	args = append(args,
		"-c:v", "libx264", "-preset", config.FFMPEGPreset, "-crf", fmt.Sprintf("%d", config.FFMPEGCRF),
		"-c:a", "aac", "-b:a", config.FFMPEGAudioBitrate, "-ar", fmt.Sprintf("%d", config.FFMPEGAudioSampleRate),
		req.OutputPath,
	)
	output, formatted, err := e.runFFMPEG(ctx, req.JobID, args)
	if err != nil {
		return &Result{CapturedOutput: output, FormattedCommand: formatted}, fmt.Errorf("segment-fallback post-process pass: %w", err)
	}
	return &Result{OutputPath: req.OutputPath, CapturedOutput: output, FormattedCommand: formatted}, nil
}

// acceptConcatOutput moves the plain concat result into place as the final
// output when no post-process pass is needed or the pass itself failed.
func (e *Executor) acceptConcatOutput(concatResult *Result, finalPath string) (*Result, error) {
	if err := os.Rename(concatResult.OutputPath, finalPath); err != nil {
		return nil, fmt.Errorf("staging segment-fallback output: %w", err)
	}
	concatResult.OutputPath = finalPath
	return concatResult, nil
}

// renderGraphToFile builds and runs a rendergraph.Params filter description
// against req.InputPath, writing the result to outputPath rather than
// req.OutputPath, so per-segment renders can target scratch files.
func (e *Executor) renderGraphToFile(ctx context.Context, req Request, params rendergraph.Params, outputPath string) (*Result, error) {
	graph, err := rendergraph.Build(params)
	if err != nil {
		return nil, err
	}

	args := []string{"-y", "-i", req.InputPath}
	if graph.UsesScriptFile {
		defer os.Remove(graph.ScriptPath)
		args = append(args, "-filter_complex_script", graph.ScriptPath)
	} else {
		args = append(args, "-filter_complex", graph.FilterComplex)
	}
	args = append(args,
		"-map", "["+graph.VideoOutLabel+"]",
		"-map", "["+graph.AudioOutLabel+"]",
		"-c:v", "libx264", "-preset", config.FFMPEGPreset, "-crf", fmt.Sprintf("%d", config.FFMPEGCRF),
		"-c:a", "aac", "-b:a", config.FFMPEGAudioBitrate, "-ar", fmt.Sprintf("%d", config.FFMPEGAudioSampleRate),
		"-threads", fmt.Sprintf("%d", config.FFMPEGFilterThreads),
		outputPath,
	)

	output, formatted, err := e.runFFMPEG(ctx, req.JobID, args)
	if err != nil {
		return &Result{CapturedOutput: output, FormattedCommand: formatted}, fmt.Errorf("ffmpeg render: %w: %s", xerrors.ErrRenderFailed, err)
	}
	return &Result{OutputPath: outputPath, CapturedOutput: output, FormattedCommand: formatted}, nil
}

// runEmergency is the last-resort render: cuts only, no speed ramps, no
// zoom, no overlays (spec §4.9: "emergency render").
func (e *Executor) runEmergency(ctx context.Context, req Request) (*Result, error) {
	if len(req.Plan.Segments) == 0 {
		return nil, xerrors.ErrNoRenderableSegments
	}
	flattened := make([]model.Segment, len(req.Plan.Segments))
	for i, seg := range req.Plan.Segments {
		flattened[i] = model.Segment{Start: seg.Start, End: seg.End, Speed: 1}
	}
	return e.runWithGraphParams(ctx, req, rendergraph.Params{
		Segments:     flattened,
		TargetWidth:  req.TargetWidth,
		TargetHeight: req.TargetHeight,
		FitMode:      req.RenderConfig.FitMode,
		EnableXfade:  false,
		AudioPolish:  false,
	})
}

func (e *Executor) runFFMPEG(ctx context.Context, jobID string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, e.FFMPEGBin, args...)
	return subprocess.CapturedRunWithOnStart(jobID, cmd, func(c *exec.Cmd) {
		if e.Registrar != nil && c.Process != nil {
			e.Registrar.RegisterChild(jobID, c.Process.Pid, c)
		}
	})
}

func verifyOutput(path string) error {
	if path == "" {
		return xerrors.ErrOutputFileMissingAfterRender
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", xerrors.ErrOutputFileMissingAfterRender, err)
	}
	if info.Size() == 0 {
		return xerrors.ErrOutputFileEmptyAfterRender
	}
	return nil
}
