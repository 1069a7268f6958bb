package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/livepeer/retention-engine/calibration"
	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/editplan"
	"github.com/livepeer/retention-engine/engagement"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/judge"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/metrics"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/probe"
	"github.com/livepeer/retention-engine/render"
	"github.com/livepeer/retention-engine/retry"
	"github.com/livepeer/retention-engine/scheduler"
	"github.com/livepeer/retention-engine/signals"
	"github.com/livepeer/retention-engine/storage"
	"github.com/livepeer/retention-engine/store"
	"github.com/livepeer/retention-engine/style"
	"github.com/livepeer/retention-engine/tracing"
	"github.com/livepeer/retention-engine/transcript"
)

// Coordinator ties every domain package into the fixed 10-step pipeline
// (spec §2, §3), replacing the teacher's upload/transcode strategy dispatch
// with the retention-editing state machine. A single Coordinator is shared
// across every worker goroutine the Scheduler runs, so Run must not mutate
// Coordinator state; per-job state lives on the jobRun it constructs.
type Coordinator struct {
	Store       *store.JobStore
	Storage     *storage.Gateway
	Scheduler   *scheduler.Scheduler
	Prober      *probe.Probe
	Extractors  *signals.Extractors
	Transcriber *transcript.Transcriber
	Executor    *render.Executor
	Calibration *calibration.Store
	ScratchDir  string
}

var _ scheduler.PipelineRunner = (*Coordinator)(nil)

// Run advances a single job through every pipeline step to completion or
// failure (spec §2's control-flow arrow chain). It implements
// scheduler.PipelineRunner so the Scheduler can drive it per-worker.
func (c *Coordinator) Run(ctx context.Context, job *model.Job) error {
	r := &jobRun{c: c, job: job, spans: make(map[model.StepName]trace.Span)}
	return r.execute(ctx)
}

// jobRun holds the per-invocation state (the job and its open trace spans)
// that must not be shared across concurrently running jobs.
type jobRun struct {
	c     *Coordinator
	job   *model.Job
	spans map[model.StepName]trace.Span
}

func (r *jobRun) execute(ctx context.Context) (err error) {
	job := r.job
	defer func() {
		if rec := recover(); rec != nil {
			log.LogError(job.ID, "panic in pipeline run, recovering", fmt.Errorf("%v", rec), "trace", string(debug.Stack()))
			err = fmt.Errorf("panic in pipeline run: %v", rec)
		}
		if err != nil {
			r.failJob(ctx, err)
		}
	}()

	workDir, cleanup, err := r.prepareWorkDir()
	if err != nil {
		return err
	}
	defer cleanup()

	inputPath, err := r.downloadInput(ctx, workDir)
	if err != nil {
		return err
	}

	probeResult, err := r.c.Prober.ProbeFile(job.ID, inputPath)
	if err != nil {
		return fmt.Errorf("%w: %s", xerrors.ErrDurationUnavailable, err)
	}
	job.InputDurationSeconds = probeResult.DurationSeconds
	longForm := probeResult.DurationSeconds > config.LongFormRuntimeThresholdSeconds

	cues := r.runTranscribeStep(ctx, inputPath, workDir)

	raw := r.runFrameAnalysisStep(ctx, inputPath, probeResult.DurationSeconds)
	windows := engagement.Build(raw, cues)
	if err := r.advanceStatus(ctx, model.StatusHooking); err != nil {
		return err
	}

	styleProfile := style.InferContentStyle(cues, windows)
	nicheProfile := style.InferVideoNiche(windows)
	pacing := style.DerivePacingProfile(nicheProfile, styleProfile)

	profile := r.loadCalibrationProfile(ctx)

	for _, status := range []model.Status{model.StatusCutting, model.StatusPacing, model.StatusStory} {
		if err := r.advanceStatus(ctx, status); err != nil {
			return err
		}
	}

	outcome, err := r.runEditPlanningSteps(ctx, editplan.Input{
		Windows:        windows,
		Cues:           cues,
		Duration:       probeResult.DurationSeconds,
		StyleProfile:   styleProfile,
		NicheProfile:   nicheProfile,
		Pacing:         pacing,
		ContentFormat:  job.RenderSettings.TargetPlatform,
		LongForm:       longForm,
		FaceoffWeights: hookWeightsFromCalibration(profile),
		SnapTolerance:  1.0,
	}, profile.ToRetryBias(), job.RenderSettings.GateMode, len(cues) > 0, styleProfile.Confidence)
	if err != nil {
		return err
	}

	if err := r.advanceStatus(ctx, model.StatusRetention); err != nil {
		return err
	}
	if err := r.advanceStatus(ctx, model.StatusRendering); err != nil {
		return err
	}
	renderResults, err := r.runRenderStep(ctx, inputPath, workDir, outcome.Chosen.Plan)
	if err != nil {
		return err
	}
	for _, res := range renderResults {
		if res.OptimizationNote != "" {
			job.OptimizationNotes = append(job.OptimizationNotes, res.OptimizationNote)
		}
	}

	if err := r.uploadOutputs(ctx, renderResults); err != nil {
		return err
	}

	return r.completeJob(ctx, outcome)
}

func (r *jobRun) prepareWorkDir() (string, func(), error) {
	base := r.c.ScratchDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, r.job.ID)
	if err := os.RemoveAll(dir); err != nil {
		return "", nil, fmt.Errorf("clearing scratch dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (r *jobRun) downloadInput(ctx context.Context, workDir string) (string, error) {
	if err := r.advanceStatus(ctx, model.StatusAnalyzing); err != nil {
		return "", err
	}
	destPath := filepath.Join(workDir, "input"+filepath.Ext(r.job.InputObjectKey))
	if err := r.c.Storage.DownloadObjectToFile(ctx, r.job.ID, r.job.InputObjectKey, destPath); err != nil {
		return "", fmt.Errorf("%w: %s", xerrors.ErrDownloadFailed, err)
	}
	info, err := os.Stat(destPath)
	if err != nil {
		return "", xerrors.ErrInputFileMissingAfterDownload
	}
	if info.Size() == 0 {
		return "", xerrors.ErrInputFileEmptyAfterDownload
	}
	return destPath, nil
}

// runTranscribeStep is best-effort: transcription failures degrade to an
// empty cue set rather than failing the job (spec §4.3 pattern, extended to
// ASR).
func (r *jobRun) runTranscribeStep(ctx context.Context, inputPath, workDir string) []model.TranscriptCue {
	r.recordStep(ctx, model.StepTranscribe, model.StepRunning, nil)
	if r.c.Transcriber == nil {
		r.recordStep(ctx, model.StepTranscribe, model.StepCompleted, nil)
		return nil
	}
	cues, err := r.c.Transcriber.Transcribe(ctx, r.job.ID, inputPath, workDir)
	if err != nil {
		log.LogError(r.job.ID, "transcription failed, continuing without transcript", err)
		r.recordStep(ctx, model.StepTranscribe, model.StepFailed, err)
		return nil
	}
	r.recordStep(ctx, model.StepTranscribe, model.StepCompleted, nil)
	return cues
}

func (r *jobRun) runFrameAnalysisStep(ctx context.Context, inputPath string, duration float64) *model.RawSignals {
	r.recordStep(ctx, model.StepFrameAnalysis, model.StepRunning, nil)
	raw := r.c.Extractors.Run(ctx, r.job.ID, inputPath, duration)
	r.recordStep(ctx, model.StepFrameAnalysis, model.StepCompleted, nil)
	r.recordStep(ctx, model.StepBestMomentScoring, model.StepCompleted, nil)
	return raw
}

// runEditPlanningSteps covers HOOK_SELECT_AND_AUDIT, TIMELINE_REORDER,
// PACING_AND_INTERRUPTS, and STORY_QUALITY_GATE in one orchestrated call:
// retry.Run builds and judges a full editplan.EditPlan per strategy, which
// already encompasses hook selection, reorder, and pacing for that variant
// (spec §4.8).
func (r *jobRun) runEditPlanningSteps(ctx context.Context, base editplan.Input, bias retry.CalibrationBias, gateMode string, hasTranscript bool, styleConfidence float64) (retry.Outcome, error) {
	steps := []model.StepName{model.StepHookSelectAndAudit, model.StepTimelineReorder, model.StepPacingAndInterrupts, model.StepStoryQualityGate}
	for _, step := range steps {
		r.recordStep(ctx, step, model.StepRunning, nil)
	}

	judgeInput := judge.Input{
		Thresholds:          judge.DeriveThresholds(0, 0, 0, 0, 0, 0),
		ContentFormat:       base.ContentFormat,
		TargetPlatform:      r.job.RenderSettings.TargetPlatform,
		GateMode:            gateMode,
		TargetSegmentLength: (base.Pacing.EarlyTargetSeconds + base.Pacing.MiddleTargetSeconds + base.Pacing.LateTargetSeconds) / 3,
		TargetInterrupts:    targetInterruptCount(base.Duration, base.Pacing),
	}

	outcome := retry.Run(base, judgeInput, bias, hasTranscript, styleConfidence)
	for _, attempt := range outcome.Attempts {
		metrics.Metrics.RetryAttempts.WithLabelValues(attempt.Strategy, fmt.Sprint(attempt.Judge.Passed)).Inc()
	}

	if outcome.Err != nil {
		for _, step := range steps {
			r.recordStep(ctx, step, model.StepFailed, outcome.Err)
		}
		metrics.Metrics.QualityGateResult.WithLabelValues("failed").Inc()
		return outcome, outcome.Err
	}

	if outcome.OverrideUsed {
		metrics.Metrics.QualityGateOverride.Inc()
	}
	metrics.Metrics.QualityGateResult.WithLabelValues("passed").Inc()
	for _, step := range steps {
		r.recordStep(ctx, step, model.StepCompleted, nil)
	}
	return outcome, nil
}

func targetInterruptCount(duration float64, pacing style.PacingProfile) int {
	interval := (pacing.PatternIntervalMin + pacing.PatternIntervalMax) / 2
	if interval <= 0 {
		return 0
	}
	count := int(duration / interval)
	if count < 1 {
		count = 1
	}
	return count
}

// runRenderStep always returns a slice: one element for horizontal mode, up
// to config.MaxVerticalClips for vertical mode (spec §4.9).
func (r *jobRun) runRenderStep(ctx context.Context, inputPath, workDir string, plan model.EditPlan) ([]render.Result, error) {
	r.recordStep(ctx, model.StepRenderFinal, model.StepRunning, nil)

	outputPath := filepath.Join(workDir, "output.mp4")
	width, height := renderDimensions(r.job.RenderSettings)

	req := render.Request{
		JobID:         r.job.ID,
		InputPath:     inputPath,
		OutputPath:    outputPath,
		Plan:          plan,
		RenderConfig:  r.job.RenderSettings,
		TargetWidth:   width,
		TargetHeight:  height,
		TargetLUFS:    -14.0,
		WatermarkPath: watermarkPath(r.job.RenderSettings),
	}

	var results []render.Result
	var err error
	if r.job.RenderSettings.Mode == model.RenderModeVertical {
		results, err = r.c.Executor.RunVertical(ctx, req)
	} else {
		var result *render.Result
		result, err = r.c.Executor.Run(ctx, req)
		if err == nil {
			results = []render.Result{*result}
		}
	}

	if err != nil {
		r.recordStep(ctx, model.StepRenderFinal, model.StepFailed, err)
		return nil, err
	}
	r.recordStep(ctx, model.StepRenderFinal, model.StepCompleted, nil)
	return results, nil
}

func renderDimensions(rc model.RenderConfig) (int, int) {
	if rc.Mode == model.RenderModeVertical {
		return 1080, 1920
	}
	switch rc.Horizontal.Quality {
	case "720p":
		return 1280, 720
	case "4k":
		return 3840, 2160
	default:
		return 1920, 1080
	}
}

func watermarkPath(rc model.RenderConfig) string {
	if !rc.WatermarkEnabled {
		return ""
	}
	return config.WatermarkImagePath
}

// uploadOutputs uploads every rendered output, one key per clip. The first
// result becomes Job.OutputObjectKey; any additional vertical clips are
// recorded in Job.VerticalOutputObjectKeys (spec §4.9, §4.1).
func (r *jobRun) uploadOutputs(ctx context.Context, results []render.Result) error {
	for i, res := range results {
		key := fmt.Sprintf("%s/output.%d.mp4", r.job.ID, i)
		if i == 0 {
			key = r.job.ID + "/output.mp4"
		}
		if err := r.c.Storage.UploadFile(ctx, r.job.ID, key, res.OutputPath, "video/mp4"); err != nil {
			return fmt.Errorf("%w: %s", xerrors.ErrOutputUploadMissing, err)
		}
		if i == 0 {
			r.job.OutputObjectKey = key
		} else {
			r.job.VerticalOutputObjectKeys = append(r.job.VerticalOutputObjectKeys, key)
		}
	}
	return nil
}

func (r *jobRun) completeJob(ctx context.Context, outcome retry.Outcome) error {
	job := r.job
	r.recordStep(ctx, model.StepRetentionScore, model.StepRunning, nil)

	job.RetentionScore = outcome.Chosen.Judge.RetentionScore
	job.FinalQuality = job.RequestedQuality
	job.WatermarkApplied = job.RenderSettings.WatermarkEnabled
	job.Analysis = map[string]interface{}{
		"strategy":        outcome.Chosen.Strategy,
		"content_format":  outcome.Chosen.Judge.ContentFormat,
		"hookStrength":    outcome.Chosen.Judge.HookStrength,
		"pacingScore":     outcome.Chosen.Judge.PacingScore,
		"clarityScore":    outcome.Chosen.Judge.ClarityScore,
		"whyKeepWatching": outcome.Chosen.Judge.WhyKeepWatching,
		"rescueUsed":      outcome.RescueUsed,
		"overrideUsed":    outcome.OverrideUsed,
		"attemptCount":    len(outcome.Attempts),
	}

	if err := r.advanceStatus(ctx, model.StatusCompleted); err != nil {
		return err
	}
	r.recordStep(ctx, model.StepRetentionScore, model.StepCompleted, nil)

	patch, err := jobCompletionPatch(job)
	if err != nil {
		return err
	}
	if err := r.c.Store.Update(ctx, job.ID, patch, store.UpdateOpts{}); err != nil {
		return err
	}
	metrics.Metrics.Pipeline.Count.WithLabelValues("completed", outcome.Chosen.Strategy, outcome.Chosen.Judge.ContentFormat).Inc()
	return nil
}

func jobCompletionPatch(job *model.Job) (map[string]interface{}, error) {
	analysisJSON, err := json.Marshal(job.Analysis)
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis: %w", err)
	}
	notesJSON, err := json.Marshal(job.OptimizationNotes)
	if err != nil {
		return nil, fmt.Errorf("marshaling optimization notes: %w", err)
	}
	verticalJSON, err := json.Marshal(job.VerticalOutputObjectKeys)
	if err != nil {
		return nil, fmt.Errorf("marshaling vertical output keys: %w", err)
	}
	return map[string]interface{}{
		"status":                      string(model.StatusCompleted),
		"progress":                    100,
		"output_object_key":           job.OutputObjectKey,
		"vertical_output_object_keys": verticalJSON,
		"final_quality":               job.FinalQuality,
		"watermark_applied":           job.WatermarkApplied,
		"retention_score":             job.RetentionScore,
		"optimization_notes":          notesJSON,
		"analysis":                    analysisJSON,
	}, nil
}

func (r *jobRun) failJob(ctx context.Context, cause error) {
	r.job.Error = cause.Error()
	if err := r.c.Store.Update(ctx, r.job.ID, map[string]interface{}{
		"status": string(model.StatusFailed),
		"error":  cause.Error(),
	}, store.UpdateOpts{}); err != nil {
		log.LogError(r.job.ID, "failed to persist job failure", err)
	}
	metrics.Metrics.Pipeline.Count.WithLabelValues("failed", "", "").Inc()
}

func (r *jobRun) advanceStatus(ctx context.Context, status model.Status) error {
	if err := r.c.Store.Update(ctx, r.job.ID, map[string]interface{}{"status": string(status)}, store.UpdateOpts{}); err != nil {
		return err
	}
	r.job.Status = status
	return nil
}

// recordStep upserts the step's progress row and brackets it with a trace
// span so traces line up with the PipelineStepState rows the Store persists.
func (r *jobRun) recordStep(ctx context.Context, step model.StepName, status model.StepStatus, stepErr error) {
	patch := map[string]interface{}{"status": string(status)}
	now := time.Now()
	switch status {
	case model.StepRunning:
		patch["started_at"] = now
		_, span := tracing.StartStage(ctx, r.job.ID, string(step))
		r.spans[step] = span
	case model.StepCompleted:
		patch["completed_at"] = now
		r.endSpan(step, nil)
	case model.StepFailed:
		patch["completed_at"] = now
		if stepErr != nil {
			patch["last_error"] = stepErr.Error()
		}
		r.endSpan(step, stepErr)
	}
	if err := r.c.Store.UpdateStepState(ctx, r.job.ID, step, patch); err != nil {
		log.LogError(r.job.ID, "failed to record step state", err, "step", string(step))
	}
}

func (r *jobRun) endSpan(step model.StepName, stepErr error) {
	span, ok := r.spans[step]
	if !ok {
		return
	}
	tracing.EndStage(span, stepErr)
	delete(r.spans, step)
}

func (r *jobRun) loadCalibrationProfile(ctx context.Context) calibration.Profile {
	if r.c.Store == nil {
		return calibration.Default()
	}
	summaries, err := r.c.Store.ListRecentCompleted(ctx, r.job.OwnerUserID, config.HookCalibrationLookbackJobs)
	if err != nil {
		log.LogError(r.job.ID, "failed to load calibration history, using defaults", err, "user_id", r.job.OwnerUserID)
		return calibration.Default()
	}
	profile := calibration.Compute(summaries)
	if r.c.Calibration != nil {
		_ = r.c.Calibration.Update(r.job.OwnerUserID, profile)
	}
	metrics.Metrics.CalibrationSampleCount.Set(float64(profile.SampleCount))
	return profile
}

// hookWeightsFromCalibration renormalizes the two hook-faceoff components
// editplan.ChooseHook actually consumes (score, audit) out of the profile's
// 5-component weight set (spec §4.11, §4.12).
func hookWeightsFromCalibration(profile calibration.Profile) editplan.HookFaceoffWeights {
	score, audit := profile.HookWeights["score"], profile.HookWeights["audit"]
	total := score + audit
	if total == 0 {
		return editplan.DefaultHookFaceoffWeights()
	}
	return editplan.HookFaceoffWeights{Score: score / total, Audit: audit / total}
}
