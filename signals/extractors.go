package signals

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/model"
)

// Extractors runs the five best-effort signal extractors for a job's input
// file, fanning them out concurrently (spec §4.3). Every extractor degrades
// to an empty result on failure instead of failing the job, mirroring the
// teacher's video.Probe best-effort philosophy.
type Extractors struct {
	FFMPEGBin           string
	TextDensityModelBin string
	EmotionModelBin     string
}

func New(ffmpegBin, textDensityBin, emotionBin string) *Extractors {
	return &Extractors{FFMPEGBin: ffmpegBin, TextDensityModelBin: textDensityBin, EmotionModelBin: emotionBin}
}

// Run fans out all configured extractors and merges their output into a
// single RawSignals value, capping analysis at HOOK_ANALYZE_MAX seconds.
func (e *Extractors) Run(ctx context.Context, jobID, inputPath string, durationSec float64) *model.RawSignals {
	analyzeSec := math.Min(durationSec, float64(config.HookAnalyzeMaxSeconds))

	out := &model.RawSignals{
		AudioRMSBySecond:    map[int]float64{},
		TextDensityBySecond: map[int]float64{},
		DurationSeconds:     durationSec,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rms, err := e.extractAudioRMS(gctx, jobID, inputPath, analyzeSec)
		if err != nil {
			log.LogError(jobID, "audio RMS extraction failed, degrading", err)
			return nil
		}
		out.AudioRMSBySecond = rms
		return nil
	})
	g.Go(func() error {
		changes, err := e.extractSceneChanges(gctx, jobID, inputPath, analyzeSec)
		if err != nil {
			log.LogError(jobID, "scene change extraction failed, degrading", err)
			return nil
		}
		out.SceneChanges = changes
		return nil
	})
	g.Go(func() error {
		faces, err := e.extractFacePresence(gctx, jobID, inputPath, analyzeSec)
		if err != nil {
			log.LogError(jobID, "face presence extraction failed, degrading", err)
			return nil
		}
		out.FaceSamples = faces
		return nil
	})
	g.Go(func() error {
		if e.TextDensityModelBin == "" {
			return nil
		}
		density, err := e.extractTextDensity(gctx, jobID, inputPath, analyzeSec)
		if err != nil {
			log.LogError(jobID, "text density extraction failed, degrading", err)
			return nil
		}
		out.TextDensityBySecond = density
	return nil
	})
	g.Go(func() error {
		if e.EmotionModelBin == "" {
			return nil
		}
		samples, err := e.extractEmotion(gctx, jobID, inputPath)
		if err != nil {
			log.LogError(jobID, "emotion extraction failed, degrading", err)
			return nil
		}
		out.EmotionSamples = samples
		return nil
	})

	_ = g.Wait() // extractors never hard-fail the job; errors already logged per-extractor
	return out
}

var ptsTimeRe = regexp.MustCompile(`pts_time:([0-9.]+)`)
var rmsLevelRe = regexp.MustCompile(`RMS_level=(-?[0-9.]+|-inf)`)

// extractAudioRMS invokes astats and buckets dB readings by integer second,
// keeping the max per bucket, normalized via clamp(rms,-60,0)+60)/60 (§4.3).
func (e *Extractors) extractAudioRMS(ctx context.Context, jobID, inputPath string, analyzeSec float64) (map[int]float64, error) {
	args := []string{
		"-hide_banner", "-nostats",
		"-t", fmt.Sprintf("%.3f", analyzeSec),
		"-i", inputPath,
		"-af", "astats=metadata=1:reset=1,ametadata=print:key=lavfi.astats.Overall.RMS_level:file=-",
		"-f", "null", "-",
	}
	lines, err := e.runFFMPEGCaptureLines(ctx, jobID, args)
	if err != nil {
		return nil, err
	}

	result := map[int]float64{}
	var curPTS float64
	havePTS := false
	for _, line := range lines {
		if m := ptsTimeRe.FindStringSubmatch(line); m != nil {
			curPTS, _ = strconv.ParseFloat(m[1], 64)
			havePTS = true
			continue
		}
		if m := rmsLevelRe.FindStringSubmatch(line); m != nil && havePTS {
			raw := m[1]
			db := -60.0
			if raw != "-inf" {
				db, _ = strconv.ParseFloat(raw, 64)
			}
			normalized := (clamp(db, -60, 0) + 60) / 60
			sec := int(curPTS)
			if cur, ok := result[sec]; !ok || normalized > cur {
				result[sec] = normalized
			}
		}
	}
	return result, nil
}

// extractSceneChanges runs the scene-change select filter and collects
// pts_time values above the 0.45 threshold (§4.3).
func (e *Extractors) extractSceneChanges(ctx context.Context, jobID, inputPath string, analyzeSec float64) ([]model.SceneChange, error) {
	args := []string{
		"-hide_banner", "-nostats",
		"-t", fmt.Sprintf("%.3f", analyzeSec),
		"-i", inputPath,
		"-vf", "select='gt(scene,0.45)',showinfo",
		"-f", "null", "-",
	}
	lines, err := e.runFFMPEGCaptureLines(ctx, jobID, args)
	if err != nil {
		return nil, err
	}
	var changes []model.SceneChange
	for _, line := range lines {
		if m := ptsTimeRe.FindStringSubmatch(line); m != nil {
			t, _ := strconv.ParseFloat(m[1], 64)
			changes = append(changes, model.SceneChange{Time: t})
		}
	}
	return changes, nil
}

var faceBoxRe = regexp.MustCompile(`x:(-?\d+) y:(-?\d+) w:(\d+) h:(\d+)`)

// extractFacePresence parses per-box facedetect output into per-second
// presence/intensity/centroid samples (§4.3). If the media tool's build
// doesn't expose facedetect, the ffmpeg run fails and its error is returned;
// Run then leaves FaceSamples empty.
func (e *Extractors) extractFacePresence(ctx context.Context, jobID, inputPath string, analyzeSec float64) ([]model.FaceSample, error) {
	args := []string{
		"-hide_banner", "-nostats",
		"-t", fmt.Sprintf("%.3f", analyzeSec),
		"-i", inputPath,
		"-vf", "facedetect,showinfo",
		"-f", "null", "-",
	}
	lines, err := e.runFFMPEGCaptureLines(ctx, jobID, args)
	if err != nil {
		return nil, err
	}

	type box struct{ x, y, w, h float64 }
	bySecond := map[int][]box{}
	var curPTS float64
	havePTS := false
	for _, line := range lines {
		if m := ptsTimeRe.FindStringSubmatch(line); m != nil {
			curPTS, _ = strconv.ParseFloat(m[1], 64)
			havePTS = true
		}
		if m := faceBoxRe.FindStringSubmatch(line); m != nil && havePTS {
			x, _ := strconv.ParseFloat(m[1], 64)
			y, _ := strconv.ParseFloat(m[2], 64)
			w, _ := strconv.ParseFloat(m[3], 64)
			h, _ := strconv.ParseFloat(m[4], 64)
			sec := int(curPTS)
			bySecond[sec] = append(bySecond[sec], box{x, y, w, h})
		}
	}

	samples := make([]model.FaceSample, 0, len(bySecond))
	for sec, boxes := range bySecond {
		var maxArea, totalArea, cx, cy float64
		for _, b := range boxes {
			area := b.w * b.h
			totalArea += area
			cx += (b.x + b.w/2) * area
			cy += (b.y + b.h/2) * area
			if area > maxArea {
				maxArea = area
			}
		}
		if totalArea > 0 {
			cx /= totalArea
			cy /= totalArea
		}
		samples = append(samples, model.FaceSample{
			Time:      sec,
			Presence:  1,
			Intensity: clamp(maxArea/50000.0, 0, 1),
			CenterX:   cx,
			CenterY:   cy,
		})
	}
	return samples, nil
}

// extractTextDensity shells out to an external OCR sidecar binary, expecting
// a JSON array of {second, density} rows on stdout (§4.3).
func (e *Extractors) extractTextDensity(ctx context.Context, jobID, inputPath string, analyzeSec float64) (map[int]float64, error) {
	cmd := exec.CommandContext(ctx, e.TextDensityModelBin, "--input", inputPath, "--max-seconds", fmt.Sprintf("%.0f", analyzeSec))
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("text density sidecar failed: %w", err)
	}
	var rows []struct {
		Second  int     `json:"second"`
		Density float64 `json:"density"`
	}
	if err := json.Unmarshal(output, &rows); err != nil {
		return nil, fmt.Errorf("decoding text density sidecar output: %w", err)
	}
	result := map[int]float64{}
	for _, r := range rows {
		result[r.Second] = clamp(r.Density, 0, 1)
	}
	return result, nil
}

// extractEmotion shells out to an optional emotion sidecar, expecting a JSON
// list of {time, intensity} (§4.3).
func (e *Extractors) extractEmotion(ctx context.Context, jobID, inputPath string) ([]model.EmotionSample, error) {
	cmd := exec.CommandContext(ctx, e.EmotionModelBin, "--input", inputPath)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("emotion sidecar failed: %w", err)
	}
	var samples []model.EmotionSample
	if err := json.Unmarshal(output, &samples); err != nil {
		return nil, fmt.Errorf("decoding emotion sidecar output: %w", err)
	}
	return samples, nil
}

// ExtractFrames decodes analysis frames at ANALYSIS_FRAME_FPS into destDir
// for use by analysis-only sidecars (§4.3).
func (e *Extractors) ExtractFrames(ctx context.Context, jobID, inputPath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating frame extraction dir: %w", err)
	}
	args := []string{
		"-hide_banner", "-nostats", "-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", config.AnalysisFrameFPS, config.AnalysisFrameScaleWidth),
		destDir + "/frame-%06d.jpg",
	}
	_, err := e.runFFMPEGCaptureLines(ctx, jobID, args)
	return err
}

// runFFMPEGCaptureLines runs ffmpeg with backoff.Retry (one retry after
// FFMPEGRetryDelay, whatever the failure) and returns its stderr lines;
// stdout is not captured.
func (e *Extractors) runFFMPEGCaptureLines(ctx context.Context, jobID string, args []string) ([]string, error) {
	var lines []string
	op := func() error {
		cmd := exec.CommandContext(ctx, e.FFMPEGBin, args...)
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return err
		}
		if err := cmd.Start(); err != nil {
			return err
		}
		lines = nil
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		return cmd.Wait()
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(config.FFMPEGRetryDelay), 1)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return lines, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
