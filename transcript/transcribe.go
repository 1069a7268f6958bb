package transcript

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/subprocess"
)

// Transcriber shells out to a whisper-compatible binary to produce an SRT
// file alongside the input, then scores it via ReadFile (spec §2 step
// TRANSCRIBE).
type Transcriber struct {
	Bin   string
	Model string
	Args  string
}

func NewTranscriber(bin, model, extraArgs string) *Transcriber {
	return &Transcriber{Bin: bin, Model: model, Args: extraArgs}
}

// Transcribe runs the binary against inputPath, writing output into destDir,
// and returns the scored transcript cues. A failure here is best-effort: the
// pipeline proceeds without a transcript rather than failing the job
// (spec §4.3's "best-effort, never fail the job" pattern, applied to ASR).
func (t *Transcriber) Transcribe(ctx context.Context, jobID, inputPath, destDir string) ([]model.TranscriptCue, error) {
	args := []string{inputPath, "--model", t.Model, "--output_format", "srt", "--output_dir", destDir}
	if t.Args != "" {
		args = append(args, strings.Fields(t.Args)...)
	}

	cmd := exec.CommandContext(ctx, t.Bin, args...)
	if _, _, err := subprocess.CapturedRun(jobID, cmd); err != nil {
		return nil, fmt.Errorf("running transcriber: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	srtPath := filepath.Join(destDir, base+".srt")
	return ReadFile(srtPath)
}
