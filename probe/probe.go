package probe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	"github.com/livepeer/retention-engine/metrics"
)

// Result is the subset of ffprobe output the pipeline needs to size its
// analysis and render stages (spec §4.2: "duration, fps, has-audio").
type Result struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
	HasAudio        bool
}

// Probe wraps ffprobe.ProbeURL with retry/backoff, grounded on the teacher's
// video.Probe.runProbe.
type Probe struct {
	MaxRetries uint64
}

func New() *Probe {
	return &Probe{MaxRetries: 3}
}

func (p *Probe) ProbeFile(jobID, path string) (Result, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(ctx, path)
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		retryErr := operation()
		if retryErr != nil {
			metrics.Metrics.ProbeClient.RetryCount.WithLabelValues("probe_file").Inc()
		}
		return retryErr
	}, backoff.WithMaxRetries(backOff, p.MaxRetries))
	if err != nil {
		metrics.Metrics.ProbeClient.FailureCount.WithLabelValues("probe_file").Inc()
		return Result{}, fmt.Errorf("probing %s: %w", path, err)
	}
	return parseProbeData(data)
}

func parseProbeData(data *ffprobe.ProbeData) (Result, error) {
	videoStream := data.FirstVideoStream()
	if videoStream == nil {
		return Result{}, fmt.Errorf("no video stream found")
	}
	if data.Format == nil {
		return Result{}, fmt.Errorf("format information missing from probe output")
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil || duration == 0 {
		duration = data.Format.DurationSeconds
	}
	result := Result{
		DurationSeconds: duration,
		Width:           videoStream.Width,
		Height:          videoStream.Height,
		HasAudio:        data.FirstAudioStream() != nil,
	}
	if fps, err := parseFrameRate(videoStream.AvgFrameRate); err == nil {
		result.FPS = fps
	}
	return result, nil
}

func parseFrameRate(rate string) (float64, error) {
	var num, den float64
	if _, err := fmt.Sscanf(rate, "%f/%f", &num, &den); err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, fmt.Errorf("zero denominator in frame rate %q", rate)
	}
	return num / den, nil
}
