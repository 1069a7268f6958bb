package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	"github.com/livepeer/retention-engine/cache"
	"github.com/livepeer/retention-engine/calibration"
	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/pipeline"
	"github.com/livepeer/retention-engine/probe"
	"github.com/livepeer/retention-engine/render"
	"github.com/livepeer/retention-engine/scheduler"
	"github.com/livepeer/retention-engine/signals"
	"github.com/livepeer/retention-engine/storage"
	"github.com/livepeer/retention-engine/store"
	"github.com/livepeer/retention-engine/tracing"
	"github.com/livepeer/retention-engine/transcript"
)

func main() {
	fs := flag.NewFlagSet("retention-engine", flag.ExitOnError)
	cli := config.Cli{}

	fs.IntVar(&cli.PromPort, "prom-port", 9090, "Port to serve Prometheus metrics on")
	fs.IntVar(&cli.JobConcurrency, "job-concurrency", 4, "Maximum number of jobs processed concurrently")
	fs.Int64Var(&cli.JobQueueRecoveryIntervalMS, "job-queue-recovery-interval-ms", 30000, "Interval between scans for stale, recoverable jobs")
	fs.Int64Var(&cli.StalePipelineMS, "stale-pipeline-ms", 90*60*1000, "Time a job may sit in a non-terminal status before it's considered stale")

	fs.StringVar(&cli.FFMPEGBin, "ffmpeg-bin", "ffmpeg", "Path to the ffmpeg binary")
	fs.StringVar(&cli.FFProbeBin, "ffprobe-bin", "ffprobe", "Path to the ffprobe binary")
	fs.IntVar(&cli.FFMPEGFilterThreads, "ffmpeg-filter-threads", config.FFMPEGFilterThreads, "Threads passed to ffmpeg's -threads flag")
	fs.StringVar(&cli.FFMPEGPreset, "ffmpeg-preset", config.FFMPEGPreset, "libx264 preset used for the final render")
	fs.IntVar(&cli.FFMPEGCRF, "ffmpeg-crf", config.FFMPEGCRF, "libx264 CRF used for the final render")
	fs.StringVar(&cli.FFMPEGAudioBitrate, "ffmpeg-audio-bitrate", config.FFMPEGAudioBitrate, "AAC audio bitrate used for the final render")
	fs.IntVar(&cli.FFMPEGAudioSampleRate, "ffmpeg-audio-sample-rate", config.FFMPEGAudioSampleRate, "AAC audio sample rate used for the final render")

	fs.BoolVar(&cli.DisableFaceDetection, "disable-face-detection", false, "Skip the facedetect signal extractor")
	fs.BoolVar(&cli.DisableTextDensity, "disable-text-density", false, "Skip the on-screen text density extractor")
	fs.BoolVar(&cli.DisableEmotionModel, "disable-emotion-model", false, "Skip the emotional-beat scoring extractor")

	fs.StringVar(&cli.WhisperBin, "whisper-bin", "whisper", "Path to the whisper transcription binary")
	fs.StringVar(&cli.WhisperModel, "whisper-model", "base", "Whisper model name")
	fs.StringVar(&cli.WhisperArgs, "whisper-args", "", "Extra arguments passed through to the whisper binary")

	fs.StringVar(&cli.TextDensityModelBin, "text-density-model-bin", "", "Path to the text-density scoring binary")
	fs.StringVar(&cli.TesseractBin, "tesseract-bin", "tesseract", "Path to the tesseract binary")
	fs.BoolVar(&cli.EnableTesseract, "enable-tesseract", false, "Use tesseract OCR as a text-density fallback")
	fs.StringVar(&cli.EmotionModelBin, "emotion-model-bin", "", "Path to the emotional-beat scoring binary")

	fs.StringVar(&cli.WatermarkImagePath, "watermark-image-path", "", "Path to the watermark PNG overlaid when a job requests one")
	fs.IntVar(&cli.HookCalibrationLookbackJobs, "hook-calibration-lookback-jobs", config.HookCalibrationLookbackJobs, "Number of a user's most recent completed jobs used to compute calibration")
	fs.StringVar(&cli.CalibrationWeightsPath, "calibration-weights-path", "", "Path to the per-user calibration weights YAML file, hot-reloaded on change")

	fs.StringVar(&cli.PrimaryBucketURL, "primary-bucket-url", "", "Primary object storage URL (driver scheme, e.g. s3://bucket)")
	fs.StringVar(&cli.SecondaryBucketURL, "secondary-bucket-url", "", "Secondary object storage URL used when the primary is unavailable")
	fs.StringVar(&cli.RedisAddr, "redis-addr", "", "Redis address used for the bucket-check single-flight memo, empty disables it")

	fs.StringVar(&cli.MetricsDBConnectionString, "db-connection-string", "", "Postgres connection string for the job store")
	fs.StringVar(&cli.ScratchDir, "scratch-dir", "", "Base directory for per-job working directories, defaults to the OS temp dir")

	tracingEnabled := fs.Bool("tracing-enabled", false, "Export pipeline traces via OTLP/gRPC")
	tracingEndpoint := fs.String("tracing-endpoint", "localhost:4317", "OTLP/gRPC collector endpoint")
	tracingSamplingRate := fs.Float64("tracing-sampling-rate", 0.2, "Fraction of job runs traced, 0-1")
	_ = fs.String("config", "", "config file (optional)")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("RETENTION_ENGINE"),
	); err != nil {
		log.LogNoJobID("error parsing cli", "err", err)
		os.Exit(1)
	}

	applyCliOverrides(cli)
	if cli.FFProbeBin != "" {
		ffprobe.SetFFProbeBinPath(cli.FFProbeBin)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	provider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:      *tracingEnabled,
		ServiceName:  "retention-engine",
		Endpoint:     *tracingEndpoint,
		SamplingRate: *tracingSamplingRate,
	})
	if err != nil {
		log.LogNoJobID("failed to start tracing provider", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	db, err := sql.Open("postgres", cli.MetricsDBConnectionString)
	if err != nil {
		log.LogNoJobID("failed to open job store database", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cli.JobConcurrency * 2)
	db.SetMaxIdleConns(cli.JobConcurrency)
	db.SetConnMaxLifetime(time.Hour)
	jobStore := store.NewJobStore(db)

	var redisMemo *cache.RedisMemo
	if cli.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cli.RedisAddr})
		redisMemo = cache.NewRedisMemo(redisClient, 10*time.Minute)
	}

	primaryBackend := storage.NewDriversBackend(cli.PrimaryBucketURL)
	var secondaryBackend storage.Backend
	if cli.SecondaryBucketURL != "" {
		s3Backend, err := storage.NewS3Backend(cli.SecondaryBucketURL, "")
		if err != nil {
			log.LogNoJobID("failed to configure secondary storage backend", "err", err)
			os.Exit(1)
		}
		secondaryBackend = s3Backend
	}
	gateway := storage.NewGateway(primaryBackend, secondaryBackend, redisMemo, cli.ScratchDir)

	calibrationStore, err := calibration.NewStore(cli.CalibrationWeightsPath)
	if err != nil {
		log.LogNoJobID("failed to load calibration weights", "err", err)
		os.Exit(1)
	}

	sched := scheduler.New(nil, jobStore, cli.JobConcurrency)

	executor := render.New(cli.FFMPEGBin, sched, sched.IsCanceled)

	coordinator := &pipeline.Coordinator{
		Store:       jobStore,
		Storage:     gateway,
		Scheduler:   sched,
		Prober:      probe.New(),
		Extractors:  signals.New(cli.FFMPEGBin, cli.TextDensityModelBin, cli.EmotionModelBin),
		Transcriber: transcript.NewTranscriber(cli.WhisperBin, cli.WhisperModel, cli.WhisperArgs),
		Executor:    executor,
		Calibration: calibrationStore,
		ScratchDir:  cli.ScratchDir,
	}
	sched.SetRunner(coordinator)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf("0.0.0.0:%d", cli.PromPort)
		log.LogNoJobID("serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.LogNoJobID("metrics listener stopped", "err", err)
		}
	}()

	log.LogNoJobID("retention engine starting", "concurrency", cli.JobConcurrency)
	sched.Run(ctx)
	log.LogNoJobID("retention engine shutdown complete")
}

// applyCliOverrides copies flag-parsed values into the package-level config
// vars the domain packages read from directly, mirroring the teacher's
// `config.MaxInFlightJobs = cli.XXX` assignment style in main.go.
func applyCliOverrides(cli config.Cli) {
	if cli.FFMPEGFilterThreads > 0 {
		config.FFMPEGFilterThreads = cli.FFMPEGFilterThreads
	}
	if cli.FFMPEGPreset != "" {
		config.FFMPEGPreset = cli.FFMPEGPreset
	}
	if cli.FFMPEGCRF > 0 {
		config.FFMPEGCRF = cli.FFMPEGCRF
	}
	if cli.FFMPEGAudioBitrate != "" {
		config.FFMPEGAudioBitrate = cli.FFMPEGAudioBitrate
	}
	if cli.FFMPEGAudioSampleRate > 0 {
		config.FFMPEGAudioSampleRate = cli.FFMPEGAudioSampleRate
	}
	if cli.HookCalibrationLookbackJobs > 0 {
		config.HookCalibrationLookbackJobs = cli.HookCalibrationLookbackJobs
	}
	config.DisableFaceDetection = cli.DisableFaceDetection
	config.DisableTextDensity = cli.DisableTextDensity
	config.DisableEmotionModel = cli.DisableEmotionModel
	if cli.WhisperBin != "" {
		config.WhisperBin = cli.WhisperBin
	}
	if cli.WhisperModel != "" {
		config.WhisperModel = cli.WhisperModel
	}
	config.WhisperArgs = cli.WhisperArgs
	config.TextDensityModelBin = cli.TextDensityModelBin
	if cli.TesseractBin != "" {
		config.TesseractBin = cli.TesseractBin
	}
	config.EnableTesseract = cli.EnableTesseract
	config.EmotionModelBin = cli.EmotionModelBin
	config.WatermarkImagePath = cli.WatermarkImagePath
	if cli.JobQueueRecoveryIntervalMS > 0 {
		config.JobQueueRecoveryInterval = time.Duration(cli.JobQueueRecoveryIntervalMS) * time.Millisecond
	}
	if cli.StalePipelineMS > 0 {
		config.StalePipelineThreshold = time.Duration(cli.StalePipelineMS) * time.Millisecond
	}
}
