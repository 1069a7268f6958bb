package metrics

import (
	"github.com/livepeer/retention-engine/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics groups retry/failure/latency metrics for any retried client,
// the same shape the teacher uses for its broadcaster/object-store clients.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// PipelineMetrics tracks job throughput and per-stage duration.
type PipelineMetrics struct {
	Count        *prometheus.CounterVec
	Duration     *prometheus.SummaryVec
	StageSeconds *prometheus.HistogramVec
}

type RetentionEngineMetrics struct {
	Version *prometheus.CounterVec

	JobsInFlight  prometheus.Gauge
	QueueDepth    prometheus.Gauge
	ActiveWorkers prometheus.Gauge

	Pipeline PipelineMetrics

	StorageClient   ClientMetrics
	ProbeClient     ClientMetrics
	RenderExecClient ClientMetrics

	RetryAttempts     *prometheus.CounterVec
	QualityGateResult *prometheus.CounterVec
	QualityGateOverride prometheus.Counter
	HookAuditPassRate *prometheus.CounterVec

	CalibrationSampleCount prometheus.Gauge
}

var stageLabels = []string{"step", "status"}

func NewMetrics() *RetentionEngineMetrics {
	m := &RetentionEngineMetrics{
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current Git SHA / Tag that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "A count of the jobs currently being processed",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "A count of the jobs currently queued, not yet running",
		}),
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "A count of the scheduler worker slots currently in use",
		}),

		Pipeline: PipelineMetrics{
			Count: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_count",
				Help: "Number of pipeline runs that reached a terminal status, by status",
			}, []string{"status", "strategy", "content_format"}),
			Duration: promauto.NewSummaryVec(prometheus.SummaryOpts{
				Name: "pipeline_duration_seconds",
				Help: "Time taken for a pipeline run to reach a terminal status",
			}, []string{"status"}),
			StageSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Time taken per pipeline step",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			}, stageLabels),
		},

		StorageClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "storage_client_retry_count",
				Help: "The number of retried object store requests",
			}, []string{"backend", "operation"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "storage_client_failure_count",
				Help: "The total number of failed object store requests",
			}, []string{"backend", "operation"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "storage_client_request_duration_seconds",
				Help:    "Time taken to complete object store requests",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"backend", "operation"}),
		},

		ProbeClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "probe_client_retry_count",
				Help: "The number of retried ffprobe invocations",
			}, []string{"stage"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "probe_client_failure_count",
				Help: "The total number of failed ffprobe invocations",
			}, []string{"stage"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "probe_client_duration_seconds",
				Help:    "Time taken for ffprobe invocations",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			}, []string{"stage"}),
		},

		RenderExecClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "render_exec_retry_count",
				Help: "The number of render fallback attempts",
			}, []string{"fallback"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "render_exec_failure_count",
				Help: "The total number of failed render attempts, by fallback stage",
			}, []string{"fallback"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "render_exec_duration_seconds",
				Help:    "Time taken for a render invocation",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			}, []string{"fallback"}),
		},

		RetryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retry_orchestrator_attempts",
			Help: "Number of strategy-variant attempts made by the retry orchestrator",
		}, []string{"strategy", "passed"}),

		QualityGateResult: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quality_gate_result",
			Help: "Terminal result of the quality gate loop",
		}, []string{"result"}),

		QualityGateOverride: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quality_gate_override_total",
			Help: "Number of jobs completed via an override-pass or forced rescue render",
		}),

		HookAuditPassRate: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hook_audit_result",
			Help: "Hook audit pass/fail counts",
		}, []string{"passed"}),

		CalibrationSampleCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "calibration_sample_count",
			Help: "Number of completed jobs used in the most recent calibration computation",
		}),
	}

	m.Version.WithLabelValues("retention-engine", config.Version).Inc()

	return m
}

var Metrics = NewMetrics()
