// Package metrics exposes the prometheus instrumentation of the data
// pipeline and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuraltailor_sim_stage_total",
		Help: "Datapoint stage executions by stage and outcome",
	}, []string{"stage", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neuraltailor_sim_stage_duration_seconds",
		Help:    "Per-datapoint stage duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	StageRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuraltailor_sim_stage_retries_total",
		Help: "Stage retry attempts by stage",
	}, []string{"stage"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "neuraltailor_queue_depth",
		Help: "Pending entries per work queue",
	}, []string{"queue"})

	DatasetRescansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuraltailor_dataset_rescans_total",
		Help: "Dataset rescan triggers by outcome",
	}, []string{"outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuraltailor_http_requests_total",
		Help: "HTTP requests by route and status class",
	}, []string{"route", "status"})

	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuraltailor_download_bytes_total",
		Help: "Bytes fetched by the artifact downloader",
	})

	DatasetsIndexed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neuraltailor_datasets_indexed",
		Help: "Datasets known to the index after the last rescan",
	})

	DatapointsIndexed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neuraltailor_datapoints_indexed",
		Help: "Datapoints known to the index after the last rescan",
	})

	RecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuraltailor_recoveries_total",
		Help: "Pattern recoveries from prediction dumps by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neuraltailor_http_request_duration_seconds",
		Help:    "HTTP request duration by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Stage outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFail    = "fail"
	OutcomeSkipped = "skipped"
)

// IncStage records one stage execution.
func IncStage(stage, outcome string) {
	if stage == "" {
		stage = "unknown"
	}
	StageRunsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveStage records a stage duration in seconds.
func ObserveStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncStageRetry records a retry attempt.
func IncStageRetry(stage string) {
	StageRetriesTotal.WithLabelValues(stage).Inc()
}
