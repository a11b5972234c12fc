// Package metrics provides Prometheus metrics for video2article.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished conversion jobs by outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video2article",
			Name:      "jobs_total",
			Help:      "Total number of conversion jobs by outcome",
		},
		[]string{"outcome"},
	)

	// StageDuration measures how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "video2article",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	// StageErrorsTotal counts failed stages by error kind.
	StageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video2article",
			Name:      "stage_errors_total",
			Help:      "Total number of failed pipeline stages",
		},
		[]string{"stage", "kind"},
	)

	// ArticleSections observes how many sections generated articles have.
	ArticleSections = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "video2article",
			Name:      "article_sections",
			Help:      "Distribution of section counts per generated article",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// JobRunning is 1 while a conversion job is active.
	JobRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "video2article",
			Name:      "job_running",
			Help:      "Whether a conversion job is currently running (1 = running)",
		},
	)
)

// RecordStage records a finished stage and, when kind is set, its failure.
func RecordStage(stage, kind string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
	if kind != "" {
		StageErrorsTotal.WithLabelValues(stage, kind).Inc()
	}
}

// RecordJob records the outcome of a finished job.
func RecordJob(outcome string) {
	JobsTotal.WithLabelValues(outcome).Inc()
}

// RecordArticle records the section count of a generated article.
func RecordArticle(sections int) {
	ArticleSections.Observe(float64(sections))
}

// SetJobRunning toggles the running gauge.
func SetJobRunning(running bool) {
	if running {
		JobRunning.Set(1)
		return
	}
	JobRunning.Set(0)
}
