package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the detection engine and the classifier job.
type Metrics struct {
	// Detection runs by operation and outcome
	Runs *prometheus.CounterVec

	RunDuration *prometheus.HistogramVec

	// Conflicts written by type and severity
	ConflictsCreated *prometheus.CounterVec

	// Distribution of content similarity scores against candidates
	ContentScores prometheus.Histogram

	SkippedCandidates *prometheus.CounterVec

	TextCache *prometheus.CounterVec // result: "hit", "miss"

	ClassifierAccuracy prometheus.Gauge
}

// New registers detection metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landreg_detection_runs_total",
			Help: "Detection runs by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: "ok", "not_found", "error"

		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landreg_detection_run_duration_seconds",
			Help:    "Duration of a detection run including its transaction",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		ConflictsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landreg_conflicts_created_total",
			Help: "Conflict records created by type and severity",
		}, []string{"type", "severity"}),

		ContentScores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "landreg_content_similarity_score",
			Help:    "Content similarity scores between a document and its candidates",
			Buckets: []float64{0.1, 0.25, 0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		}),

		SkippedCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landreg_detection_skipped_total",
			Help: "Inputs skipped during detection by reason",
		}, []string{"reason"}),

		TextCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landreg_extraction_cache_total",
			Help: "Extracted text cache lookups by result",
		}, []string{"result"}),

		ClassifierAccuracy: f.NewGauge(prometheus.GaugeOpts{
			Name: "landreg_classifier_holdout_accuracy",
			Help: "Held-out accuracy of the last trained conflict classifier",
		}),
	}
}

func (m *Metrics) IncrementRun(operation, outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) ObserveRunDuration(operation string, d time.Duration) {
	if m != nil {
		m.RunDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementConflict(conflictType, severity string) {
	if m != nil {
		m.ConflictsCreated.WithLabelValues(conflictType, severity).Inc()
	}
}

func (m *Metrics) ObserveContentScore(score float64) {
	if m != nil {
		m.ContentScores.Observe(score)
	}
}

// IncrementSkipped counts an input dropped as recoverable bad data.
func (m *Metrics) IncrementSkipped(reason string) {
	if m != nil {
		m.SkippedCandidates.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementCacheHit() {
	if m != nil {
		m.TextCache.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) IncrementCacheMiss() {
	if m != nil {
		m.TextCache.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) SetClassifierAccuracy(acc float64) {
	if m != nil {
		m.ClassifierAccuracy.Set(acc)
	}
}
