// Package monitoring exposes Prometheus collectors for training, evaluation and
// persistence. Batch runs export them once through a node_exporter textfile.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuminosukeSato/holdout/metrics"
)

const namespace = "holdout"

// Metrics holds the collectors. All methods are safe on a nil *Metrics, which
// disables monitoring.
type Metrics struct {
	gatherer prometheus.Gatherer

	RowsFitted          prometheus.Counter      // rows consumed by Fit
	FitDuration         prometheus.Histogram    // wall time of one Fit
	DatasetsEvaluated   *prometheus.CounterVec  // by outcome: ok, error
	RowsEvaluated       prometheus.Counter      // rows predicted across all windows
	PredictionLatency   prometheus.Histogram    // per-dataset load+predict time
	WindowScore         *prometheus.GaugeVec    // by source and metric
	DriftEvents         *prometheus.CounterVec  // by level: warning, drift
	PersistenceFailures *prometheus.CounterVec  // by backend
	ArtifactBytes       prometheus.Gauge        // size of the last saved artifact
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on registerer; gatherer is used by
// WriteTextfile and may be nil when no export is needed.
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		gatherer: gatherer,
		RowsFitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_fitted_total",
			Help:      "Total number of training rows consumed by Fit",
		}),
		FitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of model fitting in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		DatasetsEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_evaluated_total",
			Help:      "Holdout datasets evaluated, by outcome",
		}, []string{"outcome"}),
		RowsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_evaluated_total",
			Help:      "Total number of holdout rows predicted",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_latency_seconds",
			Help:      "Time to load and predict one holdout dataset",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10, 30},
		}),
		WindowScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_score",
			Help:      "Classification metric of a holdout dataset",
		}, []string{"source", "metric"}),
		DriftEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_events_total",
			Help:      "Holdout datasets in which the drift detector warned or fired",
		}, []string{"level"}),
		PersistenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Artifact writes that failed, by backend",
		}, []string{"backend"}),
		ArtifactBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last saved model artifact",
		}),
	}
}

// ObserveFit records one completed fit.
func (m *Metrics) ObserveFit(rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.RowsFitted.Add(float64(rows))
	m.FitDuration.Observe(d.Seconds())
}

// ObserveWindow records a successfully evaluated dataset.
func (m *Metrics) ObserveWindow(source string, r metrics.EvaluationResult, d time.Duration) {
	if m == nil {
		return
	}
	m.DatasetsEvaluated.WithLabelValues("ok").Inc()
	m.RowsEvaluated.Add(float64(r.Confusion.N()))
	m.PredictionLatency.Observe(d.Seconds())
	m.WindowScore.WithLabelValues(source, "accuracy").Set(r.Accuracy)
	m.WindowScore.WithLabelValues(source, "precision").Set(r.Precision)
	m.WindowScore.WithLabelValues(source, "recall").Set(r.Recall)
	m.WindowScore.WithLabelValues(source, "f1").Set(r.F1)
}

// ObserveWindowError records a dataset that failed to evaluate.
func (m *Metrics) ObserveWindowError() {
	if m == nil {
		return
	}
	m.DatasetsEvaluated.WithLabelValues("error").Inc()
}

// ObserveDrift records the detector outcome of one dataset.
func (m *Metrics) ObserveDrift(warning, drift bool) {
	if m == nil {
		return
	}
	if warning {
		m.DriftEvents.WithLabelValues("warning").Inc()
	}
	if drift {
		m.DriftEvents.WithLabelValues("drift").Inc()
	}
}

// PersistenceFailed counts a failed artifact write.
func (m *Metrics) PersistenceFailed(backend string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(backend).Inc()
}

// ArtifactSaved records the size of a written artifact.
func (m *Metrics) ArtifactSaved(size int) {
	if m == nil {
		return
	}
	m.ArtifactBytes.Set(float64(size))
}

// WriteTextfile writes all gathered metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || m.gatherer == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}
