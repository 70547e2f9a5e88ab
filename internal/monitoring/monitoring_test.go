package monitoring

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/holdout/metrics"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveFit(120, 2*time.Second)
	m.ObserveFit(30, time.Second)
	assert.Equal(t, 150.0, testutil.ToFloat64(m.RowsFitted))

	res := metrics.FromConfusion(metrics.ConfusionMatrix{TP: 2, FP: 1, TN: 1})
	m.ObserveWindow("jul.csv", res, 10*time.Millisecond)
	m.ObserveWindowError()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetsEvaluated.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetsEvaluated.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RowsEvaluated))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.WindowScore.WithLabelValues("jul.csv", "accuracy")))
	assert.InDelta(t, 0.8, testutil.ToFloat64(m.WindowScore.WithLabelValues("jul.csv", "f1")), 1e-12)

	m.ObserveDrift(true, false)
	m.ObserveDrift(true, true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DriftEvents.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriftEvents.WithLabelValues("drift")))

	m.PersistenceFailed("file")
	m.ArtifactSaved(2048)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("file")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.ArtifactBytes))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFit(1, time.Second)
	m.ObserveWindow("x", metrics.EvaluationResult{}, 0)
	m.ObserveWindowError()
	m.ObserveDrift(true, true)
	m.PersistenceFailed("bolt")
	m.ArtifactSaved(1)
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveFit(10, time.Second)

	path := filepath.Join(t.TempDir(), "holdout.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "holdout_rows_fitted_total 10")
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg, reg)
	assert.Panics(t, func() { NewWithRegistry(reg, reg) }, "double registration must panic")
}
