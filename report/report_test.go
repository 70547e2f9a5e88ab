package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/evaluation"
	"github.com/YuminosukeSato/holdout/metrics"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/trainer"
)

func histogram(t *testing.T) *evaluation.ProbaHistogram {
	t.Helper()
	proba := mat.NewVecDense(6, []float64{0.05, 0.1, 0.2, 0.7, 0.8, 0.95})
	actual := mat.NewVecDense(6, []float64{0, 0, 1, 0, 1, 1})
	h, err := evaluation.NewProbaHistogram("data/2020-07.csv", proba, actual, 10)
	require.NoError(t, err)
	return h
}

func TestWriteResults(t *testing.T) {
	r := &trainer.Report{
		RunID:       "run-1",
		Algorithm:   "adaptive_random_forest",
		Kind:        model.KindIncremental,
		TrainRows:   1000,
		FitDuration: 1500 * time.Millisecond,
		Persistence: errors.NewPersistenceWriteWarning("file", "/ro/model.holdout", errors.New("read-only file system")),
		Results: []trainer.DatasetResult{
			{Index: 0, Source: "jul.csv", Result: metrics.FromConfusion(metrics.ConfusionMatrix{TP: 2, FP: 1, TN: 1})},
			{Index: 1, Source: "aug.csv", Result: metrics.FromConfusion(metrics.ConfusionMatrix{TP: 1, TN: 3}),
				Scored: true, AUC: 0.9, LogLoss: 0.25, Drift: &evaluation.WindowDrift{Warning: true}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "run run-1")
	assert.Contains(t, out, "artifact NOT saved")
	assert.Contains(t, out, "jul.csv")
	assert.Contains(t, out, "0.7500")
	assert.Contains(t, out, "0.9000")
	assert.Contains(t, out, "warning")
	assert.Contains(t, out, "pooled")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, len(lines[len(lines)-1]), len(lines[len(lines)-2]), "table columns are aligned")
}

func TestWriteHistogram(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistogram(&buf, histogram(t), 10))
	out := buf.String()

	assert.Contains(t, out, "3 positive and 3 negative rows")
	assert.Contains(t, out, "[0.90, 1.00)")
	assert.NotContains(t, out, "[0.30, 0.40)", "empty bins are skipped")
	assert.Contains(t, out, "1 ########## 1")
}

func TestPlotProbaDistribution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proba.png")
	require.NoError(t, PlotProbaDistribution(path, histogram(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "a PNG image is written")

	err = PlotProbaDistribution(path, &evaluation.ProbaHistogram{})
	var valueErr *errors.ValueError
	assert.ErrorAs(t, err, &valueErr)
}

func TestPlotPath(t *testing.T) {
	assert.Equal(t, "out/proba_00_2020-07.png", PlotPath("out/proba.png", 0, "data/2020-07.csv"))
	assert.Equal(t, "proba_12_a_b.png", PlotPath("proba", 12, "a b.csv"))
}
