package metrics

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// scoredWindow draws n labels with the given positive rate and captured
// probabilities that lean towards the true class. Probabilities are rounded to two
// decimals so windows contain ties.
func scoredWindow(n int, positiveRate float64, seed uint64) (actual, proba *mat.VecDense) {
	rng := rand.New(rand.NewPCG(seed, 3))
	actual = mat.NewVecDense(n, nil)
	proba = mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y := 0.0
		if rng.Float64() < positiveRate {
			y = 1
		}
		logit := 1.5*(2*y-1) + rng.NormFloat64()
		p := 1 / (1 + math.Exp(-logit))
		actual.SetVec(i, y)
		proba.SetVec(i, math.Round(p*100)/100)
	}
	return actual, proba
}

// pairwiseAUC counts correctly ordered positive/negative pairs, ties counting half.
func pairwiseAUC(actual, proba *mat.VecDense) float64 {
	var ordered, pairs float64
	for i := 0; i < actual.Len(); i++ {
		if actual.AtVec(i) != 1 {
			continue
		}
		for j := 0; j < actual.Len(); j++ {
			if actual.AtVec(j) != 0 {
				continue
			}
			pairs++
			switch pi, pj := proba.AtVec(i), proba.AtVec(j); {
			case pi > pj:
				ordered++
			case pi == pj:
				ordered += 0.5
			}
		}
	}
	return ordered / pairs
}

func TestAUC_MatchesPairwiseCount(t *testing.T) {
	for _, tc := range []struct {
		name string
		n    int
		rate float64
	}{
		{"july", 80, 0.3},
		{"august", 250, 0.1},
		{"september", 33, 0.6},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, proba := scoredWindow(tc.n, tc.rate, uint64(tc.n))
			got, err := AUC(actual, proba)
			require.NoError(t, err)
			assert.InDelta(t, pairwiseAUC(actual, proba), got, 1e-12)
			assert.Greater(t, got, 0.7, "scores lean towards the true class")
		})
	}
}

func TestAUC_SmallWindows(t *testing.T) {
	tests := []struct {
		name   string
		actual *mat.VecDense
		proba  *mat.VecDense
		want   float64
	}{
		{"separated", vec(0, 1, 0, 1), vec(0.2, 0.9, 0.1, 0.6), 1},
		{"inverted", vec(1, 0, 1), vec(0.1, 0.8, 0.3), 0},
		{"all tied", vec(1, 0, 0, 1), vec(0.5, 0.5, 0.5, 0.5), 0.5},
		{"partial tie", vec(1, 0, 1, 0, 1), vec(0.9, 0.2, 0.4, 0.4, 0.7), 5.5 / 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(tt.actual, tt.proba)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUC_IgnoresMonotoneRescaling(t *testing.T) {
	actual, proba := scoredWindow(120, 0.4, 9)
	base, err := AUC(actual, proba)
	require.NoError(t, err)

	cubed := mat.NewVecDense(proba.Len(), nil)
	for i := 0; i < proba.Len(); i++ {
		cubed.SetVec(i, math.Pow(proba.AtVec(i), 3))
	}
	got, err := AUC(actual, cubed)
	require.NoError(t, err)
	assert.InDelta(t, base, got, 1e-12)
}

func TestAUC_SingleClassWindow(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
	defer errors.SetZerologWarnFunc(nil)

	got, err := AUC(vec(0, 0, 0), vec(0.1, 0.7, 0.4))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
	require.Len(t, warnings, 1)
	var undefined *errors.UndefinedMetricWarning
	require.ErrorAs(t, warnings[0], &undefined)
	assert.Equal(t, "AUC", undefined.Metric)
}

func TestBinaryLogLoss_Window(t *testing.T) {
	got, err := BinaryLogLoss(vec(1, 0, 1), vec(0.8, 0.3, 0.6))
	require.NoError(t, err)
	want := -(math.Log(0.8) + math.Log(0.7) + math.Log(0.6)) / 3
	assert.InDelta(t, want, got, 1e-12)

	actual, proba := scoredWindow(200, 0.5, 4)
	informed, err := BinaryLogLoss(actual, proba)
	require.NoError(t, err)
	flat := mat.NewVecDense(actual.Len(), nil)
	for i := 0; i < flat.Len(); i++ {
		flat.SetVec(i, 0.5)
	}
	uninformed, err := BinaryLogLoss(actual, flat)
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, uninformed, 1e-12)
	assert.Less(t, informed, uninformed)
}

func TestBinaryLogLoss_SingleClassWindow(t *testing.T) {
	confident, err := BinaryLogLoss(vec(1, 1, 1), vec(1, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0, confident, 1e-12)

	wrong, err := BinaryLogLoss(vec(0, 0), vec(1, 1))
	require.NoError(t, err)
	assert.False(t, math.IsInf(wrong, 0), "probabilities are clipped")
	assert.InDelta(t, -math.Log(logLossEps), wrong, 1e-2)
}

func TestWindowMetrics_Errors(t *testing.T) {
	for name, fn := range map[string]func(a, b *mat.VecDense) (float64, error){
		"AUC":           AUC,
		"BinaryLogLoss": BinaryLogLoss,
	} {
		t.Run(name, func(t *testing.T) {
			var dimErr *errors.DimensionError
			_, err := fn(vec(1, 0, 1), vec(0.2, 0.4))
			require.ErrorAs(t, err, &dimErr)

			var valErr *errors.ValueError
			_, err = fn(nil, vec(0.5))
			require.ErrorAs(t, err, &valErr)

			_, err = fn(vec(), vec())
			require.ErrorAs(t, err, &valErr)

			_, err = fn(vec(1, 2), vec(0.5, 0.5))
			require.ErrorAs(t, err, &valErr)
		})
	}
}
