package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

func vec(v ...float64) *mat.VecDense {
	if len(v) == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(len(v), v)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		predicted *mat.VecDense
		actual    *mat.VecDense
		want      EvaluationResult
	}{
		{
			name:      "mixed outcomes",
			predicted: vec(1, 0, 1, 1),
			actual:    vec(1, 0, 0, 1),
			want: EvaluationResult{
				Accuracy: 0.75, Precision: 2.0 / 3.0, Recall: 1, F1: 0.8,
				Confusion: ConfusionMatrix{TP: 2, FP: 1, TN: 1},
			},
		},
		{
			name:      "identical with positives",
			predicted: vec(1, 0, 1),
			actual:    vec(1, 0, 1),
			want: EvaluationResult{
				Accuracy: 1, Precision: 1, Recall: 1, F1: 1,
				Confusion: ConfusionMatrix{TP: 2, TN: 1},
			},
		},
		{
			name:      "identical without positives",
			predicted: vec(0, 0, 0),
			actual:    vec(0, 0, 0),
			want:      EvaluationResult{Accuracy: 1, Confusion: ConfusionMatrix{TN: 3}},
		},
		{
			name:      "all wrong",
			predicted: vec(1, 0),
			actual:    vec(0, 1),
			want:      EvaluationResult{Confusion: ConfusionMatrix{FP: 1, FN: 1}},
		},
		{
			name:      "empty",
			predicted: vec(),
			actual:    vec(),
			want:      EvaluationResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.predicted, tt.actual)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Accuracy, got.Accuracy, 1e-12)
			assert.InDelta(t, tt.want.Precision, got.Precision, 1e-12)
			assert.InDelta(t, tt.want.Recall, got.Recall, 1e-12)
			assert.InDelta(t, tt.want.F1, got.F1, 1e-12)
			assert.Equal(t, tt.want.Confusion, got.Confusion)
		})
	}
}

func TestCompute_AccuracyIsMatchFraction(t *testing.T) {
	predicted := []float64{1, 1, 0, 0, 1, 0, 1, 0, 0, 1}
	actual := []float64{1, 0, 0, 1, 1, 0, 0, 0, 1, 1}
	matches := 0
	for i := range predicted {
		if predicted[i] == actual[i] {
			matches++
		}
	}
	got, err := Compute(vec(predicted...), vec(actual...))
	require.NoError(t, err)
	assert.InDelta(t, float64(matches)/float64(len(actual)), got.Accuracy, 1e-12)
}

func TestCompute_Errors(t *testing.T) {
	_, err := Compute(vec(1, 0, 1), vec(1, 0))
	var lenErr *errors.LengthMismatchError
	require.ErrorAs(t, err, &lenErr)
	assert.Equal(t, 3, lenErr.Predicted)
	assert.Equal(t, 2, lenErr.Actual)

	_, err = Compute(vec(1, 2), vec(1, 0))
	var valErr *errors.ValueError
	require.ErrorAs(t, err, &valErr)

	_, err = Compute(nil, vec(1))
	require.ErrorAs(t, err, &lenErr)
}

func TestCompute_UndefinedMetricWarns(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
	defer errors.SetZerologWarnFunc(nil)

	_, err := Compute(vec(0, 0), vec(0, 1))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Error(), "precision")
}

func TestPool(t *testing.T) {
	a, err := Compute(vec(1, 0), vec(1, 1))
	require.NoError(t, err)
	b, err := Compute(vec(1, 1), vec(0, 1))
	require.NoError(t, err)

	pooled := Pool(a, b)
	assert.Equal(t, ConfusionMatrix{TP: 2, FP: 1, FN: 1}, pooled.Confusion)
	assert.InDelta(t, 0.5, pooled.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3.0, pooled.Precision, 1e-12)
}
