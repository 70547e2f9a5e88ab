// Package metrics computes classification metrics over predicted and true labels.
package metrics

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// ConfusionMatrix counts binary outcomes, with 1 as the positive class.
type ConfusionMatrix struct {
	TP, FP, TN, FN int
}

// N is the number of labelled pairs.
func (c ConfusionMatrix) N() int { return c.TP + c.FP + c.TN + c.FN }

// Add returns the element-wise sum.
func (c ConfusionMatrix) Add(o ConfusionMatrix) ConfusionMatrix {
	return ConfusionMatrix{TP: c.TP + o.TP, FP: c.FP + o.FP, TN: c.TN + o.TN, FN: c.FN + o.FN}
}

// EvaluationResult holds the metrics of one dataset. It is a value and is never
// mutated after Compute returns it.
type EvaluationResult struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	Confusion ConfusionMatrix
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r EvaluationResult) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("metrics.accuracy", r.Accuracy).
		Float64("metrics.precision", r.Precision).
		Float64("metrics.recall", r.Recall).
		Float64("metrics.f1", r.F1).
		Int("metrics.tp", r.Confusion.TP).
		Int("metrics.fp", r.Confusion.FP).
		Int("metrics.tn", r.Confusion.TN).
		Int("metrics.fn", r.Confusion.FN)
}

func (r EvaluationResult) String() string {
	return fmt.Sprintf("accuracy: %.4f recall: %.4f precision: %.4f f1: %.4f (n=%d)",
		r.Accuracy, r.Recall, r.Precision, r.F1, r.Confusion.N())
}

// Compute compares predicted with actual labels. Both must have the same length and
// hold only 0 and 1. Precision, recall and F1 are 0 when their denominator is 0; an
// UndefinedMetricWarning is dispatched in that case. Empty input yields all zeros.
func Compute(predicted, actual *mat.VecDense) (EvaluationResult, error) {
	np, na := vecLen(predicted), vecLen(actual)
	if np != na {
		return EvaluationResult{}, errors.NewLengthMismatchError("Compute", np, na)
	}

	var c ConfusionMatrix
	for i := 0; i < np; i++ {
		p, a := predicted.AtVec(i), actual.AtVec(i)
		if (p != 0 && p != 1) || (a != 0 && a != 1) {
			return EvaluationResult{}, errors.NewValueError("Compute",
				fmt.Sprintf("labels must be 0 or 1, got predicted=%v actual=%v at index %d", p, a, i))
		}
		switch {
		case p == 1 && a == 1:
			c.TP++
		case p == 1:
			c.FP++
		case a == 1:
			c.FN++
		default:
			c.TN++
		}
	}
	return FromConfusion(c), nil
}

func vecLen(v *mat.VecDense) int {
	if v == nil {
		return 0
	}
	return v.Len()
}

// FromConfusion derives the metrics from outcome counts.
func FromConfusion(c ConfusionMatrix) EvaluationResult {
	r := EvaluationResult{Confusion: c}
	n := c.N()
	if n == 0 {
		return r
	}
	r.Accuracy = float64(c.TP+c.TN) / float64(n)

	if c.TP+c.FP > 0 {
		r.Precision = float64(c.TP) / float64(c.TP+c.FP)
	} else {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted positives", 0))
	}
	if c.TP+c.FN > 0 {
		r.Recall = float64(c.TP) / float64(c.TP+c.FN)
	} else {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no actual positives", 0))
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}

// Pool merges per-dataset results into one result over all their pairs.
func Pool(results ...EvaluationResult) EvaluationResult {
	var c ConfusionMatrix
	for _, r := range results {
		c = c.Add(r.Confusion)
	}
	return FromConfusion(c)
}
