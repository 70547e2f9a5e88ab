package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// DefaultThreshold is the cut point used when none is configured.
const DefaultThreshold = 0.5

// ValidateThreshold accepts any value in [0, 1]. A threshold of 0 labels every row
// with positive probability as 1, and 1 labels every row as 0; both are allowed.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return errors.NewValidationError("threshold", "must be within [0, 1]", t)
	}
	return nil
}

// ApplyThreshold maps probabilities to labels: 1 iff p > t.
func ApplyThreshold(proba *mat.VecDense, t float64) *mat.VecDense {
	n := proba.Len()
	if n == 0 {
		return &mat.VecDense{}
	}
	labels := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if proba.AtVec(i) > t {
			labels.SetVec(i, 1)
		}
	}
	return labels
}

// CountPositives returns the number of rows labelled 1.
func CountPositives(labels *mat.VecDense) int {
	if labels == nil {
		return 0
	}
	count := 0
	for i := 0; i < labels.Len(); i++ {
		if labels.AtVec(i) == 1 {
			count++
		}
	}
	return count
}
