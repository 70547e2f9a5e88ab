package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Frozen is a read-only view of a fitted classifier. It exposes only the Predictor
// methods, and Freeze marks the underlying StateManager so that later Fit or
// LearnOne calls on the original reference fail.
type Frozen struct {
	p Predictor
}

var _ Predictor = (*Frozen)(nil)

// Freeze hands a fitted classifier over to readers.
func Freeze(clf Classifier) (*Frozen, error) {
	if clf == nil {
		return nil, errors.NewValueError("Freeze", "classifier must not be nil")
	}
	if !clf.IsFitted() {
		return nil, errors.NewNotFittedError(clf.Algorithm(), "Freeze")
	}
	if s, ok := clf.(Stateful); ok {
		s.State().Freeze()
	}
	return &Frozen{p: clf}, nil
}

func (f *Frozen) Predict(X mat.Matrix, threshold float64) (*mat.VecDense, error) {
	return f.p.Predict(X, threshold)
}

func (f *Frozen) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	return f.p.PredictProba(X)
}

func (f *Frozen) IsFitted() bool    { return true }
func (f *Frozen) Algorithm() string { return f.p.Algorithm() }
func (f *Frozen) Kind() Kind        { return f.p.Kind() }
