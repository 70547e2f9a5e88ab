package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// FitOption configures Train and FitIncremental.
type FitOption func(*fitOptions)

type fitOptions struct {
	progress func(done, total int)
}

// WithProgress reports after every learned row of an incremental fit, and once at the
// end of a batch fit.
func WithProgress(fn func(done, total int)) FitOption {
	return func(o *fitOptions) { o.progress = fn }
}

// FitIncremental feeds the rows of X to clf.LearnOne strictly in row order. The row
// slice passed to LearnOne is reused between calls.
func FitIncremental(clf IncrementalClassifier, X mat.Matrix, y *mat.VecDense, opts ...FitOption) error {
	var o fitOptions
	for _, opt := range opts {
		opt(&o)
	}

	rows, cols, err := CheckFit("Fit", X, y)
	if err != nil {
		return err
	}

	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		if err := clf.LearnOne(row, int(y.AtVec(i))); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
		if o.progress != nil {
			o.progress(i+1, rows)
		}
	}
	return nil
}

// Train fits clf on the full table. Incremental classifiers are driven row by row
// so that progress can be observed; batch classifiers get a single Fit call.
func Train(clf Classifier, X mat.Matrix, y *mat.VecDense, opts ...FitOption) error {
	if inc, ok := clf.(IncrementalClassifier); ok && clf.Kind() == KindIncremental {
		return FitIncremental(inc, X, y, opts...)
	}

	var o fitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := clf.Fit(X, y); err != nil {
		return err
	}
	if o.progress != nil {
		rows, _ := X.Dims()
		o.progress(rows, rows)
	}
	return nil
}
