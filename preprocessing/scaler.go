// Package preprocessing provides feature transformers used inside the classifiers.
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// StandardScaler standardises features to zero mean and unit variance.
// Exported fields are part of the owning model's snapshot.
type StandardScaler struct {
	Mean      []float64
	Scale     []float64
	NFeatures int
	WithMean  bool
	WithStd   bool
	Fitted    bool
}

// NewStandardScaler returns an unfitted scaler.
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd}
}

// NewStandardScalerDefault centers and scales.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// IsFitted reports whether Fit has completed.
func (s *StandardScaler) IsFitted() bool { return s.Fitted }

// Fit computes per-column population mean and standard deviation. Constant columns
// get a scale of 1.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if s.WithStd && std >= 1e-8 && !math.IsNaN(std) {
			s.Scale[j] = std
		}
	}

	s.Fitted = true
	return nil
}

// Transform standardises X with the fitted statistics.
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !s.Fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	rows, err := model.CheckPredict("StandardScaler.Transform", X, s.NFeatures)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}

	result := mat.NewDense(rows, s.NFeatures, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// Check reports an error when a fitted scaler cannot transform rows of nFeatures
// values, as happens with a damaged artifact.
func (s *StandardScaler) Check(nFeatures int) error {
	if !s.Fitted {
		return nil
	}
	if s.NFeatures != nFeatures || len(s.Mean) != nFeatures || len(s.Scale) != nFeatures {
		return errors.Newf("scaler holds %d means and %d scales for %d features, want %d",
			len(s.Mean), len(s.Scale), s.NFeatures, nFeatures)
	}
	for j, sc := range s.Scale {
		if sc == 0 || math.IsNaN(sc) {
			return errors.Newf("scaler has invalid scale %v for feature %d", sc, j)
		}
	}
	return nil
}

// TransformRow standardises a single row into dst, allocating when dst is nil.
func (s *StandardScaler) TransformRow(dst, x []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(x))
	}
	for j, v := range x {
		dst[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return dst
}

// FitTransform fits on X and returns the transformed X.
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardised data back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if !s.Fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	rows, err := model.CheckPredict("StandardScaler.InverseTransform", X, s.NFeatures)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}

	result := mat.NewDense(rows, s.NFeatures, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

func (s *StandardScaler) String() string {
	if !s.Fitted {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
