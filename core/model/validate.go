package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// CheckFit validates a training pair: non-empty X, one 0/1 label per row.
func CheckFit(op string, X mat.Matrix, y *mat.VecDense) (rows, cols int, err error) {
	if X == nil || y == nil {
		return 0, 0, errors.NewValueError(op, "X and y must not be nil")
	}
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "%s", op)
	}
	if y.Len() != rows {
		return 0, 0, errors.NewDimensionError(op, rows, y.Len(), 0)
	}
	for i := 0; i < rows; i++ {
		if _, err := BinaryLabel(y.AtVec(i)); err != nil {
			return 0, 0, errors.Wrapf(err, "%s: row %d", op, i)
		}
	}
	return rows, cols, nil
}

// CheckPredict validates the feature count of X against the fitted width. It returns
// the number of rows; zero rows are accepted.
func CheckPredict(op string, X mat.Matrix, nFeatures int) (int, error) {
	if X == nil {
		return 0, errors.NewValueError(op, "X must not be nil")
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return 0, nil
	}
	if cols != nFeatures {
		return 0, errors.NewDimensionError(op, nFeatures, cols, 1)
	}
	return rows, nil
}

// BinaryLabel converts a stored label to 0 or 1.
func BinaryLabel(v float64) (int, error) {
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	default:
		return 0, errors.Wrapf(errors.ErrNonBinaryLabel, "got %v", v)
	}
}
