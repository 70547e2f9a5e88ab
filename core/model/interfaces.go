// Package model defines the classifier contract shared by batch and incremental
// algorithms, together with the threshold policy, the algorithm registry and the
// versioned artifact codec.
package model

import (
	"encoding"

	"gonum.org/v1/gonum/mat"
)

// Kind tells whether a classifier is trained once on a table or one row at a time.
type Kind int

const (
	// KindBatch classifiers are fitted once over a complete in-memory table.
	KindBatch Kind = iota
	// KindIncremental classifiers update their state after every row, in arrival order.
	KindIncremental
)

func (k Kind) String() string {
	switch k {
	case KindBatch:
		return "batch"
	case KindIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Predictor is the read-only half of a classifier. Implementations must not mutate
// state in any of these methods so that a fitted model can serve concurrent callers.
type Predictor interface {
	// Predict returns a 0/1 label per row. Probabilistic models emit 1 iff
	// P(class=1) > threshold.
	Predict(X mat.Matrix, threshold float64) (*mat.VecDense, error)

	// PredictProba returns P(class=1) per row, or an UnsupportedOperationError when the
	// model cannot produce probabilities.
	PredictProba(X mat.Matrix) (*mat.VecDense, error)

	IsFitted() bool
	Algorithm() string
	Kind() Kind
}

// Classifier is a trainable, persistable binary classifier.
type Classifier interface {
	Predictor

	// Fit trains on X (rows are samples) and y (0/1 labels). Incremental
	// classifiers consume the rows one at a time in order.
	Fit(X mat.Matrix, y *mat.VecDense) error

	GetParams() map[string]interface{}
	SetParams(params map[string]interface{}) error

	// MarshalBinary captures hyperparameters and learned state. UnmarshalBinary on a
	// freshly constructed instance of the same algorithm restores it.
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// IncrementalClassifier can learn from a single labelled sample. Order of calls
// determines the final state.
type IncrementalClassifier interface {
	Classifier

	LearnOne(x []float64, y int) error
}
