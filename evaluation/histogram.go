package evaluation

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// DefaultHistogramBins matches the resolution used for probability distribution checks.
const DefaultHistogramBins = 50

// ProbaHistogram counts predicted P(class=1) in equal-width bins over [0, 1],
// separately for rows whose true label is 1 and 0.
type ProbaHistogram struct {
	Source   string
	Edges    []float64 // len(Bins)+1 bin edges
	Positive []int
	Negative []int
	// Raw probabilities per class, kept for plotting.
	PositiveProba []float64
	NegativeProba []float64
}

// NewProbaHistogram bins proba by actual label. Probabilities outside [0, 1] are
// clamped into the end bins.
func NewProbaHistogram(source string, proba, actual *mat.VecDense, bins int) (*ProbaHistogram, error) {
	if bins < 1 {
		return nil, errors.NewValidationError("bins", "must be at least 1", bins)
	}
	if proba == nil || actual == nil {
		return nil, errors.NewValueError("NewProbaHistogram", "probabilities and labels are required")
	}
	if proba.Len() != actual.Len() {
		return nil, errors.NewLengthMismatchError("NewProbaHistogram", proba.Len(), actual.Len())
	}

	h := &ProbaHistogram{
		Source:   source,
		Edges:    make([]float64, bins+1),
		Positive: make([]int, bins),
		Negative: make([]int, bins),
	}
	for i := range h.Edges {
		h.Edges[i] = float64(i) / float64(bins)
	}
	for i := 0; i < proba.Len(); i++ {
		p := proba.AtVec(i)
		b := int(p * float64(bins))
		b = min(max(b, 0), bins-1)
		if actual.AtVec(i) == 1 {
			h.Positive[b]++
			h.PositiveProba = append(h.PositiveProba, p)
		} else {
			h.Negative[b]++
			h.NegativeProba = append(h.NegativeProba, p)
		}
	}
	return h, nil
}

// Bins returns the number of bins.
func (h *ProbaHistogram) Bins() int { return len(h.Positive) }

// Total returns the number of binned rows.
func (h *ProbaHistogram) Total() int { return len(h.PositiveProba) + len(h.NegativeProba) }
