// Package drift provides concept-drift detectors over streams of scalar observations.
//
// ADWIN watches a real-valued stream (typically 0/1 error indicators) and shrinks its
// window when the mean changes. DDM watches a stream of prediction outcomes and
// reports warning and drift levels.
package drift

// Detector is the common interface of drift detectors fed with numeric observations.
type Detector interface {
	// Update adds an observation and reports whether drift was detected.
	Update(value float64) bool

	// Reset discards all accumulated state.
	Reset()
}

var (
	_ Detector = (*ADWIN)(nil)
	_ Detector = (*DDM)(nil)
)
