package drift

import (
	"math"
	"sync"
)

// Level is the state a detector reports after an update.
type Level int

const (
	LevelStable Level = iota
	LevelWarning
	LevelDrift
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelDrift:
		return "drift"
	default:
		return "stable"
	}
}

// DDM (Drift Detection Method) tracks the error rate p and its deviation s of a
// stream of prediction outcomes and compares p+s against the best level seen.
// J. Gama, P. Medas, G. Castillo, P. Rodrigues (2004) "Learning with Drift Detection"
type DDM struct {
	minNumInstances int
	warningLevel    float64
	outControlLevel float64

	numInstances int
	numErrors    int
	errorRate    float64
	stdDev       float64
	minErrorRate float64
	minStdDev    float64
	level        Level

	mu sync.RWMutex
}

// DriftDetectionResult is the outcome of one DDM update.
type DriftDetectionResult struct {
	Level           Level
	ErrorRate       float64
	ConfidenceLevel float64 // (p+s) / (p_min+s_min)
}

// WarningDetected reports the warning zone, which drift also implies.
func (r DriftDetectionResult) WarningDetected() bool { return r.Level >= LevelWarning }

// DriftDetected reports the out-of-control zone.
func (r DriftDetectionResult) DriftDetected() bool { return r.Level == LevelDrift }

// DDMOption is a DDM configuration option
type DDMOption func(*DDM)

// WithDDMMinNumInstances sets how many outcomes are needed before any detection.
func WithDDMMinNumInstances(n int) DDMOption {
	return func(d *DDM) { d.minNumInstances = n }
}

// WithDDMWarningLevel sets the warning multiplier of s_min.
func WithDDMWarningLevel(level float64) DDMOption {
	return func(d *DDM) { d.warningLevel = level }
}

// WithDDMOutControlLevel sets the drift multiplier of s_min.
func WithDDMOutControlLevel(level float64) DDMOption {
	return func(d *DDM) { d.outControlLevel = level }
}

// NewDDM creates a detector with warning at 2 and drift at 3 standard deviations.
func NewDDM(options ...DDMOption) *DDM {
	d := &DDM{
		minNumInstances: 30,
		warningLevel:    2.0,
		outControlLevel: 3.0,
	}
	for _, opt := range options {
		opt(d)
	}
	d.resetLocked()
	return d
}

// UpdateOutcome feeds one prediction outcome. After a drift the statistics restart.
func (d *DDM) UpdateOutcome(correct bool) DriftDetectionResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.numInstances++
	if !correct {
		d.numErrors++
	}

	n := float64(d.numInstances)
	d.errorRate = float64(d.numErrors) / n
	d.stdDev = math.Sqrt(d.errorRate * (1.0 - d.errorRate) / n)

	if d.numInstances < d.minNumInstances {
		d.level = LevelStable
		return DriftDetectionResult{Level: LevelStable, ErrorRate: d.errorRate}
	}

	if d.errorRate+d.stdDev <= d.minErrorRate+d.minStdDev {
		d.minErrorRate = d.errorRate
		d.minStdDev = d.stdDev
	}

	result := DriftDetectionResult{ErrorRate: d.errorRate, ConfidenceLevel: 1.0}
	if base := d.minErrorRate + d.minStdDev; base > 0 {
		result.ConfidenceLevel = (d.errorRate + d.stdDev) / base
	}

	current := d.errorRate + d.stdDev
	switch {
	case current > d.minErrorRate+d.outControlLevel*d.minStdDev:
		result.Level = LevelDrift
		d.resetLocked()
	case current > d.minErrorRate+d.warningLevel*d.minStdDev:
		result.Level = LevelWarning
	default:
		result.Level = LevelStable
	}
	d.level = result.Level
	return result
}

// Update implements Detector. value is an error indicator: non-zero means the
// prediction was wrong.
func (d *DDM) Update(value float64) bool {
	return d.UpdateOutcome(value == 0).DriftDetected()
}

// UpdateWithPrediction compares a predicted and an actual label.
func (d *DDM) UpdateWithPrediction(predicted, actual float64) DriftDetectionResult {
	return d.UpdateOutcome(math.Abs(predicted-actual) < 1e-10)
}

// Reset discards all statistics.
func (d *DDM) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *DDM) resetLocked() {
	d.numInstances = 0
	d.numErrors = 0
	d.errorRate = 0
	d.stdDev = 0
	d.minErrorRate = math.Inf(1)
	d.minStdDev = math.Inf(1)
}

// DDMStatistics is a snapshot of the detector.
type DDMStatistics struct {
	NumInstances int
	NumErrors    int
	ErrorRate    float64
	StdDev       float64
	MinErrorRate float64
	MinStdDev    float64
	Level        Level
}

// Statistics returns the current statistics.
func (d *DDM) Statistics() DDMStatistics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DDMStatistics{
		NumInstances: d.numInstances,
		NumErrors:    d.numErrors,
		ErrorRate:    d.errorRate,
		StdDev:       d.stdDev,
		MinErrorRate: d.minErrorRate,
		MinStdDev:    d.minStdDev,
		Level:        d.level,
	}
}
