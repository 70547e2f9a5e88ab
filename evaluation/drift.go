package evaluation

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/pkg/log"
	"github.com/YuminosukeSato/holdout/sklearn/drift"
)

// WindowDrift summarises what the detector saw inside one dataset.
type WindowDrift struct {
	Level     drift.Level // level after the last row
	Warning   bool        // warning zone entered at least once
	Drift     bool        // drift signalled at least once
	DriftRows []int       // rows at which drift fired
	ErrorRate float64     // detector error rate after the last row
}

// DriftMonitor feeds prediction outcomes of consecutive datasets into one DDM, so
// that degradation across time windows is detected in list order.
type DriftMonitor struct {
	ddm    *drift.DDM
	logger log.Logger
}

// NewDriftMonitor wraps a DDM; a nil ddm gets the default one.
func NewDriftMonitor(ddm *drift.DDM, logger log.Logger) *DriftMonitor {
	if ddm == nil {
		ddm = drift.NewDDM()
	}
	return &DriftMonitor{ddm: ddm, logger: log.OrNop(logger)}
}

// Observe updates the detector row by row. A ModelDriftWarning is dispatched for the
// first drift inside the window.
func (m *DriftMonitor) Observe(source string, predicted, actual *mat.VecDense) (*WindowDrift, error) {
	if predicted.Len() != actual.Len() {
		return nil, errors.NewLengthMismatchError("DriftMonitor.Observe", predicted.Len(), actual.Len())
	}

	w := &WindowDrift{Level: drift.LevelStable}
	var last drift.DriftDetectionResult
	for i := 0; i < actual.Len(); i++ {
		last = m.ddm.UpdateWithPrediction(predicted.AtVec(i), actual.AtVec(i))
		if last.WarningDetected() {
			w.Warning = true
		}
		if last.DriftDetected() {
			if !w.Drift {
				errors.Warn(errors.NewModelDriftWarning("DDM", source, last.ErrorRate, last.ConfidenceLevel))
			}
			w.Drift = true
			w.DriftRows = append(w.DriftRows, i)
		}
	}
	w.Level = last.Level
	w.ErrorRate = last.ErrorRate

	if w.Drift {
		m.logger.Warn("concept drift detected",
			log.SourceKey, source,
			"drift.rows", len(w.DriftRows),
			"drift.error_rate", w.ErrorRate,
		)
	} else if w.Warning {
		m.logger.Info("drift warning zone entered", log.SourceKey, source)
	}
	return w, nil
}

// Statistics exposes the detector state.
func (m *DriftMonitor) Statistics() drift.DDMStatistics { return m.ddm.Statistics() }
