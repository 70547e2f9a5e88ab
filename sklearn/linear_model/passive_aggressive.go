package linear_model

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// PassiveAggressiveName is the registry name of PassiveAggressiveClassifier.
const PassiveAggressiveName = "passive_aggressive"

func init() {
	model.Register(PassiveAggressiveName, func(params map[string]interface{}) (model.Classifier, error) {
		pa := NewPassiveAggressiveClassifier()
		if err := pa.SetParams(params); err != nil {
			return nil, err
		}
		return pa, nil
	})
}

// PassiveAggressiveClassifier is an incremental binary margin classifier. It learns one
// row at a time and produces hard labels only; PredictProba is unsupported.
type PassiveAggressiveClassifier struct {
	state *model.StateManager
	mu    sync.RWMutex

	// ハイパーパラメータ
	C            float64 // aggressiveness bound
	fitIntercept bool
	loss         string // "hinge" (PA-I) or "squared_hinge" (PA-II)
	average      bool   // predict with averaged weights

	// 学習パラメータ
	coef         []float64
	intercept    float64
	avgCoef      []float64
	avgIntercept float64
	t            int64
}

// PassiveAggressiveOption configures a PassiveAggressiveClassifier.
type PassiveAggressiveOption func(*PassiveAggressiveClassifier)

// NewPassiveAggressiveClassifier creates an unfitted classifier.
func NewPassiveAggressiveClassifier(options ...PassiveAggressiveOption) *PassiveAggressiveClassifier {
	pa := &PassiveAggressiveClassifier{
		state:        model.NewStateManager(),
		C:            1.0,
		fitIntercept: true,
		loss:         "hinge",
	}
	for _, opt := range options {
		opt(pa)
	}
	return pa
}

// WithPAC sets the aggressiveness parameter.
func WithPAC(c float64) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveClassifier) { pa.C = c }
}

// WithPAFitIntercept sets whether to learn a bias term.
func WithPAFitIntercept(fit bool) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveClassifier) { pa.fitIntercept = fit }
}

// WithPALoss selects "hinge" or "squared_hinge".
func WithPALoss(loss string) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveClassifier) { pa.loss = loss }
}

// WithPAAverage predicts with the running average of the weights.
func WithPAAverage(average bool) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveClassifier) { pa.average = average }
}

func (pa *PassiveAggressiveClassifier) Algorithm() string           { return PassiveAggressiveName }
func (pa *PassiveAggressiveClassifier) Kind() model.Kind            { return model.KindIncremental }
func (pa *PassiveAggressiveClassifier) IsFitted() bool              { return pa.state.IsFitted() }
func (pa *PassiveAggressiveClassifier) State() *model.StateManager { return pa.state }

// Fit learns the rows of X one at a time in order. It continues from the current
// weights, as incremental models have no undo.
func (pa *PassiveAggressiveClassifier) Fit(X mat.Matrix, y *mat.VecDense) error {
	return model.FitIncremental(pa, X, y)
}

// LearnOne applies a single passive-aggressive update.
func (pa *PassiveAggressiveClassifier) LearnOne(x []float64, y int) error {
	if err := pa.state.RequireMutable(PassiveAggressiveName, "LearnOne"); err != nil {
		return err
	}
	if y != 0 && y != 1 {
		return errors.Wrapf(errors.ErrNonBinaryLabel, "PassiveAggressiveClassifier.LearnOne: got %d", y)
	}

	pa.mu.Lock()
	defer pa.mu.Unlock()

	if pa.coef == nil {
		if len(x) == 0 {
			return errors.Wrapf(errors.ErrEmptyData, "PassiveAggressiveClassifier.LearnOne")
		}
		pa.coef = make([]float64, len(x))
		pa.avgCoef = make([]float64, len(x))
	}
	if len(x) != len(pa.coef) {
		return errors.NewDimensionError("PassiveAggressiveClassifier.LearnOne", len(pa.coef), len(x), 1)
	}

	target := -1.0
	if y == 1 {
		target = 1.0
	}
	margin := target * (floats.Dot(pa.coef, x) + pa.intercept)

	if margin < 1 {
		loss := 1 - margin
		sqNorm := floats.Dot(x, x)
		if pa.fitIntercept {
			sqNorm++
		}
		var tau float64
		switch pa.loss {
		case "squared_hinge":
			tau = loss / (sqNorm + 1.0/(2.0*pa.C))
		default:
			if sqNorm > 0 {
				tau = min(pa.C, loss/sqNorm)
			}
		}
		floats.AddScaled(pa.coef, tau*target, x)
		if pa.fitIntercept {
			pa.intercept += tau * target
		}
	}

	// Running average of the weights after this step.
	n := float64(pa.t + 1)
	for j := range pa.avgCoef {
		pa.avgCoef[j] += (pa.coef[j] - pa.avgCoef[j]) / n
	}
	pa.avgIntercept += (pa.intercept - pa.avgIntercept) / n
	pa.t++

	pa.state.SetDimensions(len(pa.coef), int(pa.t))
	pa.state.SetFitted()
	return nil
}

// DecisionFunction returns the signed margin per row.
func (pa *PassiveAggressiveClassifier) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	if err := pa.state.RequireFitted(PassiveAggressiveName, "DecisionFunction"); err != nil {
		return nil, err
	}

	pa.mu.RLock()
	defer pa.mu.RUnlock()

	rows, err := model.CheckPredict("PassiveAggressiveClassifier.DecisionFunction", X, len(pa.coef))
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.VecDense{}, nil
	}

	coef, intercept := pa.coef, pa.intercept
	if pa.average {
		coef, intercept = pa.avgCoef, pa.avgIntercept
	}

	scores := mat.NewVecDense(rows, nil)
	scores.MulVec(X, mat.NewVecDense(len(coef), coef))
	for i := 0; i < rows; i++ {
		scores.SetVec(i, scores.AtVec(i)+intercept)
	}
	return scores, nil
}

// Predict labels a row 1 when its margin is positive. The model is not
// probabilistic, so threshold is validated but does not move the cut point.
func (pa *PassiveAggressiveClassifier) Predict(X mat.Matrix, threshold float64) (*mat.VecDense, error) {
	if err := model.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	scores, err := pa.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	for i := 0; i < scores.Len(); i++ {
		if scores.AtVec(i) > 0 {
			scores.SetVec(i, 1)
		} else {
			scores.SetVec(i, 0)
		}
	}
	return scores, nil
}

// PredictProba always fails: margins are not calibrated probabilities.
func (pa *PassiveAggressiveClassifier) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	return nil, errors.NewUnsupportedOperationError("PassiveAggressiveClassifier", "PredictProba")
}

// GetParams returns the hyperparameters.
func (pa *PassiveAggressiveClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":             pa.C,
		"fit_intercept": pa.fitIntercept,
		"loss":          pa.loss,
		"average":       pa.average,
	}
}

// SetParams updates hyperparameters. Unknown keys are rejected.
func (pa *PassiveAggressiveClassifier) SetParams(params map[string]interface{}) error {
	if err := model.UnknownParams(params, "C", "fit_intercept", "loss", "average"); err != nil {
		return err
	}
	var err error
	if pa.C, err = model.ParamFloat(params, "C", pa.C); err != nil {
		return err
	}
	if pa.C <= 0 {
		return errors.NewValidationError("C", "must be positive", pa.C)
	}
	if pa.fitIntercept, err = model.ParamBool(params, "fit_intercept", pa.fitIntercept); err != nil {
		return err
	}
	if pa.loss, err = model.ParamString(params, "loss", pa.loss); err != nil {
		return err
	}
	if pa.loss != "hinge" && pa.loss != "squared_hinge" {
		return errors.NewValidationError("loss", "must be hinge or squared_hinge", pa.loss)
	}
	if pa.average, err = model.ParamBool(params, "average", pa.average); err != nil {
		return err
	}
	return nil
}

type passiveAggressiveSnapshot struct {
	State        model.ModelState
	C            float64
	FitIntercept bool
	Loss         string
	Average      bool
	Coef         []float64
	Intercept    float64
	AvgCoef      []float64
	AvgIntercept float64
	T            int64
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (pa *PassiveAggressiveClassifier) MarshalBinary() ([]byte, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()
	return model.EncodeGob(passiveAggressiveSnapshot{
		State:        pa.state.GetState(),
		C:            pa.C,
		FitIntercept: pa.fitIntercept,
		Loss:         pa.loss,
		Average:      pa.average,
		Coef:         pa.coef,
		Intercept:    pa.intercept,
		AvgCoef:      pa.avgCoef,
		AvgIntercept: pa.avgIntercept,
		T:            pa.t,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (pa *PassiveAggressiveClassifier) UnmarshalBinary(data []byte) error {
	var snap passiveAggressiveSnapshot
	if err := model.DecodeGob(data, &snap); err != nil {
		return err
	}
	if len(snap.AvgCoef) != len(snap.Coef) || (snap.State.Fitted && len(snap.Coef) != snap.State.NFeatures) {
		return errors.NewCorruptArtifactError(PassiveAggressiveName,
			errors.Newf("%d weights and %d averaged weights for %d features",
				len(snap.Coef), len(snap.AvgCoef), snap.State.NFeatures))
	}
	pa.mu.Lock()
	defer pa.mu.Unlock()
	pa.state.SetState(snap.State)
	pa.C = snap.C
	pa.fitIntercept = snap.FitIntercept
	pa.loss = snap.Loss
	pa.average = snap.Average
	pa.coef = snap.Coef
	pa.intercept = snap.Intercept
	pa.avgCoef = snap.AvgCoef
	pa.avgIntercept = snap.AvgIntercept
	pa.t = snap.T
	return nil
}
