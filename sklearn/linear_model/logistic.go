package linear_model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/preprocessing"
)

// LogisticRegressionName is the registry name of LogisticRegression.
const LogisticRegressionName = "logistic_regression"

func init() {
	model.Register(LogisticRegressionName, func(params map[string]interface{}) (model.Classifier, error) {
		lr := NewLogisticRegression()
		if err := lr.SetParams(params); err != nil {
			return nil, err
		}
		return lr, nil
	})
}

// LogisticRegression is a batch binary classifier trained by full-batch gradient
// descent with optional L2 regularisation.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2" or "none"
	C            float64 // inverse regularisation strength
	fitIntercept bool
	standardize  bool
	maxIter      int
	tol          float64
	randomState  int64

	// Learned parameters
	coef      []float64
	intercept float64
	nIter     int
	scaler    *preprocessing.StandardScaler
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates an unfitted LogisticRegression.
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		standardize:  true,
		maxIter:      100,
		tol:          1e-4,
		randomState:  0,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type ("l2" or "none").
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLRFitIntercept sets whether to fit intercept
func WithLRFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// WithLRStandardize toggles feature standardisation before training.
func WithLRStandardize(on bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.standardize = on }
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.maxIter = maxIter }
}

// WithLRTol sets the gradient tolerance for stopping
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLRRandomState sets the seed for weight initialisation
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.randomState = seed }
}

func (lr *LogisticRegression) Algorithm() string           { return LogisticRegressionName }
func (lr *LogisticRegression) Kind() model.Kind            { return model.KindBatch }
func (lr *LogisticRegression) IsFitted() bool              { return lr.state.IsFitted() }
func (lr *LogisticRegression) State() *model.StateManager { return lr.state }

// Coef returns a copy of the learned weights in the (possibly standardised) feature space.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef...)
}

// Intercept returns the learned bias.
func (lr *LogisticRegression) Intercept() float64 { return lr.intercept }

// NIter returns the number of gradient steps taken by the last Fit.
func (lr *LogisticRegression) NIter() int { return lr.nIter }

// Fit trains the model on the full table at once.
func (lr *LogisticRegression) Fit(X mat.Matrix, y *mat.VecDense) error {
	if err := lr.state.RequireMutable(LogisticRegressionName, "Fit"); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.CheckFit("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}

	var Xt mat.Matrix = X
	lr.scaler = nil
	if lr.standardize {
		lr.scaler = preprocessing.NewStandardScalerDefault()
		scaled, err := lr.scaler.FitTransform(X)
		if err != nil {
			return err
		}
		Xt = scaled
	}

	rng := rand.New(rand.NewSource(lr.randomState))
	lr.coef = make([]float64, nFeatures)
	for j := range lr.coef {
		lr.coef[j] = rng.NormFloat64() * 0.01
	}
	lr.intercept = 0
	lr.nIter = 0

	weights := mat.NewVecDense(nFeatures, lr.coef)
	z := mat.NewVecDense(nSamples, nil)
	residual := mat.NewVecDense(nSamples, nil)
	grad := mat.NewVecDense(nFeatures, nil)

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		z.MulVec(Xt, weights)
		for i := 0; i < nSamples; i++ {
			residual.SetVec(i, sigmoid(z.AtVec(i)+lr.intercept)-y.AtVec(i))
		}

		grad.MulVec(Xt.T(), residual)
		grad.ScaleVec(1/float64(nSamples), grad)
		gradIntercept := floats.Sum(residual.RawVector().Data) / float64(nSamples)

		if lr.penalty == "l2" {
			grad.AddScaledVec(grad, 1/lr.C, weights)
		}

		learningRate := 1.0 / (1.0 + 0.1*float64(iter))
		weights.AddScaledVec(weights, -learningRate, grad)
		if lr.fitIntercept {
			lr.intercept -= learningRate * gradIntercept
		}
		lr.nIter = iter + 1

		if err := errors.CheckNumericalStability("LogisticRegression.coef", lr.coef, iter); err != nil {
			return err
		}

		maxGrad := math.Max(math.Abs(gradIntercept), floats.Max(absAll(grad.RawVector().Data)))
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.nIter, "maximum number of iterations reached"))
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// DecisionFunction returns the linear score per row.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	if err := lr.state.RequireFitted(LogisticRegressionName, "DecisionFunction"); err != nil {
		return nil, err
	}
	nFeatures, _ := lr.state.GetDimensions()
	rows, err := model.CheckPredict("LogisticRegression.DecisionFunction", X, nFeatures)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.VecDense{}, nil
	}

	var Xt mat.Matrix = X
	if lr.scaler != nil {
		scaled, err := lr.scaler.Transform(X)
		if err != nil {
			return nil, err
		}
		Xt = scaled
	}

	scores := mat.NewVecDense(rows, nil)
	scores.MulVec(Xt, mat.NewVecDense(len(lr.coef), lr.coef))
	for i := 0; i < rows; i++ {
		scores.SetVec(i, scores.AtVec(i)+lr.intercept)
	}
	return scores, nil
}

// PredictProba returns P(class=1) per row.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	for i := 0; i < scores.Len(); i++ {
		scores.SetVec(i, sigmoid(scores.AtVec(i)))
	}
	return scores, nil
}

// Predict labels a row 1 iff P(class=1) > threshold.
func (lr *LogisticRegression) Predict(X mat.Matrix, threshold float64) (*mat.VecDense, error) {
	if err := model.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ApplyThreshold(proba, threshold), nil
}

// GetParams returns the hyperparameters.
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"standardize":   lr.standardize,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"random_state":  lr.randomState,
	}
}

// SetParams updates hyperparameters. Unknown keys are rejected.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	if err := model.UnknownParams(params, "penalty", "C", "fit_intercept", "standardize", "max_iter", "tol", "random_state"); err != nil {
		return err
	}
	var err error
	if lr.penalty, err = model.ParamString(params, "penalty", lr.penalty); err != nil {
		return err
	}
	if lr.penalty != "l2" && lr.penalty != "none" {
		return errors.NewValidationError("penalty", "must be l2 or none", lr.penalty)
	}
	if lr.C, err = model.ParamFloat(params, "C", lr.C); err != nil {
		return err
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.fitIntercept, err = model.ParamBool(params, "fit_intercept", lr.fitIntercept); err != nil {
		return err
	}
	if lr.standardize, err = model.ParamBool(params, "standardize", lr.standardize); err != nil {
		return err
	}
	if lr.maxIter, err = model.ParamInt(params, "max_iter", lr.maxIter); err != nil {
		return err
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	if lr.tol, err = model.ParamFloat(params, "tol", lr.tol); err != nil {
		return err
	}
	seed, err := model.ParamInt(params, "random_state", int(lr.randomState))
	if err != nil {
		return err
	}
	lr.randomState = int64(seed)
	return nil
}

type logisticSnapshot struct {
	State        model.ModelState
	Penalty      string
	C            float64
	FitIntercept bool
	Standardize  bool
	MaxIter      int
	Tol          float64
	RandomState  int64
	Coef         []float64
	Intercept    float64
	NIter        int
	Scaler       *preprocessing.StandardScaler
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (lr *LogisticRegression) MarshalBinary() ([]byte, error) {
	return model.EncodeGob(logisticSnapshot{
		State:        lr.state.GetState(),
		Penalty:      lr.penalty,
		C:            lr.C,
		FitIntercept: lr.fitIntercept,
		Standardize:  lr.standardize,
		MaxIter:      lr.maxIter,
		Tol:          lr.tol,
		RandomState:  lr.randomState,
		Coef:         lr.coef,
		Intercept:    lr.intercept,
		NIter:        lr.nIter,
		Scaler:       lr.scaler,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (lr *LogisticRegression) UnmarshalBinary(data []byte) error {
	var snap logisticSnapshot
	if err := model.DecodeGob(data, &snap); err != nil {
		return err
	}
	if snap.State.Fitted && len(snap.Coef) != snap.State.NFeatures {
		return errors.NewCorruptArtifactError(LogisticRegressionName,
			errors.Newf("coefficient count %d does not match %d features", len(snap.Coef), snap.State.NFeatures))
	}
	if snap.Scaler != nil {
		if err := snap.Scaler.Check(snap.State.NFeatures); err != nil {
			return errors.NewCorruptArtifactError(LogisticRegressionName, err)
		}
	}
	lr.state.SetState(snap.State)
	lr.penalty = snap.Penalty
	lr.C = snap.C
	lr.fitIntercept = snap.FitIntercept
	lr.standardize = snap.Standardize
	lr.maxIter = snap.MaxIter
	lr.tol = snap.Tol
	lr.randomState = snap.RandomState
	lr.coef = snap.Coef
	lr.intercept = snap.Intercept
	lr.nIter = snap.NIter
	lr.scaler = snap.Scaler
	return nil
}

// sigmoid is the logistic function in a form that does not overflow exp.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1.0 + ez)
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
