// Package ensemble provides the adaptive random forest, an online bagging ensemble of
// Hoeffding trees that replaces members whose error rate drifts.
package ensemble

import (
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/sklearn/drift"
	"github.com/YuminosukeSato/holdout/sklearn/tree"
)

// AdaptiveRandomForestName is the registry name of AdaptiveRandomForestClassifier.
const AdaptiveRandomForestName = "adaptive_random_forest"

func init() {
	model.Register(AdaptiveRandomForestName, func(params map[string]interface{}) (model.Classifier, error) {
		arf := NewAdaptiveRandomForestClassifier()
		if err := arf.SetParams(params); err != nil {
			return nil, err
		}
		return arf, nil
	})
}

// member is one tree of the forest with its detectors and an optional background
// tree that is trained from the warning onwards.
type member struct {
	Tree       *tree.HoeffdingTreeClassifier
	Background *tree.HoeffdingTreeClassifier
	Warning    *drift.ADWIN
	Drift      *drift.ADWIN
	Correct    float64
	Seen       float64
	Generation int
	Drifts     int
	Warnings   int
}

// AdaptiveRandomForestClassifier is an incremental ensemble of Hoeffding trees.
// Each tree learns every sample Poisson(lambda) times on a random feature subspace,
// and votes with a weight equal to its running accuracy.
type AdaptiveRandomForestClassifier struct {
	state *model.StateManager
	mu    sync.RWMutex

	nModels         int
	maxFeatures     int // 0 selects round(sqrt(n_features))
	lambda          float64
	maxDepth        int
	splitCriterion  string
	splitConfidence float64
	gracePeriod     int
	tieThreshold    float64
	leafPrediction  string
	warningDelta    float64
	driftDelta      float64
	driftDetection  bool
	seed            int64

	members   []*member
	nFeatures int
	pcg       *rand.PCG
	rng       *rand.Rand
}

// ARFOption configures an AdaptiveRandomForestClassifier.
type ARFOption func(*AdaptiveRandomForestClassifier)

// WithNModels sets the number of trees.
func WithNModels(n int) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) { a.nModels = n }
}

// WithLambda sets the Poisson rate of online bagging.
func WithLambda(lambda float64) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) { a.lambda = lambda }
}

// WithARFMaxFeatures sets the subspace size of every leaf.
func WithARFMaxFeatures(n int) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) { a.maxFeatures = n }
}

// WithTreeOptions sets depth, split criterion, split confidence and grace period of
// every member tree.
func WithTreeOptions(maxDepth int, criterion string, splitConfidence float64, gracePeriod int) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) {
		a.maxDepth = maxDepth
		a.splitCriterion = criterion
		a.splitConfidence = splitConfidence
		a.gracePeriod = gracePeriod
	}
}

// WithDriftDeltas sets the ADWIN confidences of the warning and drift detectors.
func WithDriftDeltas(warning, drift float64) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) {
		a.warningDelta = warning
		a.driftDelta = drift
	}
}

// WithDriftDetection enables or disables background trees and replacement.
func WithDriftDetection(on bool) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) { a.driftDetection = on }
}

// WithARFSeed seeds bagging weights and feature subspaces.
func WithARFSeed(seed int64) ARFOption {
	return func(a *AdaptiveRandomForestClassifier) { a.seed = seed }
}

// NewAdaptiveRandomForestClassifier creates an empty forest of ten shallow trees
// (depth 5, gini, split confidence 0.01, grace period 1000).
func NewAdaptiveRandomForestClassifier(opts ...ARFOption) *AdaptiveRandomForestClassifier {
	a := &AdaptiveRandomForestClassifier{
		state:           model.NewStateManager(),
		nModels:         10,
		lambda:          6,
		maxDepth:        5,
		splitCriterion:  "gini",
		splitConfidence: 1e-2,
		gracePeriod:     1000,
		tieThreshold:    0.05,
		leafPrediction:  "mc",
		warningDelta:    0.01,
		driftDelta:      0.001,
		driftDetection:  true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.resetRNG()
	return a
}

func (a *AdaptiveRandomForestClassifier) resetRNG() {
	a.pcg = rand.NewPCG(uint64(a.seed), 0x9e3779b97f4a7c15)
	a.rng = rand.New(a.pcg)
}

func (a *AdaptiveRandomForestClassifier) Algorithm() string           { return AdaptiveRandomForestName }
func (a *AdaptiveRandomForestClassifier) Kind() model.Kind            { return model.KindIncremental }
func (a *AdaptiveRandomForestClassifier) IsFitted() bool              { return a.state.IsFitted() }
func (a *AdaptiveRandomForestClassifier) State() *model.StateManager { return a.state }

// Fit learns the rows of X in order, continuing from the current forest.
func (a *AdaptiveRandomForestClassifier) Fit(X mat.Matrix, y *mat.VecDense) error {
	return model.FitIncremental(a, X, y)
}

func (a *AdaptiveRandomForestClassifier) subspace() int {
	if a.maxFeatures > 0 {
		return min(a.maxFeatures, a.nFeatures)
	}
	return max(1, int(math.Round(math.Sqrt(float64(a.nFeatures)))))
}

func (a *AdaptiveRandomForestClassifier) newTree(index, generation int) *tree.HoeffdingTreeClassifier {
	return tree.NewHoeffdingTreeClassifier(
		tree.WithMaxDepth(a.maxDepth),
		tree.WithSplitCriterion(a.splitCriterion),
		tree.WithSplitConfidence(a.splitConfidence),
		tree.WithGracePeriod(a.gracePeriod),
		tree.WithTieThreshold(a.tieThreshold),
		tree.WithLeafPrediction(a.leafPrediction),
		tree.WithMaxFeatures(a.subspace()),
		tree.WithSeed(a.seed*7919+int64(index)*104729+int64(generation)),
	)
}

func (a *AdaptiveRandomForestClassifier) newMember(index, generation int) *member {
	return &member{
		Tree:       a.newTree(index, generation),
		Warning:    drift.NewADWIN(drift.WithADWINDelta(a.warningDelta)),
		Drift:      drift.NewADWIN(drift.WithADWINDelta(a.driftDelta)),
		Generation: generation,
	}
}

// poisson draws from Poisson(lambda) by Knuth's multiplication method.
func (a *AdaptiveRandomForestClassifier) poisson() int {
	limit := math.Exp(-a.lambda)
	k, p := 0, 1.0
	for {
		p *= a.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

// LearnOne tests every member on the sample, updates its detectors, then trains it
// with a Poisson weight.
func (a *AdaptiveRandomForestClassifier) LearnOne(x []float64, y int) error {
	if err := a.state.RequireMutable(AdaptiveRandomForestName, "LearnOne"); err != nil {
		return err
	}
	if y != 0 && y != 1 {
		return errors.Wrapf(errors.ErrNonBinaryLabel, "AdaptiveRandomForestClassifier.LearnOne: got %d", y)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.members == nil {
		if len(x) == 0 {
			return errors.Wrapf(errors.ErrEmptyData, "AdaptiveRandomForestClassifier.LearnOne")
		}
		if err := a.newTree(0, 0).Err(); err != nil {
			return err
		}
		a.nFeatures = len(x)
		a.members = make([]*member, a.nModels)
		for i := range a.members {
			a.members[i] = a.newMember(i, 0)
		}
		a.state.SetDimensions(a.nFeatures, 0)
	}
	if len(x) != a.nFeatures {
		return errors.NewDimensionError("AdaptiveRandomForestClassifier.LearnOne", a.nFeatures, len(x), 1)
	}

	for i, m := range a.members {
		trained := m.Tree.IsFitted()
		errIndicator := 0.0
		if trained {
			predicted := 0
			if m.Tree.PredictProbaOne(x) > 0.5 {
				predicted = 1
			}
			m.Seen++
			if predicted == y {
				m.Correct++
			} else {
				errIndicator = 1
			}
		}

		if k := a.poisson(); k > 0 {
			if err := m.Tree.LearnWeighted(x, y, float64(k)); err != nil {
				return err
			}
			if m.Background != nil {
				if err := m.Background.LearnWeighted(x, y, float64(k)); err != nil {
					return err
				}
			}
		}

		if !a.driftDetection || !trained {
			continue
		}
		if m.Warning.Update(errIndicator) {
			m.Warnings++
			m.Background = a.newTree(i, m.Generation+1)
			m.Warning.Reset()
		}
		if m.Drift.Update(errIndicator) {
			m.Drifts++
			next := m.Background
			if next == nil {
				next = a.newTree(i, m.Generation+1)
			}
			m.Tree = next
			m.Background = nil
			m.Generation++
			m.Correct, m.Seen = 0, 0
			m.Warning.Reset()
			m.Drift.Reset()
		}
	}

	a.state.AddSamples(1)
	a.state.SetFitted()
	return nil
}

func (a *AdaptiveRandomForestClassifier) predictOne(x []float64) float64 {
	var weighted, totalWeight, plain float64
	voters := 0
	for _, m := range a.members {
		if !m.Tree.IsFitted() {
			continue
		}
		p := m.Tree.PredictProbaOne(x)
		plain += p
		voters++
		w := errors.SafeDivide(m.Correct, m.Seen)
		weighted += w * p
		totalWeight += w
	}
	switch {
	case voters == 0:
		return 0.5
	case totalWeight > 0:
		return weighted / totalWeight
	default:
		return plain / float64(voters)
	}
}

// PredictProba returns the accuracy-weighted mean of the member probabilities.
func (a *AdaptiveRandomForestClassifier) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	if err := a.state.RequireFitted(AdaptiveRandomForestName, "PredictProba"); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := model.CheckPredict("AdaptiveRandomForestClassifier.PredictProba", X, a.nFeatures)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.VecDense{}, nil
	}

	out := mat.NewVecDense(rows, nil)
	row := make([]float64, a.nFeatures)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.SetVec(i, a.predictOne(row))
	}
	return out, nil
}

// Predict labels a row 1 iff P(class=1) > threshold.
func (a *AdaptiveRandomForestClassifier) Predict(X mat.Matrix, threshold float64) (*mat.VecDense, error) {
	if err := model.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	proba, err := a.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ApplyThreshold(proba, threshold), nil
}

// DriftStats returns the total number of warnings and tree replacements.
func (a *AdaptiveRandomForestClassifier) DriftStats() (warnings, drifts int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, m := range a.members {
		warnings += m.Warnings
		drifts += m.Drifts
	}
	return warnings, drifts
}

// GetParams returns the hyperparameters.
func (a *AdaptiveRandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_models":         a.nModels,
		"max_features":     a.maxFeatures,
		"lambda":           a.lambda,
		"max_depth":        a.maxDepth,
		"split_criterion":  a.splitCriterion,
		"split_confidence": a.splitConfidence,
		"grace_period":     a.gracePeriod,
		"tie_threshold":    a.tieThreshold,
		"leaf_prediction":  a.leafPrediction,
		"warning_delta":    a.warningDelta,
		"drift_delta":      a.driftDelta,
		"drift_detection":  a.driftDetection,
		"seed":             a.seed,
	}
}

// SetParams updates hyperparameters. Unknown keys are rejected.
func (a *AdaptiveRandomForestClassifier) SetParams(params map[string]interface{}) error {
	if err := model.UnknownParams(params,
		"n_models", "max_features", "lambda", "max_depth", "split_criterion", "split_confidence",
		"grace_period", "tie_threshold", "leaf_prediction", "warning_delta", "drift_delta",
		"drift_detection", "seed"); err != nil {
		return err
	}

	var err error
	if a.nModels, err = model.ParamInt(params, "n_models", a.nModels); err != nil {
		return err
	}
	if a.nModels < 1 {
		return errors.NewValidationError("n_models", "must be at least 1", a.nModels)
	}
	if a.maxFeatures, err = model.ParamInt(params, "max_features", a.maxFeatures); err != nil {
		return err
	}
	if a.lambda, err = model.ParamFloat(params, "lambda", a.lambda); err != nil {
		return err
	}
	if a.lambda <= 0 {
		return errors.NewValidationError("lambda", "must be positive", a.lambda)
	}
	if a.warningDelta, err = model.ParamFloat(params, "warning_delta", a.warningDelta); err != nil {
		return err
	}
	if a.driftDelta, err = model.ParamFloat(params, "drift_delta", a.driftDelta); err != nil {
		return err
	}
	if a.driftDetection, err = model.ParamBool(params, "drift_detection", a.driftDetection); err != nil {
		return err
	}
	seed, err := model.ParamInt(params, "seed", int(a.seed))
	if err != nil {
		return err
	}
	a.seed = int64(seed)

	// Tree hyperparameters are validated by the tree itself.
	check := tree.NewHoeffdingTreeClassifier(
		tree.WithMaxDepth(a.maxDepth),
		tree.WithSplitCriterion(a.splitCriterion),
		tree.WithSplitConfidence(a.splitConfidence),
		tree.WithGracePeriod(a.gracePeriod),
		tree.WithTieThreshold(a.tieThreshold),
		tree.WithLeafPrediction(a.leafPrediction),
	)
	treeParams := make(map[string]interface{})
	for _, k := range []string{"max_depth", "split_criterion", "split_confidence", "grace_period", "tie_threshold", "leaf_prediction"} {
		if v, ok := params[k]; ok {
			treeParams[k] = v
		}
	}
	if err := check.SetParams(treeParams); err != nil {
		return err
	}
	if err := check.Err(); err != nil {
		return err
	}
	tp := check.GetParams()
	a.maxDepth = tp["max_depth"].(int)
	a.splitCriterion = tp["split_criterion"].(string)
	a.splitConfidence = tp["split_confidence"].(float64)
	a.gracePeriod = tp["grace_period"].(int)
	a.tieThreshold = tp["tie_threshold"].(float64)
	a.leafPrediction = tp["leaf_prediction"].(string)

	a.resetRNG()
	return nil
}

type memberSnapshot struct {
	Tree       tree.TreeSnapshot
	Background *tree.TreeSnapshot
	Warning    *drift.ADWIN
	Drift      *drift.ADWIN
	Correct    float64
	Seen       float64
	Generation int
	Drifts     int
	Warnings   int
}

type forestSnapshot struct {
	State     model.ModelState
	Params    forestParams
	Members   []memberSnapshot
	NFeatures int
	RNG       []byte
}

type forestParams struct {
	NModels         int
	MaxFeatures     int
	Lambda          float64
	MaxDepth        int
	SplitCriterion  string
	SplitConfidence float64
	GracePeriod     int
	TieThreshold    float64
	LeafPrediction  string
	WarningDelta    float64
	DriftDelta      float64
	DriftDetection  bool
	Seed            int64
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (a *AdaptiveRandomForestClassifier) MarshalBinary() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rngState, err := a.pcg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	snap := forestSnapshot{
		State: a.state.GetState(),
		Params: forestParams{
			NModels: a.nModels, MaxFeatures: a.maxFeatures, Lambda: a.lambda,
			MaxDepth: a.maxDepth, SplitCriterion: a.splitCriterion, SplitConfidence: a.splitConfidence,
			GracePeriod: a.gracePeriod, TieThreshold: a.tieThreshold, LeafPrediction: a.leafPrediction,
			WarningDelta: a.warningDelta, DriftDelta: a.driftDelta, DriftDetection: a.driftDetection,
			Seed: a.seed,
		},
		NFeatures: a.nFeatures,
		RNG:       rngState,
	}
	for _, m := range a.members {
		ms := memberSnapshot{
			Tree:       m.Tree.Snapshot(),
			Warning:    m.Warning,
			Drift:      m.Drift,
			Correct:    m.Correct,
			Seen:       m.Seen,
			Generation: m.Generation,
			Drifts:     m.Drifts,
			Warnings:   m.Warnings,
		}
		if m.Background != nil {
			bg := m.Background.Snapshot()
			ms.Background = &bg
		}
		snap.Members = append(snap.Members, ms)
	}
	return model.EncodeGob(snap)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *AdaptiveRandomForestClassifier) UnmarshalBinary(data []byte) error {
	var snap forestSnapshot
	if err := model.DecodeGob(data, &snap); err != nil {
		return err
	}

	if len(snap.Members) > 0 && len(snap.Members) != snap.Params.NModels {
		return errors.NewCorruptArtifactError(AdaptiveRandomForestName,
			errors.Newf("%d members for a forest of %d", len(snap.Members), snap.Params.NModels))
	}
	members := make([]*member, 0, len(snap.Members))
	for _, ms := range snap.Members {
		m := &member{
			Tree:       tree.NewHoeffdingTreeClassifier(),
			Warning:    ms.Warning,
			Drift:      ms.Drift,
			Correct:    ms.Correct,
			Seen:       ms.Seen,
			Generation: ms.Generation,
			Drifts:     ms.Drifts,
			Warnings:   ms.Warnings,
		}
		if ms.Tree.NFeatures > snap.NFeatures || (ms.Background != nil && ms.Background.NFeatures > snap.NFeatures) {
			return errors.NewCorruptArtifactError(AdaptiveRandomForestName,
				errors.Newf("member tree expects more than the forest's %d features", snap.NFeatures))
		}
		if err := m.Tree.Restore(ms.Tree); err != nil {
			return err
		}
		if ms.Background != nil {
			m.Background = tree.NewHoeffdingTreeClassifier()
			if err := m.Background.Restore(*ms.Background); err != nil {
				return err
			}
		}
		if m.Warning == nil || m.Drift == nil {
			return errors.NewCorruptArtifactError(AdaptiveRandomForestName,
				errors.New("forest member is missing its drift detectors"))
		}
		members = append(members, m)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := snap.Params
	a.nModels, a.maxFeatures, a.lambda = p.NModels, p.MaxFeatures, p.Lambda
	a.maxDepth, a.splitCriterion, a.splitConfidence = p.MaxDepth, p.SplitCriterion, p.SplitConfidence
	a.gracePeriod, a.tieThreshold, a.leafPrediction = p.GracePeriod, p.TieThreshold, p.LeafPrediction
	a.warningDelta, a.driftDelta, a.driftDetection = p.WarningDelta, p.DriftDelta, p.DriftDetection
	a.seed = p.Seed
	a.nFeatures = snap.NFeatures
	a.state.SetState(snap.State)

	a.resetRNG()
	if len(snap.RNG) > 0 {
		if err := a.pcg.UnmarshalBinary(snap.RNG); err != nil {
			return err
		}
	}
	if len(members) > 0 {
		a.members = members
	} else {
		a.members = nil
	}
	return nil
}
