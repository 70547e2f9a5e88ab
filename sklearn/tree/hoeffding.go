// Package tree provides the Hoeffding tree, an incremental decision tree that decides
// when to split a leaf from a bound on the error of the observed split merit.
package tree

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// HoeffdingTreeName is the registry name of HoeffdingTreeClassifier.
const HoeffdingTreeName = "hoeffding_tree"

func init() {
	model.Register(HoeffdingTreeName, func(params map[string]interface{}) (model.Classifier, error) {
		ht := NewHoeffdingTreeClassifier()
		if err := ht.SetParams(params); err != nil {
			return nil, err
		}
		return ht, nil
	})
}

// Node is a tree node. Internal nodes route on Feature <= Threshold; leaves keep
// class weights and one observer per candidate feature.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node

	Depth     int
	Counts    [2]float64
	LastEval  float64
	Observers map[int]*GaussianObserver
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return n.Left == nil }

func (n *Node) weight() float64 { return n.Counts[0] + n.Counts[1] }

// HoeffdingTreeClassifier is an incremental binary decision tree (VFDT) with Gaussian
// numeric split estimation.
type HoeffdingTreeClassifier struct {
	state *model.StateManager
	mu    sync.RWMutex

	maxDepth        int
	criterion       Criterion
	splitConfidence float64
	gracePeriod     int
	tieThreshold    float64
	maxFeatures     int // 0 means every feature is a split candidate
	nBins           int
	leafPrediction  string // "mc" or "nb"
	seed            int64

	root      *Node
	nFeatures int
	leafSeq   int64
	splits    int

	// optErr holds the first invalid option; learning fails with it.
	optErr error
}

// HoeffdingTreeOption configures a HoeffdingTreeClassifier.
type HoeffdingTreeOption func(*HoeffdingTreeClassifier)

// WithMaxDepth limits the depth of the tree; the root has depth 0.
func WithMaxDepth(depth int) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.maxDepth = depth }
}

// WithSplitCriterion selects "gini" or "info_gain". An unknown name is reported by
// Err and by every learning call.
func WithSplitCriterion(name string) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) {
		c, err := NewCriterion(name)
		if err != nil {
			if ht.optErr == nil {
				ht.optErr = err
			}
			return
		}
		ht.criterion = c
	}
}

// WithSplitConfidence sets delta, the allowed probability of a wrong split decision.
func WithSplitConfidence(delta float64) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.splitConfidence = delta }
}

// WithGracePeriod sets the weight a leaf must accumulate between split attempts.
func WithGracePeriod(n int) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.gracePeriod = n }
}

// WithTieThreshold forces a split when the bound falls below this value.
func WithTieThreshold(t float64) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.tieThreshold = t }
}

// WithMaxFeatures restricts every leaf to a random subset of features.
func WithMaxFeatures(n int) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.maxFeatures = n }
}

// WithLeafPrediction selects majority class ("mc") or naive Bayes ("nb") leaves.
func WithLeafPrediction(mode string) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.leafPrediction = mode }
}

// WithSeed seeds feature subspace sampling.
func WithSeed(seed int64) HoeffdingTreeOption {
	return func(ht *HoeffdingTreeClassifier) { ht.seed = seed }
}

// NewHoeffdingTreeClassifier creates an empty tree.
func NewHoeffdingTreeClassifier(opts ...HoeffdingTreeOption) *HoeffdingTreeClassifier {
	ht := &HoeffdingTreeClassifier{
		state:           model.NewStateManager(),
		maxDepth:        20,
		criterion:       giniCriterion{},
		splitConfidence: 1e-7,
		gracePeriod:     200,
		tieThreshold:    0.05,
		nBins:           10,
		leafPrediction:  "mc",
	}
	for _, opt := range opts {
		opt(ht)
	}
	return ht
}

// Err returns the *errors.ValidationError of an invalid construction option, if any.
func (ht *HoeffdingTreeClassifier) Err() error { return ht.optErr }

func (ht *HoeffdingTreeClassifier) Algorithm() string           { return HoeffdingTreeName }
func (ht *HoeffdingTreeClassifier) Kind() model.Kind            { return model.KindIncremental }
func (ht *HoeffdingTreeClassifier) IsFitted() bool              { return ht.state.IsFitted() }
func (ht *HoeffdingTreeClassifier) State() *model.StateManager { return ht.state }

// Fit learns the rows of X in order, continuing from the current tree.
func (ht *HoeffdingTreeClassifier) Fit(X mat.Matrix, y *mat.VecDense) error {
	return model.FitIncremental(ht, X, y)
}

// LearnOne learns a single sample with unit weight.
func (ht *HoeffdingTreeClassifier) LearnOne(x []float64, y int) error {
	return ht.LearnWeighted(x, y, 1)
}

// LearnWeighted learns a sample that counts weight times, as used by online bagging.
// A zero weight is a no-op.
func (ht *HoeffdingTreeClassifier) LearnWeighted(x []float64, y int, weight float64) error {
	if err := ht.state.RequireMutable(HoeffdingTreeName, "LearnOne"); err != nil {
		return err
	}
	if ht.optErr != nil {
		return ht.optErr
	}
	if y != 0 && y != 1 {
		return errors.Wrapf(errors.ErrNonBinaryLabel, "HoeffdingTreeClassifier.LearnOne: got %d", y)
	}
	if weight <= 0 {
		return nil
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()

	if ht.root == nil {
		if len(x) == 0 {
			return errors.Wrapf(errors.ErrEmptyData, "HoeffdingTreeClassifier.LearnOne")
		}
		ht.nFeatures = len(x)
		ht.root = ht.newLeaf(0, [2]float64{})
		ht.state.SetDimensions(ht.nFeatures, 0)
	}
	if len(x) != ht.nFeatures {
		return errors.NewDimensionError("HoeffdingTreeClassifier.LearnOne", ht.nFeatures, len(x), 1)
	}

	leaf := ht.sortToLeaf(x)
	leaf.Counts[y] += weight
	for f, obs := range leaf.Observers {
		obs.Update(x[f], y, weight)
	}

	if leaf.Depth < ht.maxDepth &&
		leaf.weight()-leaf.LastEval >= float64(ht.gracePeriod) &&
		leaf.Counts[0] > 0 && leaf.Counts[1] > 0 {
		ht.attemptSplit(leaf)
	}

	ht.state.AddSamples(1)
	ht.state.SetFitted()
	return nil
}

func (ht *HoeffdingTreeClassifier) sortToLeaf(x []float64) *Node {
	node := ht.root
	for !node.IsLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// newLeaf builds a leaf that starts from an inherited class distribution.
func (ht *HoeffdingTreeClassifier) newLeaf(depth int, counts [2]float64) *Node {
	leaf := &Node{
		Feature:   -1,
		Depth:     depth,
		Counts:    counts,
		LastEval:  counts[0] + counts[1],
		Observers: make(map[int]*GaussianObserver),
	}
	for _, f := range ht.candidateFeatures() {
		leaf.Observers[f] = NewGaussianObserver()
	}
	return leaf
}

// candidateFeatures draws the feature subspace of a new leaf. Each leaf gets its own
// deterministic stream so that a reloaded tree keeps growing the same way.
func (ht *HoeffdingTreeClassifier) candidateFeatures() []int {
	ht.leafSeq++
	if ht.maxFeatures <= 0 || ht.maxFeatures >= ht.nFeatures {
		all := make([]int, ht.nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	rng := rand.New(rand.NewSource(ht.seed*1_000_003 + ht.leafSeq))
	return rng.Perm(ht.nFeatures)[:ht.maxFeatures]
}

// hoeffdingBound is sqrt(R^2 ln(1/delta) / 2n).
func hoeffdingBound(r, delta, n float64) float64 {
	return math.Sqrt(r * r * math.Log(1/delta) / (2 * n))
}

func (ht *HoeffdingTreeClassifier) attemptSplit(leaf *Node) {
	n := leaf.weight()
	leaf.LastEval = n

	suggestions := make([]SplitSuggestion, 0, len(leaf.Observers))
	for f, obs := range leaf.Observers {
		if s, ok := obs.BestSplit(f, leaf.Counts, ht.criterion, ht.nBins); ok {
			suggestions = append(suggestions, s)
		}
	}
	if len(suggestions) == 0 {
		return
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Merit == suggestions[j].Merit {
			return suggestions[i].Feature < suggestions[j].Feature
		}
		return suggestions[i].Merit > suggestions[j].Merit
	})

	best := suggestions[0]
	second := 0.0 // merit of not splitting
	if len(suggestions) > 1 {
		second = math.Max(second, suggestions[1].Merit)
	}

	eps := hoeffdingBound(ht.criterion.Range(), ht.splitConfidence, n)
	if best.Merit <= 0 || (best.Merit-second <= eps && eps >= ht.tieThreshold) {
		return
	}

	leaf.Feature = best.Feature
	leaf.Threshold = best.Threshold
	leaf.Left = ht.newLeaf(leaf.Depth+1, best.Left)
	leaf.Right = ht.newLeaf(leaf.Depth+1, best.Right)
	leaf.Observers = nil
	ht.splits++
}

// PredictProbaOne returns P(class=1) for a single row. An empty tree answers 0.5.
func (ht *HoeffdingTreeClassifier) PredictProbaOne(x []float64) float64 {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.predictOne(x)
}

func (ht *HoeffdingTreeClassifier) predictOne(x []float64) float64 {
	if ht.root == nil {
		return 0.5
	}
	leaf := ht.sortToLeaf(x)
	if ht.leafPrediction == "nb" {
		if p, ok := naiveBayes(leaf, x); ok {
			return p
		}
	}
	n := leaf.weight()
	if n == 0 {
		return 0.5
	}
	return leaf.Counts[1] / n
}

// naiveBayes scores a leaf with its Gaussian observers. It fails when a class is
// unseen or every likelihood underflows.
func naiveBayes(leaf *Node, x []float64) (float64, bool) {
	n := leaf.weight()
	if n == 0 || leaf.Counts[0] == 0 || leaf.Counts[1] == 0 || len(leaf.Observers) == 0 {
		return 0, false
	}
	var logScore [2]float64
	for y := 0; y < 2; y++ {
		logScore[y] = math.Log(leaf.Counts[y] / n)
		for f, obs := range leaf.Observers {
			logScore[y] += math.Log(math.Max(obs.Likelihood(y, x[f]), 1e-300))
		}
	}
	diff := logScore[0] - logScore[1]
	if math.IsNaN(diff) {
		return 0, false
	}
	return 1 / (1 + errors.StabilizeExp(diff)), true
}

// PredictProba returns P(class=1) per row.
func (ht *HoeffdingTreeClassifier) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	if err := ht.state.RequireFitted(HoeffdingTreeName, "PredictProba"); err != nil {
		return nil, err
	}

	ht.mu.RLock()
	defer ht.mu.RUnlock()

	rows, err := model.CheckPredict("HoeffdingTreeClassifier.PredictProba", X, ht.nFeatures)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.VecDense{}, nil
	}

	out := mat.NewVecDense(rows, nil)
	row := make([]float64, ht.nFeatures)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.SetVec(i, ht.predictOne(row))
	}
	return out, nil
}

// Predict labels a row 1 iff P(class=1) > threshold.
func (ht *HoeffdingTreeClassifier) Predict(X mat.Matrix, threshold float64) (*mat.VecDense, error) {
	if err := model.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	proba, err := ht.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ApplyThreshold(proba, threshold), nil
}

// Depth returns the depth of the deepest leaf.
func (ht *HoeffdingTreeClassifier) Depth() int {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return depthOf(ht.root)
}

func depthOf(n *Node) int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return n.Depth
	}
	return max(depthOf(n.Left), depthOf(n.Right))
}

// NumSplits returns the number of internal nodes.
func (ht *HoeffdingTreeClassifier) NumSplits() int {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.splits
}

// GetParams returns the hyperparameters.
func (ht *HoeffdingTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":        ht.maxDepth,
		"split_criterion":  ht.criterion.Name(),
		"split_confidence": ht.splitConfidence,
		"grace_period":     ht.gracePeriod,
		"tie_threshold":    ht.tieThreshold,
		"max_features":     ht.maxFeatures,
		"n_bins":           ht.nBins,
		"leaf_prediction":  ht.leafPrediction,
		"seed":             ht.seed,
	}
}

// HoeffdingTreeParams lists the keys accepted by SetParams.
var HoeffdingTreeParams = []string{
	"max_depth", "split_criterion", "split_confidence", "grace_period",
	"tie_threshold", "max_features", "n_bins", "leaf_prediction", "seed",
}

// SetParams updates hyperparameters. Unknown keys are rejected.
func (ht *HoeffdingTreeClassifier) SetParams(params map[string]interface{}) error {
	if err := model.UnknownParams(params, HoeffdingTreeParams...); err != nil {
		return err
	}
	return ht.applyParams(params)
}

func (ht *HoeffdingTreeClassifier) applyParams(params map[string]interface{}) error {
	var err error
	if ht.maxDepth, err = model.ParamInt(params, "max_depth", ht.maxDepth); err != nil {
		return err
	}
	if ht.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must not be negative", ht.maxDepth)
	}
	name, err := model.ParamString(params, "split_criterion", ht.criterion.Name())
	if err != nil {
		return err
	}
	if ht.criterion, err = NewCriterion(name); err != nil {
		return err
	}
	if _, ok := params["split_criterion"]; ok {
		ht.optErr = nil
	}
	if ht.splitConfidence, err = model.ParamFloat(params, "split_confidence", ht.splitConfidence); err != nil {
		return err
	}
	if ht.splitConfidence <= 0 || ht.splitConfidence >= 1 {
		return errors.NewValidationError("split_confidence", "must be within (0, 1)", ht.splitConfidence)
	}
	if ht.gracePeriod, err = model.ParamInt(params, "grace_period", ht.gracePeriod); err != nil {
		return err
	}
	if ht.gracePeriod < 1 {
		return errors.NewValidationError("grace_period", "must be at least 1", ht.gracePeriod)
	}
	if ht.tieThreshold, err = model.ParamFloat(params, "tie_threshold", ht.tieThreshold); err != nil {
		return err
	}
	if ht.maxFeatures, err = model.ParamInt(params, "max_features", ht.maxFeatures); err != nil {
		return err
	}
	if ht.nBins, err = model.ParamInt(params, "n_bins", ht.nBins); err != nil {
		return err
	}
	if ht.nBins < 1 {
		return errors.NewValidationError("n_bins", "must be at least 1", ht.nBins)
	}
	if ht.leafPrediction, err = model.ParamString(params, "leaf_prediction", ht.leafPrediction); err != nil {
		return err
	}
	if ht.leafPrediction != "mc" && ht.leafPrediction != "nb" {
		return errors.NewValidationError("leaf_prediction", "must be mc or nb", ht.leafPrediction)
	}
	seed, err := model.ParamInt(params, "seed", int(ht.seed))
	if err != nil {
		return err
	}
	ht.seed = int64(seed)
	return nil
}

// TreeSnapshot is the gob form of a HoeffdingTreeClassifier.
type TreeSnapshot struct {
	State           model.ModelState
	MaxDepth        int
	Criterion       string
	SplitConfidence float64
	GracePeriod     int
	TieThreshold    float64
	MaxFeatures     int
	NBins           int
	LeafPrediction  string
	Seed            int64
	Root            *Node
	NFeatures       int
	LeafSeq         int64
	Splits          int
}

// Snapshot captures the tree for embedding in a larger model.
func (ht *HoeffdingTreeClassifier) Snapshot() TreeSnapshot {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return TreeSnapshot{
		State:           ht.state.GetState(),
		MaxDepth:        ht.maxDepth,
		Criterion:       ht.criterion.Name(),
		SplitConfidence: ht.splitConfidence,
		GracePeriod:     ht.gracePeriod,
		TieThreshold:    ht.tieThreshold,
		MaxFeatures:     ht.maxFeatures,
		NBins:           ht.nBins,
		LeafPrediction:  ht.leafPrediction,
		Seed:            ht.seed,
		Root:            ht.root,
		NFeatures:       ht.nFeatures,
		LeafSeq:         ht.leafSeq,
		Splits:          ht.splits,
	}
}

// Restore replaces the tree with a snapshot. A snapshot whose nodes cannot be
// walked for its feature count is rejected with a CorruptArtifactError.
func (ht *HoeffdingTreeClassifier) Restore(s TreeSnapshot) error {
	crit, err := NewCriterion(s.Criterion)
	if err != nil {
		return errors.NewCorruptArtifactError(HoeffdingTreeName, err)
	}
	if err := s.check(); err != nil {
		return errors.NewCorruptArtifactError(HoeffdingTreeName, err)
	}
	ht.mu.Lock()
	defer ht.mu.Unlock()
	ht.state.SetState(s.State)
	ht.maxDepth = s.MaxDepth
	ht.criterion = crit
	ht.splitConfidence = s.SplitConfidence
	ht.gracePeriod = s.GracePeriod
	ht.tieThreshold = s.TieThreshold
	ht.maxFeatures = s.MaxFeatures
	ht.nBins = s.NBins
	ht.leafPrediction = s.LeafPrediction
	ht.seed = s.Seed
	ht.root = s.Root
	ht.nFeatures = s.NFeatures
	ht.leafSeq = s.LeafSeq
	ht.splits = s.Splits
	return nil
}

func (s TreeSnapshot) check() error {
	if s.NFeatures < 0 {
		return errors.Newf("negative feature count %d", s.NFeatures)
	}
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if (n.Left == nil) != (n.Right == nil) {
			return errors.Newf("node at depth %d has exactly one child", n.Depth)
		}
		if n.IsLeaf() {
			for f, obs := range n.Observers {
				if f < 0 || f >= s.NFeatures || obs == nil {
					return errors.Newf("leaf at depth %d observes feature %d of %d", n.Depth, f, s.NFeatures)
				}
			}
			return nil
		}
		if n.Feature < 0 || n.Feature >= s.NFeatures {
			return errors.Newf("node at depth %d splits on feature %d of %d", n.Depth, n.Feature, s.NFeatures)
		}
		if err := walk(n.Left); err != nil {
			return err
		}
		return walk(n.Right)
	}
	if s.Root == nil {
		return nil
	}
	return walk(s.Root)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (ht *HoeffdingTreeClassifier) MarshalBinary() ([]byte, error) {
	return model.EncodeGob(ht.Snapshot())
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (ht *HoeffdingTreeClassifier) UnmarshalBinary(data []byte) error {
	var s TreeSnapshot
	if err := model.DecodeGob(data, &s); err != nil {
		return err
	}
	return ht.Restore(s)
}
