package tree

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// thresholdConcept labels rows 1 when feature 0 exceeds 0.5; feature 1 is noise.
func thresholdConcept(n int, seed int64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x0, x1 := rng.Float64(), rng.Float64()
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		if x0 > 0.5 {
			y.SetVec(i, 1)
		}
	}
	return X, y
}

func accuracy(t *testing.T, clf model.Predictor, X mat.Matrix, y *mat.VecDense) float64 {
	t.Helper()
	pred, err := clf.Predict(X, model.DefaultThreshold)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	correct := 0
	for i := 0; i < y.Len(); i++ {
		if pred.AtVec(i) == y.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(y.Len())
}

func TestHoeffdingTree_LearnsThreshold(t *testing.T) {
	X, y := thresholdConcept(3000, 1)
	Xt, yt := thresholdConcept(500, 2)

	for _, crit := range []string{"gini", "info_gain"} {
		t.Run(crit, func(t *testing.T) {
			ht := NewHoeffdingTreeClassifier(
				WithSplitCriterion(crit),
				WithGracePeriod(50),
				WithSplitConfidence(1e-3),
				WithMaxDepth(5),
			)
			if err := ht.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if ht.NumSplits() == 0 {
				t.Fatal("tree never split")
			}
			if ht.Depth() > 5 {
				t.Errorf("depth %d exceeds max_depth", ht.Depth())
			}
			if acc := accuracy(t, ht, Xt, yt); acc < 0.85 {
				t.Errorf("holdout accuracy %.3f, want >= 0.85", acc)
			}
		})
	}
}

func TestHoeffdingTree_MaxDepthZeroNeverSplits(t *testing.T) {
	X, y := thresholdConcept(1000, 3)
	ht := NewHoeffdingTreeClassifier(WithMaxDepth(0), WithGracePeriod(10))
	if err := ht.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if ht.NumSplits() != 0 {
		t.Errorf("splits = %d, want 0", ht.NumSplits())
	}

	proba, _ := ht.PredictProba(mat.NewDense(1, 2, []float64{0.9, 0.1}))
	_, n := ht.State().GetDimensions()
	if n != 1000 {
		t.Errorf("samples = %d", n)
	}
	if p := proba.AtVec(0); p <= 0.3 || p >= 0.7 {
		t.Errorf("single-leaf probability %v should be the class prior near 0.5", p)
	}
}

func TestHoeffdingTree_NaiveBayesLeaves(t *testing.T) {
	X, y := thresholdConcept(300, 4)
	ht := NewHoeffdingTreeClassifier(WithLeafPrediction("nb"), WithMaxDepth(0))
	_ = ht.Fit(X, y)

	proba, err := ht.PredictProba(mat.NewDense(2, 2, []float64{0.05, 0.5, 0.95, 0.5}))
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	if !(proba.AtVec(0) < 0.5 && proba.AtVec(1) > 0.5) {
		t.Errorf("naive Bayes leaf should separate the classes: %v", mat.Formatted(proba.T()))
	}
	for i := 0; i < 2; i++ {
		if p := proba.AtVec(i); math.IsNaN(p) || p < 0 || p > 1 {
			t.Errorf("invalid probability %v", p)
		}
	}
}

func TestHoeffdingTree_RoundTrip(t *testing.T) {
	X, y := thresholdConcept(1500, 5)
	clf, err := model.New(HoeffdingTreeName, map[string]interface{}{
		"grace_period":     50,
		"split_confidence": 1e-2,
		"max_depth":        5,
		"max_features":     1,
		"seed":             3,
	})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	data, err := model.Marshal(clf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := model.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want, _ := clf.PredictProba(X)
	got, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	if !mat.Equal(want, got) {
		t.Error("probabilities differ after round trip")
	}
	if loaded.GetParams()["split_criterion"] != "gini" {
		t.Errorf("params = %v", loaded.GetParams())
	}
}

func TestHoeffdingTree_RejectsInconsistentArtifact(t *testing.T) {
	tests := []struct {
		name   string
		damage func(ht *HoeffdingTreeClassifier)
	}{
		{"split feature out of range", func(ht *HoeffdingTreeClassifier) { ht.root.Feature = 7 }},
		{"negative split feature", func(ht *HoeffdingTreeClassifier) { ht.root.Feature = -1 }},
		{"one child only", func(ht *HoeffdingTreeClassifier) { ht.root.Right = nil }},
		{"fewer features than splits", func(ht *HoeffdingTreeClassifier) { ht.nFeatures = ht.root.Feature }},
		{"unknown criterion", func(ht *HoeffdingTreeClassifier) { ht.criterion = namedCriterion{ht.criterion, "entropy?"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, y := thresholdConcept(1500, 5)
			ht := NewHoeffdingTreeClassifier(WithGracePeriod(50), WithSplitConfidence(1e-2))
			if err := ht.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if ht.root.IsLeaf() {
				t.Fatal("tree never split")
			}
			tt.damage(ht)

			data, err := model.Marshal(ht)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			_, err = model.Unmarshal(data)
			var corrupt *errors.CorruptArtifactError
			if !errors.As(err, &corrupt) {
				t.Fatalf("expected CorruptArtifactError, got %v", err)
			}
		})
	}
}

// namedCriterion reports a different name for an existing criterion.
type namedCriterion struct {
	Criterion
	name string
}

func (c namedCriterion) Name() string { return c.name }

func TestHoeffdingTree_OrderDependence(t *testing.T) {
	X, y := thresholdConcept(600, 6)
	rows, cols := X.Dims()
	rX := mat.NewDense(rows, cols, nil)
	ry := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		rX.SetRow(i, mat.Row(nil, rows-1-i, X))
		ry.SetVec(i, y.AtVec(rows-1-i))
	}

	a := NewHoeffdingTreeClassifier(WithGracePeriod(40), WithSplitConfidence(1e-2))
	b := NewHoeffdingTreeClassifier(WithGracePeriod(40), WithSplitConfidence(1e-2))
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(rX, ry); err != nil {
		t.Fatal(err)
	}

	Xt, _ := thresholdConcept(50, 7)
	for _, clf := range []*HoeffdingTreeClassifier{a, b} {
		labels, err := clf.Predict(Xt, 0.5)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if labels.Len() != 50 {
			t.Errorf("got %d labels", labels.Len())
		}
	}
}

func TestHoeffdingTree_Validation(t *testing.T) {
	ht := NewHoeffdingTreeClassifier()

	_, err := ht.PredictProba(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	if err := ht.LearnOne([]float64{1, 2}, 3); !errors.Is(err, errors.ErrNonBinaryLabel) {
		t.Errorf("expected ErrNonBinaryLabel, got %v", err)
	}
	_ = ht.LearnOne([]float64{1, 2}, 1)
	var dim *errors.DimensionError
	if err := ht.LearnOne([]float64{1, 2, 3}, 1); !errors.As(err, &dim) {
		t.Errorf("expected DimensionError, got %v", err)
	}

	bad := []map[string]interface{}{
		{"split_criterion": "mse"},
		{"split_confidence": 0.0},
		{"grace_period": 0},
		{"leaf_prediction": "nba"},
		{"depth": 3},
	}
	for _, params := range bad {
		if err := NewHoeffdingTreeClassifier().SetParams(params); err == nil {
			t.Errorf("SetParams(%v) should fail", params)
		}
	}
}

func TestHoeffdingTree_UnknownCriterionOption(t *testing.T) {
	ht := NewHoeffdingTreeClassifier(WithSplitCriterion("mse"))

	var valErr *errors.ValidationError
	if !errors.As(ht.Err(), &valErr) {
		t.Fatalf("Err() = %v, want ValidationError", ht.Err())
	}
	if valErr.ParamName != "split_criterion" {
		t.Errorf("param = %q", valErr.ParamName)
	}
	if err := ht.LearnOne([]float64{1, 2}, 1); !errors.As(err, &valErr) {
		t.Errorf("LearnOne with an invalid option: got %v", err)
	}
	if ht.IsFitted() {
		t.Error("tree learned despite the invalid option")
	}

	if err := ht.SetParams(map[string]interface{}{"split_criterion": "info_gain"}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if err := ht.Err(); err != nil {
		t.Errorf("a valid criterion clears the option error, got %v", err)
	}
	if err := ht.LearnOne([]float64{1, 2}, 1); err != nil {
		t.Errorf("LearnOne after SetParams: %v", err)
	}

	if err := NewHoeffdingTreeClassifier(WithSplitCriterion("gini")).Err(); err != nil {
		t.Errorf("gini: %v", err)
	}
}

func TestHoeffdingBound(t *testing.T) {
	eps := hoeffdingBound(1, 1e-7, 200)
	want := math.Sqrt(math.Log(1e7) / 400)
	if math.Abs(eps-want) > 1e-12 {
		t.Errorf("bound = %v, want %v", eps, want)
	}
	if hoeffdingBound(1, 1e-7, 2000) >= eps {
		t.Error("bound must shrink as n grows")
	}
}
