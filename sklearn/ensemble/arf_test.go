package ensemble

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// concept labels rows by feature 0 > 0.5, inverted when flip is set.
func concept(n int, seed int64, flip bool) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x0, x1 := rng.Float64(), rng.Float64()
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		if (x0 > 0.5) != flip {
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

func newTestForest(opts ...ARFOption) *AdaptiveRandomForestClassifier {
	base := []ARFOption{
		WithNModels(5),
		WithARFMaxFeatures(2),
		WithTreeOptions(5, "gini", 1e-3, 50),
		WithARFSeed(7),
	}
	return NewAdaptiveRandomForestClassifier(append(base, opts...)...)
}

func TestARF_LearnsConcept(t *testing.T) {
	X, y := concept(3000, 1, false)
	Xt, yt := concept(500, 2, false)

	arf := newTestForest()
	if err := arf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if acc := accuracy(t, arf, Xt, yt); acc < 0.85 {
		t.Errorf("accuracy = %.3f, want >= 0.85", acc)
	}

	proba, err := arf.PredictProba(Xt)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	for i := 0; i < proba.Len(); i++ {
		if p := proba.AtVec(i); p < 0 || p > 1 {
			t.Fatalf("probability %v out of range", p)
		}
	}
}

func TestARF_RecoversFromConceptFlip(t *testing.T) {
	before, yb := concept(3000, 3, false)
	after, ya := concept(3000, 4, true)
	Xt, yt := concept(500, 5, true)

	arf := newTestForest()
	if err := arf.Fit(before, yb); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if err := arf.Fit(after, ya); err != nil {
		t.Fatalf("Fit after flip: %v", err)
	}

	_, drifts := arf.DriftStats()
	if drifts == 0 {
		t.Error("expected at least one tree replacement after the flip")
	}
	if acc := accuracy(t, arf, Xt, yt); acc < 0.8 {
		t.Errorf("accuracy on flipped concept = %.3f, want >= 0.8", acc)
	}
}

func TestARF_WithoutDetectionNeverReplaces(t *testing.T) {
	before, yb := concept(1500, 3, false)
	after, ya := concept(1500, 4, true)

	arf := newTestForest(WithDriftDetection(false))
	if err := arf.Fit(before, yb); err != nil {
		t.Fatal(err)
	}
	if err := arf.Fit(after, ya); err != nil {
		t.Fatal(err)
	}
	warnings, drifts := arf.DriftStats()
	if warnings != 0 || drifts != 0 {
		t.Errorf("DriftStats = (%d, %d), want (0, 0)", warnings, drifts)
	}
}

func TestARF_SeedIsDeterministic(t *testing.T) {
	X, y := concept(800, 11, false)
	Xt, _ := concept(100, 12, false)

	a, b := newTestForest(), newTestForest()
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pa, _ := a.PredictProba(Xt)
	pb, _ := b.PredictProba(Xt)
	if !mat.Equal(pa, pb) {
		t.Error("same seed and data produced different forests")
	}
}

// A restored forest must keep learning exactly like the original, including its
// bagging random stream.
func TestARF_RoundTripContinuesIdentically(t *testing.T) {
	first, y1 := concept(600, 21, false)
	second, y2 := concept(600, 22, false)
	Xt, _ := concept(100, 23, false)

	orig := newTestForest()
	if err := orig.Fit(first, y1); err != nil {
		t.Fatal(err)
	}

	data, err := model.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	clf, err := model.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	restored, ok := clf.(*AdaptiveRandomForestClassifier)
	if !ok {
		t.Fatalf("Unmarshal returned %T", clf)
	}

	p0, _ := orig.PredictProba(Xt)
	p1, err := restored.PredictProba(Xt)
	if err != nil {
		t.Fatalf("PredictProba on restored: %v", err)
	}
	if !mat.Equal(p0, p1) {
		t.Fatal("restored forest predicts differently")
	}

	if err := orig.Fit(second, y2); err != nil {
		t.Fatal(err)
	}
	if err := restored.Fit(second, y2); err != nil {
		t.Fatal(err)
	}
	p0, _ = orig.PredictProba(Xt)
	p1, _ = restored.PredictProba(Xt)
	if !mat.Equal(p0, p1) {
		t.Error("restored forest diverged after further learning")
	}
}

func TestARF_RegistryParams(t *testing.T) {
	clf, err := model.New(AdaptiveRandomForestName, map[string]interface{}{
		"n_models":        3,
		"split_criterion": "info_gain",
		"grace_period":    100.0,
		"drift_detection": false,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := clf.GetParams()
	if params["n_models"] != 3 || params["grace_period"] != 100 || params["drift_detection"] != false {
		t.Errorf("unexpected params %v", params)
	}
	if clf.Kind() != model.KindIncremental {
		t.Errorf("Kind = %v", clf.Kind())
	}

	bad := []map[string]interface{}{
		{"n_models": 0},
		{"lambda": -1.0},
		{"split_criterion": "mse"},
		{"grace_period": 0},
		{"unknown": 1},
	}
	for _, p := range bad {
		if _, err := model.New(AdaptiveRandomForestName, p); err == nil {
			t.Errorf("params %v accepted", p)
		}
	}
}

func TestARF_Errors(t *testing.T) {
	arf := newTestForest()
	if _, err := arf.PredictProba(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("expected NotFittedError")
	} else {
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Errorf("got %T", err)
		}
	}
	if err := arf.LearnOne([]float64{1, 2}, 2); !errors.Is(err, errors.ErrNonBinaryLabel) {
		t.Errorf("label 2: got %v", err)
	}
	if err := arf.LearnOne([]float64{1, 2}, 1); err != nil {
		t.Fatal(err)
	}
	if err := arf.LearnOne([]float64{1}, 1); err == nil {
		t.Error("expected dimension error")
	}
	if _, err := arf.Predict(mat.NewDense(1, 2, nil), 1.5); err == nil {
		t.Error("expected threshold validation error")
	}

	if _, err := model.Freeze(arf); err != nil {
		t.Fatal(err)
	}
	if err := arf.LearnOne([]float64{1, 2}, 0); err == nil {
		t.Error("frozen forest accepted a sample")
	}
}

func TestARF_UnknownSplitCriterion(t *testing.T) {
	arf := newTestForest(WithTreeOptions(5, "mse", 1e-3, 50))
	var valErr *errors.ValidationError
	if err := arf.LearnOne([]float64{1, 2}, 1); !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := arf.SetParams(map[string]interface{}{"n_models": 3}); !errors.As(err, &valErr) {
		t.Errorf("SetParams kept an invalid criterion: %v", err)
	}
}

func TestARF_RejectsInconsistentArtifact(t *testing.T) {
	tests := []struct {
		name   string
		damage func(a *AdaptiveRandomForestClassifier)
	}{
		{"fewer forest features than member trees", func(a *AdaptiveRandomForestClassifier) { a.nFeatures = 1 }},
		{"member count differs from n_models", func(a *AdaptiveRandomForestClassifier) { a.members = a.members[:2] }},
		{"member without drift detector", func(a *AdaptiveRandomForestClassifier) { a.members[0].Drift = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, y := concept(300, 31, false)
			arf := newTestForest()
			if err := arf.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			tt.damage(arf)

			data, err := model.Marshal(arf)
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
