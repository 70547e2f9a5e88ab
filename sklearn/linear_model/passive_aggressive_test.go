package linear_model

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

func TestPassiveAggressive_LearnsSeparableData(t *testing.T) {
	X, y := separable(20)

	pa := NewPassiveAggressiveClassifier()
	if err := pa.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if pa.Kind() != model.KindIncremental {
		t.Errorf("Kind() = %v", pa.Kind())
	}

	test := mat.NewDense(2, 2, []float64{0.8, 0.8, 3.2, 3.2})
	labels, err := pa.Predict(test, model.DefaultThreshold)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if labels.AtVec(0) != 0 || labels.AtVec(1) != 1 {
		t.Errorf("labels = %v, want [0 1]", mat.Formatted(labels.T()))
	}

	_, nSamples := pa.State().GetDimensions()
	if nSamples != 120 {
		t.Errorf("samples seen = %d, want 120", nSamples)
	}
}

func TestPassiveAggressive_PredictProbaUnsupported(t *testing.T) {
	X, y := separable(1)
	pa := NewPassiveAggressiveClassifier()
	_ = pa.Fit(X, y)

	_, err := pa.PredictProba(X)
	var unsupported *errors.UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
	if unsupported.Operation != "PredictProba" {
		t.Errorf("operation = %q", unsupported.Operation)
	}
}

func TestPassiveAggressive_OrderMatters(t *testing.T) {
	X, y := separable(3)
	rows, _ := X.Dims()

	reversedX := mat.NewDense(rows, 2, nil)
	reversedY := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		reversedX.SetRow(i, mat.Row(nil, rows-1-i, X))
		reversedY.SetVec(i, y.AtVec(rows-1-i))
	}

	forward := NewPassiveAggressiveClassifier(WithPALoss("squared_hinge"))
	backward := NewPassiveAggressiveClassifier(WithPALoss("squared_hinge"))
	if err := forward.Fit(X, y); err != nil {
		t.Fatalf("forward Fit: %v", err)
	}
	if err := backward.Fit(reversedX, reversedY); err != nil {
		t.Fatalf("backward Fit: %v", err)
	}

	holdout := mat.NewDense(3, 2, []float64{0, 0, 2, 2, 4, 4})
	for name, clf := range map[string]*PassiveAggressiveClassifier{"forward": forward, "backward": backward} {
		labels, err := clf.Predict(holdout, 0.5)
		if err != nil {
			t.Errorf("%s: Predict: %v", name, err)
			continue
		}
		for i := 0; i < labels.Len(); i++ {
			if v := labels.AtVec(i); v != 0 && v != 1 {
				t.Errorf("%s: non-binary label %v", name, v)
			}
		}
	}
}

func TestPassiveAggressive_RoundTrip(t *testing.T) {
	X, y := separable(5)
	pa := NewPassiveAggressiveClassifier(WithPAAverage(true))
	_ = pa.Fit(X, y)

	data, err := model.Marshal(pa)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := model.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want, _ := pa.Predict(X, 0.5)
	got, err := loaded.Predict(X, 0.5)
	if err != nil {
		t.Fatalf("Predict after load: %v", err)
	}
	if !mat.Equal(want, got) {
		t.Error("predictions differ after round trip")
	}

	// Incremental models keep learning after a reload.
	inc, ok := loaded.(model.IncrementalClassifier)
	if !ok {
		t.Fatal("loaded model should be incremental")
	}
	if err := inc.LearnOne([]float64{3, 3}, 1); err != nil {
		t.Errorf("LearnOne after load: %v", err)
	}
}

func TestPassiveAggressive_Validation(t *testing.T) {
	pa := NewPassiveAggressiveClassifier()
	if err := pa.LearnOne([]float64{1, 2}, 2); !errors.Is(err, errors.ErrNonBinaryLabel) {
		t.Errorf("expected ErrNonBinaryLabel, got %v", err)
	}
	_ = pa.LearnOne([]float64{1, 2}, 1)
	var dim *errors.DimensionError
	if err := pa.LearnOne([]float64{1}, 0); !errors.As(err, &dim) {
		t.Errorf("expected DimensionError, got %v", err)
	}
	if err := pa.SetParams(map[string]interface{}{"loss": "log"}); err == nil {
		t.Error("unsupported loss should be rejected")
	}
}

func TestPassiveAggressive_RejectsInconsistentArtifact(t *testing.T) {
	X, y := separable(5)
	pa := NewPassiveAggressiveClassifier(WithPAAverage(true))
	if err := pa.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	pa.avgCoef = pa.avgCoef[:1]

	data, err := model.Marshal(pa)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = model.Unmarshal(data)
	var corrupt *errors.CorruptArtifactError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptArtifactError, got %v", err)
	}
}
