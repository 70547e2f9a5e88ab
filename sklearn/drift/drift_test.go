package drift

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"testing"
)

func TestADWINStableStream(t *testing.T) {
	a := NewADWIN()
	rng := rand.New(rand.NewSource(1))
	drifts := 0
	for i := 0; i < 2000; i++ {
		v := 0.0
		if rng.Float64() < 0.2 {
			v = 1
		}
		if a.Update(v) {
			drifts++
		}
	}
	if drifts > 1 {
		t.Errorf("stationary stream triggered %d cuts", drifts)
	}
	if drifts == 0 && a.Width() != 2000 {
		t.Errorf("window should keep every value on a stable stream, width=%d", a.Width())
	}
	if m := a.Mean(); m < 0.15 || m > 0.25 {
		t.Errorf("mean = %v, want about 0.2", m)
	}
}

func TestADWINDetectsShift(t *testing.T) {
	a := NewADWIN()
	for i := 0; i < 1000; i++ {
		a.Update(0)
	}
	detected := false
	for i := 0; i < 500 && !detected; i++ {
		detected = a.Update(1)
	}
	if !detected {
		t.Fatal("abrupt change from 0 to 1 was not detected")
	}
	if a.Width() >= 1000 {
		t.Errorf("window should shrink after a cut, width=%d", a.Width())
	}
}

func TestADWINBucketsStayLogarithmic(t *testing.T) {
	a := NewADWIN(WithADWINClock(1 << 30))
	for i := 0; i < 10000; i++ {
		a.Update(1)
	}
	if len(a.buckets) > 5*15 {
		t.Errorf("too many buckets: %d", len(a.buckets))
	}
	if a.Width() != 10000 {
		t.Errorf("width = %d, want 10000", a.Width())
	}
}

func TestADWINGobRoundTrip(t *testing.T) {
	a := NewADWIN(WithADWINDelta(0.01))
	for i := 0; i < 100; i++ {
		a.Update(float64(i % 2))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored := &ADWIN{}
	if err := gob.NewDecoder(&buf).Decode(restored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if restored.Width() != a.Width() || restored.Mean() != a.Mean() || restored.delta != 0.01 {
		t.Errorf("restored detector differs: width %d/%d mean %v/%v", restored.Width(), a.Width(), restored.Mean(), a.Mean())
	}
}

func TestDDMWarningThenDrift(t *testing.T) {
	d := NewDDM()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		res := d.UpdateOutcome(rng.Float64() > 0.3)
		if res.DriftDetected() {
			t.Fatalf("drift on stable 30%% error stream at %d", i)
		}
	}

	sawWarning, sawDrift := false, false
	for i := 0; i < 300 && !sawDrift; i++ {
		res := d.UpdateOutcome(rng.Float64() > 0.8)
		sawWarning = sawWarning || res.WarningDetected()
		sawDrift = res.DriftDetected()
	}
	if !sawWarning || !sawDrift {
		t.Errorf("expected warning and drift after error rate jump, warning=%v drift=%v", sawWarning, sawDrift)
	}
	if st := d.Statistics(); st.NumInstances != 0 {
		t.Errorf("statistics should restart after drift, got %d instances", st.NumInstances)
	}
}

func TestDDMMinInstances(t *testing.T) {
	d := NewDDM(WithDDMMinNumInstances(50))
	for i := 0; i < 49; i++ {
		if res := d.UpdateOutcome(false); res.Level != LevelStable {
			t.Fatalf("no detection before min instances, got %v at %d", res.Level, i)
		}
	}
	if d.Update(1) {
		t.Error("constant error stream should not drift")
	}
}
