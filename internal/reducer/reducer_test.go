package reducer

import (
	"errors"
	"math"
	"testing"

	"github.com/rewired-gh/rescatter/internal/binning"
	"github.com/rewired-gh/rescatter/internal/models"
)

func TestMerge_TwoFiles(t *testing.T) {
	// File A: one clean decay at t=10. File B: one rescattered decay at t=10.
	a := NewAccumulators()
	a.Total[10] = 1
	a.Detected[10] = 1
	a.Decays = 1

	b := NewAccumulators()
	b.Total[10] = 1
	b.Detected[10] = 0
	b.Decays = 1
	b.Rescattered = 1

	merged := MergeAll([]*Accumulators{a, b})
	if merged.Total[10] != 2 || merged.Detected[10] != 1 {
		t.Fatalf("Expected total=2 detected=1, got total=%d detected=%d", merged.Total[10], merged.Detected[10])
	}
	raw := binning.RawProbabilities(merged.Total, merged.Detected)
	if raw[10] != 0.5 {
		t.Errorf("Expected raw probability 0.5, got %v", raw[10])
	}
	if merged.Decays != 2 || merged.Rescattered != 1 {
		t.Errorf("Unexpected counters: %+v", merged)
	}
	if err := merged.Check(); err != nil {
		t.Errorf("Check failed: %v", err)
	}
}

func TestMerge_NamedCounters(t *testing.T) {
	a := NewAccumulators()
	Named(a.Gain, "K*").Add(map[float64]int{1: 2})
	b := NewAccumulators()
	Named(b.Gain, "K*").Add(map[float64]int{1: 3, 2: 1})
	Named(b.Decay, "rho").Add(map[float64]int{4: 1})

	a.Merge(b)
	if a.Gain["K*"][1] != 5 || a.Gain["K*"][2] != 1 {
		t.Errorf("Unexpected K* gain: %v", a.Gain["K*"])
	}
	if a.Decay["rho"][4] != 1 {
		t.Errorf("Unexpected rho decay: %v", a.Decay["rho"])
	}

	a.Merge(nil)
	if a.Gain["K*"][1] != 5 {
		t.Error("Merging nil must be a no-op")
	}
}

func TestCheck(t *testing.T) {
	a := NewAccumulators()
	a.Total[1] = 1
	a.Detected[1] = 2
	if err := a.Check(); err == nil {
		t.Error("Expected error when detected exceeds total")
	}
}

func TestMean(t *testing.T) {
	m, err := Mean([]float64{1, 2, 3, 6})
	if err != nil || m != 3 {
		t.Errorf("Mean = %v, %v; expected 3", m, err)
	}

	_, err = Mean(nil)
	if !errors.Is(err, models.ErrUndefined) {
		t.Errorf("Expected ErrUndefined, got %v", err)
	}

	e := Summarize(nil)
	if e.Defined {
		t.Error("Expected undefined estimate for no samples")
	}
	if e.String() != "undefined (0 samples)" {
		t.Errorf("Unexpected string: %s", e.String())
	}
	e = Summarize([]float64{0.25, 0.75})
	if !e.Defined || e.Value != 0.5 || e.Samples != 2 {
		t.Errorf("Unexpected estimate: %+v", e)
	}
	if math.Abs(e.StdError-0.25) > 1e-12 {
		t.Errorf("Expected standard error 0.25, got %v", e.StdError)
	}
	if e.String() != "0.5 ± 0.25 (2 samples)" {
		t.Errorf("Unexpected string: %s", e.String())
	}
	if e := Summarize([]float64{3}); e.StdError != 0 || e.String() != "3 (1 samples)" {
		t.Errorf("Unexpected single-sample estimate: %+v", e)
	}
}

func TestMergeOrdersDiffer(t *testing.T) {
	// Per-file averaging then averaging is not the pooled average.
	fileA := []float64{1, 1, 1}
	fileB := []float64{0}

	ma, _ := Mean(fileA)
	mb, _ := Mean(fileB)
	perFile, _ := Mean([]float64{ma, mb})
	pooled, _ := Mean(append(append([]float64{}, fileA...), fileB...))

	if perFile == pooled {
		t.Fatalf("Expected different results, both %v", perFile)
	}
	if perFile != 0.5 || pooled != 0.75 {
		t.Errorf("Unexpected means: per-file %v pooled %v", perFile, pooled)
	}
}

func TestStdError(t *testing.T) {
	if !math.IsNaN(StdError([]float64{1})) {
		t.Error("Expected NaN for a single sample")
	}
	got := StdError([]float64{1, 3})
	if math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected 1, got %v", got)
	}
}
