// Package reducer merges per-file results into run-wide statistics.
//
// Two merge orders exist and are not interchangeable. Time-keyed counts are
// summed key-wise across files before any binning (Merge). Per-file scalars
// are averaged inside their file first and only then combined (Mean over
// the per-file values), so every file weighs the same regardless of how
// many events it holds.
package reducer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/rescatter/internal/models"
)

// Counts is a time-keyed counter.
type Counts map[float64]int

// Add adds other into c key-wise.
func (c Counts) Add(other map[float64]int) {
	for t, n := range other {
		c[t] += n
	}
}

// Accumulators holds the additive results of one or more files.
type Accumulators struct {
	Total    Counts
	Detected Counts
	Gain     map[string]Counts
	Decay    map[string]Counts
	Species  map[string]Counts

	Events        int
	Decays        int
	Rescattered   int
	MalformedRows int
}

// NewAccumulators returns empty accumulators.
func NewAccumulators() *Accumulators {
	return &Accumulators{
		Total:    make(Counts),
		Detected: make(Counts),
		Gain:     make(map[string]Counts),
		Decay:    make(map[string]Counts),
		Species:  make(map[string]Counts),
	}
}

// Named returns the counter for name in m, creating it if needed.
func Named(m map[string]Counts, name string) Counts {
	c, ok := m[name]
	if !ok {
		c = make(Counts)
		m[name] = c
	}
	return c
}

// Merge adds other into a key-wise.
func (a *Accumulators) Merge(other *Accumulators) {
	if other == nil {
		return
	}
	a.Total.Add(other.Total)
	a.Detected.Add(other.Detected)
	for name, c := range other.Gain {
		Named(a.Gain, name).Add(c)
	}
	for name, c := range other.Decay {
		Named(a.Decay, name).Add(c)
	}
	for name, c := range other.Species {
		Named(a.Species, name).Add(c)
	}
	a.Events += other.Events
	a.Decays += other.Decays
	a.Rescattered += other.Rescattered
	a.MalformedRows += other.MalformedRows
}

// MergeAll sums a list of accumulators into a new value.
func MergeAll(parts []*Accumulators) *Accumulators {
	out := NewAccumulators()
	for _, p := range parts {
		out.Merge(p)
	}
	return out
}

// Check verifies 0 <= detected[t] <= total[t] for every decay time.
func (a *Accumulators) Check() error {
	for t, d := range a.Detected {
		n := a.Total[t]
		if d < 0 || d > n {
			return fmt.Errorf("detected[%v] = %d outside [0, %d]", t, d, n)
		}
	}
	return nil
}

// Mean returns the unweighted arithmetic mean of values. An empty input is
// undefined and returns an error wrapping models.ErrUndefined.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("mean of 0 samples: %w", models.ErrUndefined)
	}
	return stat.Mean(values, nil), nil
}

// Estimate is a reported scalar that may be undefined.
type Estimate struct {
	Value    float64 `json:"value"`
	StdError float64 `json:"std_error,omitempty"`
	Samples  int     `json:"samples"`
	Defined  bool    `json:"defined"`
}

// Summarize wraps Mean into an Estimate.
func Summarize(values []float64) Estimate {
	m, err := Mean(values)
	if err != nil {
		return Estimate{}
	}
	e := Estimate{Value: m, Samples: len(values), Defined: true}
	if len(values) > 1 {
		e.StdError = StdError(values)
	}
	return e
}

func (e Estimate) String() string {
	if !e.Defined {
		return "undefined (0 samples)"
	}
	if e.StdError > 0 {
		return fmt.Sprintf("%.6g ± %.2g (%d samples)", e.Value, e.StdError, e.Samples)
	}
	return fmt.Sprintf("%.6g (%d samples)", e.Value, e.Samples)
}

// StdError returns the standard error of the mean, or NaN for fewer than
// two samples.
func StdError(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdErr(stat.StdDev(values, nil), float64(len(values)))
}
