// Package analysis runs the per-file passes over simulation logs and
// reduces their results across a manifest of files.
//
// Every Analyzer scans one file strictly in order and returns a FileResult;
// the Runner fans files out over a bounded worker pool and hands the
// results back to the Analyzer, in manifest order, for the final
// reduction.
package analysis

import (
	"errors"
	"fmt"
	"io"

	"github.com/rewired-gh/rescatter/internal/ledger"
	"github.com/rewired-gh/rescatter/internal/logger"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/reducer"
)

// Analyzer is one statistic computed over a set of log files.
type Analyzer interface {
	// Name identifies the analysis in summaries and output file names.
	Name() string
	// Scan runs the sequential pass over one file.
	Scan(r io.Reader) (*FileResult, error)
	// Reduce combines per-file results, given in manifest order.
	Reduce(files []*FileResult) (*Result, error)
}

// FileResult is what one file contributes.
type FileResult struct {
	Index int
	Path  string

	// Acc holds time-keyed counts merged key-wise across files.
	Acc *reducer.Accumulators
	// Values holds per-event samples averaged inside the file.
	Values []float64
	// Undefined counts events whose sample had a zero denominator.
	Undefined int
	Stats     record.Stats
}

// Mean is the file's own unweighted average of its per-event samples.
func (f *FileResult) Mean() reducer.Estimate {
	return reducer.Summarize(f.Values)
}

// Result is the reduced outcome of a run.
type Result struct {
	Acc    *reducer.Accumulators
	Series []models.Series
	// Scalars is the per-file series, one defined value per file in
	// manifest order.
	Scalars []float64
	// Estimate is the headline number. Nil when the analysis has none.
	Estimate *reducer.Estimate
}

func newFileResult() *FileResult {
	return &FileResult{Acc: reducer.NewAccumulators()}
}

// mergeFiles sums the accumulators of every file.
func mergeFiles(files []*FileResult) *reducer.Accumulators {
	parts := make([]*reducer.Accumulators, 0, len(files))
	for _, f := range files {
		parts = append(parts, f.Acc)
	}
	return reducer.MergeAll(parts)
}

// perFileScalars returns the defined per-file means. Files without a single
// defined sample are left out of the series.
func perFileScalars(files []*FileResult) []float64 {
	var out []float64
	for _, f := range files {
		e := f.Mean()
		if !e.Defined {
			logger.Warn("No defined samples in %s, leaving it out of the per-file series", f.Path)
			continue
		}
		out = append(out, e.Value)
	}
	return out
}

// skippable reports whether err from the reader only affects one line.
func skippable(err error) bool {
	return errors.Is(err, models.ErrMalformedHeader) || errors.Is(err, models.ErrMalformedRow)
}

// interactionPass reads the rows of one interaction block. Every accepted
// row is first checked against the ledger as a possible rescattering of a
// tracked daughter; only then is the block's own decay registered.
func interactionPass(rd *record.Reader, l *ledger.Ledger, h models.InteractionHeader, decayType int, acc *reducer.Accumulators) error {
	parts, err := rd.ReadParticles(h.Rows(), func(p models.ParticleRecord) {
		if l.ObserveIncoming(p.ID) {
			acc.Rescattered++
		}
	})
	if err != nil {
		return err
	}
	if h.Type != decayType || len(parts) < 3 {
		return nil
	}
	mother := parts[0]
	if l.Register(mother.PDG, mother.Time, parts[1].ID, parts[2].ID) {
		acc.Decays++
	}
	return nil
}

// next reads the following record, logging and skipping malformed lines.
// It returns io.EOF at the end of input.
func next(rd *record.Reader) (record.Record, error) {
	for {
		rec, err := rd.Next()
		if err == nil || !skippable(err) {
			return rec, err
		}
		logger.Debug("Skipping %s line %q: %v", rec.Kind, rec.Line, err)
	}
}

func finish(rd *record.Reader, res *FileResult) {
	res.Stats = rd.Stats()
	res.Acc.MalformedRows = res.Stats.MalformedRows
}

// Species names a particle code in configuration.
type Species struct {
	Name string `mapstructure:"name"`
	PDG  int    `mapstructure:"pdg"`
}

// Validate checks the species entry.
func (s Species) Validate() error {
	if s.Name == "" {
		return errors.New("species name must not be empty")
	}
	if s.PDG == 0 {
		return fmt.Errorf("species %s: pdg must not be 0", s.Name)
	}
	return nil
}

// codeSet builds a lookup set of particle codes.
func codeSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
