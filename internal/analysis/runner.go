package analysis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/rescatter/internal/logger"
	"github.com/rewired-gh/rescatter/internal/models"
)

const defaultWorkers = 4

// ReadManifest returns the non-blank lines of a manifest file, in order.
// A manifest that cannot be opened yields an error wrapping
// models.ErrMissingManifest.
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMissingManifest, path, err)
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return paths, nil
}

// Runner processes the files of a manifest in parallel. Each file is
// scanned by exactly one worker; nothing is shared between workers until
// the final reduction.
type Runner struct {
	workers int
	strict  bool
}

// NewRunner creates a Runner with at most workers files in flight. With
// strict set, a missing manifest aborts the run instead of producing an
// empty one.
func NewRunner(workers int, strict bool) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{workers: workers, strict: strict}
}

// Report is the outcome of a run.
type Report struct {
	Summary models.RunSummary
	Result  *Result
	Files   []*FileResult
	// Errors lists the files that were skipped, in manifest order.
	Errors []models.FileError
}

type outcome struct {
	index int
	res   *FileResult
	err   *models.FileError
}

// Run reads the manifest, scans every listed file and reduces the results.
// Files that cannot be opened or read are logged, skipped and reported in
// Report.Errors; they never abort the run.
func (r *Runner) Run(ctx context.Context, manifest string, a Analyzer) (*Report, error) {
	started := time.Now()

	paths, err := ReadManifest(manifest)
	if err != nil {
		if r.strict || !errors.Is(err, models.ErrMissingManifest) {
			return nil, err
		}
		logger.Warn("%v; continuing with no input files", err)
	}

	logger.Info("Running %s over %d files with %d workers", a.Name(), len(paths), r.workers)

	p := pool.NewWithResults[outcome]().WithMaxGoroutines(r.workers)
	for i, path := range paths {
		p.Go(func() outcome {
			if err := ctx.Err(); err != nil {
				return outcome{index: i, err: &models.FileError{Path: path, Err: err}}
			}
			res, err := scanFile(a, path)
			if err != nil {
				return outcome{index: i, err: &models.FileError{Path: path, Err: err}}
			}
			res.Index = i
			res.Path = path
			return outcome{index: i, res: res}
		})
	}
	outcomes := p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	report := &Report{}
	for _, o := range outcomes {
		if o.err != nil {
			logger.Warn("Skipping %s: %v", o.err.Path, o.err.Err)
			report.Errors = append(report.Errors, *o.err)
			continue
		}
		report.Files = append(report.Files, o.res)
	}

	result, err := a.Reduce(report.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce %s: %w", a.Name(), err)
	}
	report.Result = result
	report.Summary = r.summarize(a, manifest, len(paths), report, started)

	logger.Info("Finished %s: %s files, %s events, %s decays (%s rescattered) in %v",
		a.Name(),
		humanize.Comma(int64(report.Summary.FilesProcessed)),
		humanize.Comma(int64(report.Summary.Events)),
		humanize.Comma(int64(report.Summary.Decays)),
		humanize.Comma(int64(report.Summary.Rescattered)),
		report.Summary.Duration().Round(time.Millisecond))
	if est := result.Estimate; est != nil {
		logger.Info("%s estimate: %s", a.Name(), est)
	}
	return report, nil
}

func scanFile(a Analyzer, path string) (*FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMissingInputFile, err)
	}
	defer f.Close()

	logger.Debug("Scanning %s", path)
	res, err := a.Scan(f)
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	if res.Stats.MalformedRows > 0 || res.Stats.MalformedHeaders > 0 {
		logger.Debug("%s: skipped %d malformed rows and %d malformed directives",
			path, res.Stats.MalformedRows, res.Stats.MalformedHeaders)
	}
	return res, nil
}

func (r *Runner) summarize(a Analyzer, manifest string, listed int, report *Report, started time.Time) models.RunSummary {
	s := models.RunSummary{
		ID:             uuid.New().String(),
		Analysis:       a.Name(),
		Manifest:       manifest,
		FilesListed:    listed,
		FilesProcessed: len(report.Files),
		FilesSkipped:   len(report.Errors),
		Series:         report.Result.Series,
		Scalars:        report.Result.Scalars,
		StartedAt:      started,
		FinishedAt:     time.Now(),
	}
	if c, ok := a.(*ChannelRatio); ok {
		s.Channel = c.Channel.Name
	}
	if acc := report.Result.Acc; acc != nil {
		s.Events = acc.Events
		s.Decays = acc.Decays
		s.Rescattered = acc.Rescattered
		s.MalformedRows = acc.MalformedRows
	}
	if est := report.Result.Estimate; est != nil {
		s.Result = est.Value
		s.ResultDefined = est.Defined
	}
	if len(report.Errors) > 0 {
		s.Errors = make(map[string]string, len(report.Errors))
		for _, fe := range report.Errors {
			s.Errors[fe.Path] = fmt.Sprintf("%s: %v", models.Classify(fe.Err), fe.Err)
		}
	}
	return s
}

// Undefined reports whether the run has a headline number that could not be
// computed.
func (r *Report) Undefined() bool {
	return r.Result != nil && r.Result.Estimate != nil && !r.Result.Estimate.Defined
}
