// Package report writes analysis results as plain text series files and a
// JSON run summary.
//
// Scalar series are one float per line. Point series are two columns,
// "x y", one point per line. Every file is written to a temporary path
// first and renamed into place, so readers never see a partial file.
package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rewired-gh/rescatter/internal/models"
)

const (
	defaultFilePerm os.FileMode = 0644
	defaultDirPerm  os.FileMode = 0755
)

// Sink writes the outputs of runs into one directory.
type Sink struct {
	dir      string
	filePerm os.FileMode
	dirPerm  os.FileMode
}

// NewSink creates a Sink rooted at dir. Zero permissions fall back to
// 0644 for files and 0755 for directories.
func NewSink(dir string, filePerm, dirPerm os.FileMode) *Sink {
	if filePerm == 0 {
		filePerm = defaultFilePerm
	}
	if dirPerm == 0 {
		dirPerm = defaultDirPerm
	}
	return &Sink{dir: dir, filePerm: filePerm, dirPerm: dirPerm}
}

// Path returns where a file called name would be written.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.dir, FileName(name))
}

// WriteScalars writes a one-column file and returns its path.
func (s *Sink) WriteScalars(name string, values []float64) (string, error) {
	path := s.Path(name + ".txt")
	if err := s.mkdir(); err != nil {
		return "", err
	}
	return path, writeAtomic(path, formatScalars(values), s.filePerm)
}

// WriteSeries writes a two-column file and returns its path.
func (s *Sink) WriteSeries(prefix string, series models.Series) (string, error) {
	if err := series.Validate(); err != nil {
		return "", fmt.Errorf("invalid series %s: %w", series.Name, err)
	}
	path := s.Path(prefix + "_" + series.Name + ".txt")
	if err := s.mkdir(); err != nil {
		return "", err
	}
	return path, writeAtomic(path, formatPoints(series.Points), s.filePerm)
}

// WriteSummary writes the run summary as indented JSON.
func (s *Sink) WriteSummary(summary models.RunSummary) (string, error) {
	if err := summary.Validate(); err != nil {
		return "", fmt.Errorf("invalid run summary: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := s.Path(runPrefix(summary) + "_summary.json")
	if err := s.mkdir(); err != nil {
		return "", err
	}
	return path, writeAtomic(path, append(data, '\n'), s.filePerm)
}

// WriteRun writes every series and the per-file scalars of a run. It
// returns the paths written, in order.
func (s *Sink) WriteRun(summary models.RunSummary, withJSON bool) ([]string, error) {
	prefix := runPrefix(summary)

	var paths []string
	for _, series := range summary.Series {
		path, err := s.WriteSeries(prefix, series)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if len(summary.Scalars) > 0 {
		path, err := s.WriteScalars(prefix+"_per_file", summary.Scalars)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if withJSON {
		path, err := s.WriteSummary(summary)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func runPrefix(summary models.RunSummary) string {
	if summary.Channel != "" {
		return summary.Analysis + "_" + summary.Channel
	}
	return summary.Analysis
}

func (s *Sink) mkdir() error {
	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

var fileNameReplacer = strings.NewReplacer(
	"*", "star",
	"+", "plus",
	"-", "minus",
	" ", "_",
	"/", "_",
	"#", "",
)

// FileName makes a series or channel name safe to use as a file name.
func FileName(name string) string {
	return fileNameReplacer.Replace(name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatScalars(values []float64) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		buf.WriteString(formatFloat(v))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func formatPoints(points []models.Point) []byte {
	var buf bytes.Buffer
	for _, p := range points {
		buf.WriteString(formatFloat(p.X))
		buf.WriteByte(' ')
		buf.WriteString(formatFloat(p.Y))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// writeAtomic writes data to path through a temporary file in the same
// directory.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// ReadScalars reads a one-column file. Blank lines are ignored.
func ReadScalars(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var values []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// PairSeries zips two scalar series into points. Series of different
// lengths cannot be compared and yield models.ErrSeriesLengthMismatch.
func PairSeries(x, y []float64) ([]models.Point, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d vs %d values", models.ErrSeriesLengthMismatch, len(x), len(y))
	}
	points := make([]models.Point, len(x))
	for i := range x {
		points[i] = models.Point{X: x[i], Y: y[i]}
	}
	return points, nil
}

// WritePoints writes paired points to path as two columns.
func WritePoints(path string, points []models.Point, perm os.FileMode) error {
	if perm == 0 {
		perm = defaultFilePerm
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return writeAtomic(path, formatPoints(points), perm)
}
