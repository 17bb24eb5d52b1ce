package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/testkit/simlog"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "list.txt", "a.txt\n\n  b.txt  \n\n")

	paths, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "a.txt" || paths[1] != "b.txt" {
		t.Errorf("Expected [a.txt b.txt], got %v", paths)
	}

	_, err = ReadManifest(filepath.Join(dir, "missing.txt"))
	if !errors.Is(err, models.ErrMissingManifest) {
		t.Errorf("Expected ErrMissingManifest, got %v", err)
	}
}

func TestRunner_MergesFilesAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	clean := simlog.New().
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211})
	dirty := simlog.New().
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211}).
		Scatter(11, 2, 40)

	a := writeFile(t, dir, "a.txt", clean.String())
	b := writeFile(t, dir, "b.txt", dirty.String())
	missing := filepath.Join(dir, "gone.txt")
	manifest := writeFile(t, dir, "list.txt", strings.Join([]string{a, "", missing, b, ""}, "\n"))

	report, err := NewRunner(2, false).Run(context.Background(), manifest, newDetection())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	acc := report.Result.Acc
	if acc.Total[10] != 2 || acc.Detected[10] != 1 {
		t.Errorf("Expected total 2 detected 1, got %d %d", acc.Total[10], acc.Detected[10])
	}
	if len(report.Files) != 2 || report.Files[0].Path != a || report.Files[1].Path != b {
		t.Errorf("Expected files in manifest order, got %d files", len(report.Files))
	}
	if len(report.Errors) != 1 || report.Errors[0].Path != missing {
		t.Fatalf("Expected one skipped file, got %+v", report.Errors)
	}
	if !errors.Is(report.Errors[0], models.ErrMissingInputFile) {
		t.Errorf("Expected ErrMissingInputFile, got %v", report.Errors[0])
	}

	s := report.Summary
	if s.FilesListed != 3 || s.FilesProcessed != 2 || s.FilesSkipped != 1 {
		t.Errorf("Unexpected file counts: %+v", s)
	}
	if !s.ResultDefined || s.Result != 0.5 {
		t.Errorf("Expected result 0.5, got %v (defined=%v)", s.Result, s.ResultDefined)
	}
	if s.Decays != 2 || s.Rescattered != 1 {
		t.Errorf("Expected 2 decays and 1 rescattering, got %d %d", s.Decays, s.Rescattered)
	}
	if s.ID == "" || s.Analysis != models.AnalysisDetection {
		t.Errorf("Unexpected summary identity: %q %q", s.ID, s.Analysis)
	}
	if _, ok := s.Errors[missing]; !ok {
		t.Errorf("Expected summary error for %s, got %v", missing, s.Errors)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Summary should validate: %v", err)
	}
}

func TestRunner_MissingManifest(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "nope.txt")

	report, err := NewRunner(1, false).Run(context.Background(), manifest, newDetection())
	if err != nil {
		t.Fatalf("Expected lenient run to succeed, got %v", err)
	}
	if !report.Undefined() {
		t.Error("Expected an undefined result with no input")
	}
	if report.Summary.FilesListed != 0 {
		t.Errorf("Expected 0 files, got %d", report.Summary.FilesListed)
	}

	_, err = NewRunner(1, true).Run(context.Background(), manifest, newDetection())
	if !errors.Is(err, models.ErrMissingManifest) {
		t.Errorf("Expected ErrMissingManifest in strict mode, got %v", err)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", simlog.New().String())
	manifest := writeFile(t, dir, "list.txt", a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner(1, false).Run(ctx, manifest, newDetection()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRunner_ChannelSummary(t *testing.T) {
	dir := t.TempDir()
	log := simlog.New().
		EventIn(0).
		Decay(simlog.Row{T: 1, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211}).
		EventOut(0, simlog.Row{T: 30, ID: 7, PDG: -321})
	manifest := writeFile(t, dir, "list.txt", writeFile(t, dir, "a.txt", log.String()))

	c := &ChannelRatio{Schema: newDetection().Schema, DecayType: 5, Channel: kaonChannel()}
	report, err := NewRunner(0, false).Run(context.Background(), manifest, c)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Summary.Channel != "kstar_kminus" {
		t.Errorf("Expected channel name in summary, got %q", report.Summary.Channel)
	}
	if len(report.Summary.Scalars) != 1 || report.Summary.Scalars[0] != 1 {
		t.Errorf("Expected per-file series [1], got %v", report.Summary.Scalars)
	}
}
