package models

import (
	"errors"
	"time"
)

// Analysis names accepted by the runner.
const (
	AnalysisDetection    = "detection"
	AnalysisNetGain      = "netgain"
	AnalysisRatio        = "ratio"
	AnalysisMultiplicity = "multiplicity"
	AnalysisTemporal     = "temporal"
)

// RunSummary describes one completed analysis run over a manifest
type RunSummary struct {
	ID             string            `json:"id"`
	Analysis       string            `json:"analysis"`
	Channel        string            `json:"channel,omitempty"`
	Manifest       string            `json:"manifest"`
	FilesListed    int               `json:"files_listed"`
	FilesProcessed int               `json:"files_processed"`
	FilesSkipped   int               `json:"files_skipped"`
	Events         int               `json:"events"`
	Decays         int               `json:"decays"`
	Rescattered    int               `json:"rescattered"`
	MalformedRows  int               `json:"malformed_rows"`
	Result         float64           `json:"result"`
	ResultDefined  bool              `json:"result_defined"`
	Series         []Series          `json:"series,omitempty"`
	Scalars        []float64         `json:"scalars,omitempty"`
	Errors         map[string]string `json:"errors,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// Validate checks that all summary fields are valid
func (r *RunSummary) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.Analysis == "" {
		return errors.New("analysis must not be empty")
	}
	if r.FilesProcessed+r.FilesSkipped > r.FilesListed {
		return errors.New("processed + skipped files must not exceed listed files")
	}
	if r.Rescattered > r.Decays {
		return errors.New("rescattered decays must not exceed registered decays")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return errors.New("finished at must be >= started at")
	}
	return nil
}

// Duration returns the wall time of the run.
func (r *RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
