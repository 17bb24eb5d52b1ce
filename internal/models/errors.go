package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Row and directive failures are
// recovered where they occur; manifest and series-length failures are
// returned to the caller.
var (
	ErrMissingManifest      = errors.New("manifest not found")
	ErrMissingInputFile     = errors.New("input file cannot be opened")
	ErrMalformedHeader      = errors.New("malformed directive")
	ErrMalformedRow         = errors.New("malformed particle row")
	ErrUndefined            = errors.New("undefined: no samples")
	ErrSeriesLengthMismatch = errors.New("series length mismatch")
)

// ErrorKind names a taxonomy entry for logs and run summaries.
type ErrorKind string

const (
	KindUnknown         ErrorKind = "unknown"
	KindMissingManifest ErrorKind = "missing_manifest"
	KindMissingInput    ErrorKind = "missing_input_file"
	KindMalformedHeader ErrorKind = "malformed_header"
	KindMalformedRow    ErrorKind = "malformed_row"
	KindUndefined       ErrorKind = "division_by_zero"
	KindLengthMismatch  ErrorKind = "series_length_mismatch"
)

// Classify maps err to its taxonomy kind using errors.Is.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrMissingManifest):
		return KindMissingManifest
	case errors.Is(err, ErrMissingInputFile):
		return KindMissingInput
	case errors.Is(err, ErrMalformedHeader):
		return KindMalformedHeader
	case errors.Is(err, ErrMalformedRow):
		return KindMalformedRow
	case errors.Is(err, ErrUndefined):
		return KindUndefined
	case errors.Is(err, ErrSeriesLengthMismatch):
		return KindLengthMismatch
	default:
		return KindUnknown
	}
}

// FileError represents a per-file error that did not stop the run
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
