package record

import (
	"bufio"
	"errors"
	"io"

	"github.com/rewired-gh/rescatter/internal/models"
)

const (
	defaultBufSize = 64 * 1024
	maxLineSize    = 4 * 1024 * 1024
)

// Stats counts what the reader skipped.
type Stats struct {
	Lines            int
	MalformedHeaders int
	MalformedRows    int
}

type pending struct {
	rec Record
	err error
}

// Reader yields classified records from a log, one line at a time, with a
// single record of pushback.
type Reader struct {
	scanner *bufio.Scanner
	schema  Schema
	back    *pending
	stats   Stats
}

// NewReader creates a Reader over r using schema for particle rows.
func NewReader(r io.Reader, schema Schema) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, defaultBufSize), maxLineSize)
	return &Reader{scanner: sc, schema: schema}
}

// Next returns the next record. At the end of input it returns io.EOF.
// Malformed lines come back with their Kind and a non-nil error; the
// reader itself stays usable.
func (r *Reader) Next() (Record, error) {
	if r.back != nil {
		p := r.back
		r.back = nil
		return p.rec, p.err
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, io.EOF
	}
	r.stats.Lines++
	rec, err := Classify(r.scanner.Text(), r.schema)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMalformedHeader):
			r.stats.MalformedHeaders++
		case errors.Is(err, models.ErrMalformedRow):
			r.stats.MalformedRows++
		}
	}
	return rec, err
}

// Unread pushes a record back so the next call to Next returns it again.
// Only one record can be pending.
func (r *Reader) Unread(rec Record, err error) {
	r.back = &pending{rec: rec, err: err}
}

// ReadParticles collects up to n particle rows following a directive.
// Blank, unrecognised and malformed rows are skipped without counting
// toward n. A directive met early is pushed back and ends the block, so
// the caller sees it as the next record. observe, if not nil, is called
// for every accepted row in file order. The returned slice may be shorter
// than n.
func (r *Reader) ReadParticles(n int, observe func(models.ParticleRecord)) ([]models.ParticleRecord, error) {
	parts := make([]models.ParticleRecord, 0, max(n, 0))
	for len(parts) < n {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return parts, nil
		}
		if rec.Kind.IsDirective() {
			r.Unread(rec, err)
			return parts, nil
		}
		if err != nil {
			if errors.Is(err, models.ErrMalformedRow) {
				continue
			}
			return parts, err
		}
		if rec.Kind != KindParticle {
			continue
		}
		if observe != nil {
			observe(rec.Particle)
		}
		parts = append(parts, rec.Particle)
	}
	return parts, nil
}

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}
