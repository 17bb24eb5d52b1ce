// Package simlog builds synthetic simulation logs for tests.
package simlog

import (
	"fmt"
	"strings"
)

// Row is one particle line. It renders in the 22-column OSCAR2013 layout,
// which every built-in schema except oscar1999 can read.
type Row struct {
	T        float64
	ID       int
	PDG      int
	Charge   int
	NColl    int
	Form     float64
	LastColl float64
	Px       float64
	Py       float64
	Pz       float64
}

// String renders the row.
func (r Row) String() string {
	return fmt.Sprintf("%g 0 0 0 0.138 1 %g %g %g %d %d %d %d %g 1 0 0 %g 0 0 0 0",
		r.T, r.Px, r.Py, r.Pz, r.PDG, r.ID, r.Charge, r.NColl, r.Form, r.LastColl)
}

// Builder accumulates log lines.
type Builder struct {
	lines []string
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Raw appends a line verbatim.
func (b *Builder) Raw(line string) *Builder {
	b.lines = append(b.lines, line)
	return b
}

// Interaction appends a header followed by rows.
func (b *Builder) Interaction(in, out, typ int, rows ...Row) *Builder {
	b.lines = append(b.lines, fmt.Sprintf("# interaction in %d out %d rho 0.0 weight 0 partial 0 type %d", in, out, typ))
	for _, r := range rows {
		b.lines = append(b.lines, r.String())
	}
	return b
}

// Decay appends a type 5 block: the mother decays at its own time into d1, d2.
func (b *Builder) Decay(mother, d1, d2 Row) *Builder {
	d1.T, d2.T = mother.T, mother.T
	return b.Interaction(1, 2, 5, mother, d1, d2)
}

// Scatter appends a two-to-two elastic block.
func (b *Builder) Scatter(t float64, a, c int) *Builder {
	return b.Interaction(2, 2, 1,
		Row{T: t, ID: a, PDG: 211}, Row{T: t, ID: c, PDG: 211},
		Row{T: t, ID: a, PDG: 211}, Row{T: t, ID: c, PDG: 211})
}

// EventIn appends an event start line.
func (b *Builder) EventIn(n int) *Builder {
	b.lines = append(b.lines, fmt.Sprintf("# event %d in 0", n))
	return b
}

// EventOut appends an event end line followed by its final-state rows.
func (b *Builder) EventOut(n int, rows ...Row) *Builder {
	b.lines = append(b.lines, fmt.Sprintf("# event %d out %d", n, len(rows)))
	for _, r := range rows {
		b.lines = append(b.lines, r.String())
	}
	return b
}

// String returns the log text.
func (b *Builder) String() string {
	return strings.Join(b.lines, "\n") + "\n"
}

// Reader returns the log as an io.Reader.
func (b *Builder) Reader() *strings.Reader {
	return strings.NewReader(b.String())
}
