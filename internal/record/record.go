// Package record classifies the lines of a simulation log and reads
// interaction blocks with one line of pushback.
//
// A log is a flat sequence of lines: directives ("# interaction ...",
// "# event N in", "# event N out K"), particle rows and anything else
// (comments, blank lines). Malformed directives and rows are reported as
// errors wrapping models.ErrMalformedHeader or models.ErrMalformedRow; the
// caller skips them and keeps scanning.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rewired-gh/rescatter/internal/models"
)

const (
	interactionPrefix = "# interaction"
	eventPrefix       = "# event"
)

// Kind is the classification of a single log line.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindInteraction
	KindEvent
	KindParticle
)

func (k Kind) String() string {
	switch k {
	case KindInteraction:
		return "interaction"
	case KindEvent:
		return "event"
	case KindParticle:
		return "particle"
	default:
		return "unrecognized"
	}
}

// IsDirective reports whether the kind starts a new block.
func (k Kind) IsDirective() bool {
	return k == KindInteraction || k == KindEvent
}

// Record is one classified line. Only the field matching Kind is set.
type Record struct {
	Kind     Kind
	Header   models.InteractionHeader
	Boundary models.EventBoundary
	Particle models.ParticleRecord
	Line     string
}

// Classify turns a raw line into a Record. A returned error always comes
// with the Kind the line was recognised as, so the caller can tell a bad
// directive (which ends a block) from a bad row (which does not).
func Classify(line string, schema Schema) (Record, error) {
	rec := Record{Line: line}
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		return rec, nil
	case strings.HasPrefix(trimmed, interactionPrefix):
		rec.Kind = KindInteraction
		h, err := parseInteraction(strings.Fields(trimmed[len(interactionPrefix):]))
		if err != nil {
			return rec, err
		}
		rec.Header = h
		return rec, nil
	case strings.HasPrefix(trimmed, eventPrefix):
		b, ok, err := parseEvent(strings.Fields(trimmed))
		if !ok {
			return rec, nil
		}
		rec.Kind = KindEvent
		if err != nil {
			return rec, err
		}
		rec.Boundary = b
		return rec, nil
	case strings.HasPrefix(trimmed, "#"):
		return rec, nil
	}

	tokens := strings.Fields(trimmed)
	if schema.EventHeaderColumns > 0 && len(tokens) == schema.EventHeaderColumns {
		rec.Kind = KindEvent
		rec.Boundary = models.EventBoundary{Number: -1}
		return rec, nil
	}

	rec.Kind = KindParticle
	p, err := schema.ParseParticle(tokens)
	if err != nil {
		return rec, err
	}
	rec.Particle = p
	return rec, nil
}

// parseInteraction scans "key value" pairs for in, out and type. Keys may
// come in any order between other tokens; a later occurrence wins.
func parseInteraction(tokens []string) (models.InteractionHeader, error) {
	h := models.InteractionHeader{InCount: -1, OutCount: -1, Type: -1}
	for i := 0; i+1 < len(tokens); i++ {
		var dst *int
		switch tokens[i] {
		case "in":
			dst = &h.InCount
		case "out":
			dst = &h.OutCount
		case "type":
			dst = &h.Type
		default:
			continue
		}
		v, err := strconv.Atoi(tokens[i+1])
		if err != nil {
			return h, fmt.Errorf("%w: %s %q is not an integer", models.ErrMalformedHeader, tokens[i], tokens[i+1])
		}
		*dst = v
	}
	if h.InCount < 0 || h.OutCount < 0 || h.Type < 0 {
		return h, fmt.Errorf("%w: missing in/out/type", models.ErrMalformedHeader)
	}
	return h, nil
}

// parseEvent handles "# event N in" and "# event N out K". Other event
// lines (for example "# event N end ...") are not boundaries and report
// ok == false.
func parseEvent(tokens []string) (b models.EventBoundary, ok bool, err error) {
	if len(tokens) < 4 || tokens[1] != "event" {
		return b, false, nil
	}
	switch tokens[3] {
	case "in":
	case "out":
		b.End = true
	default:
		return b, false, nil
	}

	n, convErr := strconv.Atoi(tokens[2])
	if convErr != nil {
		return b, true, fmt.Errorf("%w: event number %q", models.ErrMalformedHeader, tokens[2])
	}
	b.Number = n

	if b.End {
		if len(tokens) < 5 {
			return b, true, fmt.Errorf("%w: event %d out without particle count", models.ErrMalformedHeader, n)
		}
		k, convErr := strconv.Atoi(tokens[4])
		if convErr != nil || k < 0 {
			return b, true, fmt.Errorf("%w: event %d particle count %q", models.ErrMalformedHeader, n, tokens[4])
		}
		b.Particles = k
	}
	return b, true, nil
}
