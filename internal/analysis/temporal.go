package analysis

import (
	"errors"
	"io"

	"github.com/rewired-gh/rescatter/internal/binning"
	"github.com/rewired-gh/rescatter/internal/kinematics"
	"github.com/rewired-gh/rescatter/internal/logger"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/reducer"
)

// Temporal follows the abundance of selected species over simulation time,
// averaged over events. The cut is one-sided: only particles with eta below
// EtaMax are counted. Particles with zero transverse momentum have no
// finite eta and are never counted, even though a sentinel eta of -inf
// would pass a one-sided cut.
type Temporal struct {
	Schema  record.Schema
	Species []Species
	EtaMax  float64
}

func (t *Temporal) Name() string { return models.AnalysisTemporal }

// Scan counts species rows by time. Both event start markers of
// OSCAR1999-style files and "out" boundaries count as one event.
func (t *Temporal) Scan(r io.Reader) (*FileResult, error) {
	rd := record.NewReader(r, t.Schema)
	res := newFileResult()

	names := make(map[int]string, len(t.Species))
	for _, s := range t.Species {
		names[s.PDG] = s.Name
	}

	for {
		rec, err := next(rd)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch rec.Kind {
		case record.KindEvent:
			if rec.Boundary.Number < 0 || rec.Boundary.End {
				res.Acc.Events++
			}
		case record.KindParticle:
			p := rec.Particle
			name, ok := names[p.PDG]
			if !ok {
				continue
			}
			eta, ok := kinematics.Eta(p)
			if !ok || eta >= t.EtaMax {
				continue
			}
			reducer.Named(res.Acc.Species, name)[p.Time]++
		}
	}

	finish(rd, res)
	return res, nil
}

// Reduce normalises the summed counts by the total number of events.
func (t *Temporal) Reduce(files []*FileResult) (*Result, error) {
	acc := mergeFiles(files)
	out := &Result{Acc: acc, Estimate: &reducer.Estimate{}}
	if acc.Events == 0 {
		logger.Warn("No events found, temporal evolution is undefined")
		return out, nil
	}
	for _, s := range t.Species {
		series, err := binning.Normalize(s.Name, acc.Species[s.Name], acc.Events)
		if err != nil {
			return nil, err
		}
		out.Series = append(out.Series, series)
	}
	out.Estimate = &reducer.Estimate{Value: float64(acc.Events), Samples: acc.Events, Defined: true}
	return out, nil
}
