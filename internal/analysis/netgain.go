package analysis

import (
	"errors"
	"io"

	"github.com/rewired-gh/rescatter/internal/binning"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/reducer"
)

// NetGain measures, per species, how fast resonances are regenerated
// versus how fast they decay. A row at time t counts as a decay when its
// last collision happened at t and as a gain when it was formed at t.
type NetGain struct {
	Schema  record.Schema
	Species []Species
	Width   float64
}

func (n *NetGain) Name() string { return models.AnalysisNetGain }

// Scan looks at every particle row of the file, whatever block it is in.
func (n *NetGain) Scan(r io.Reader) (*FileResult, error) {
	rd := record.NewReader(r, n.Schema)
	res := newFileResult()

	names := make(map[int]string, len(n.Species))
	for _, s := range n.Species {
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
		if rec.Kind == record.KindEvent && rec.Boundary.End {
			res.Acc.Events++
		}
		if rec.Kind != record.KindParticle {
			continue
		}
		p := rec.Particle
		name, ok := names[p.PDG]
		if !ok {
			continue
		}
		if p.LastCollisionTime == p.Time {
			reducer.Named(res.Acc.Decay, name)[p.Time]++
		}
		if p.FormationTime == p.Time {
			reducer.Named(res.Acc.Gain, name)[p.Time]++
		}
	}

	finish(rd, res)
	return res, nil
}

// Reduce sums gain and decay counts over files, then bins each species.
// Species with no decays at all produce an empty series.
func (n *NetGain) Reduce(files []*FileResult) (*Result, error) {
	acc := mergeFiles(files)
	out := &Result{Acc: acc}
	for _, s := range n.Species {
		series, err := binning.NetRate(s.Name, acc.Gain[s.Name], acc.Decay[s.Name], n.Width)
		if err != nil {
			return nil, err
		}
		out.Series = append(out.Series, series)
	}
	return out, nil
}
