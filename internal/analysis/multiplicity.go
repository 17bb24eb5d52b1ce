package analysis

import (
	"errors"
	"io"

	"github.com/rewired-gh/rescatter/internal/kinematics"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/reducer"
)

// Multiplicity counts charged final-state particles per event.
type Multiplicity struct {
	Schema record.Schema
	Cuts   kinematics.Cuts
}

func (m *Multiplicity) Name() string { return models.AnalysisMultiplicity }

func (m *Multiplicity) Scan(r io.Reader) (*FileResult, error) {
	rd := record.NewReader(r, m.Schema)
	res := newFileResult()

	for {
		rec, err := next(rd)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Kind != record.KindEvent || !rec.Boundary.End {
			continue
		}

		final, err := rd.ReadParticles(rec.Boundary.Particles, nil)
		if err != nil {
			return nil, err
		}
		res.Acc.Events++
		charged := 0
		for _, p := range final {
			if p.Charge != 0 && m.Cuts.Accept(p) {
				charged++
			}
		}
		res.Values = append(res.Values, float64(charged))
	}

	finish(rd, res)
	return res, nil
}

// Reduce keeps the per-file means as the per-file series, but the headline
// is the mean over every event of every file, so files with more events
// weigh more.
func (m *Multiplicity) Reduce(files []*FileResult) (*Result, error) {
	var events []float64
	for _, f := range files {
		events = append(events, f.Values...)
	}
	est := reducer.Summarize(events)
	return &Result{
		Acc:      mergeFiles(files),
		Scalars:  perFileScalars(files),
		Estimate: &est,
	}, nil
}
