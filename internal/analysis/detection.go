package analysis

import (
	"errors"
	"io"

	"github.com/rewired-gh/rescatter/internal/binning"
	"github.com/rewired-gh/rescatter/internal/ledger"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/reducer"
)

// DetectionSeries names the binned probability series.
const DetectionSeries = "detection_probability"

// Detection estimates, per decay time, the fraction of tracked resonance
// decays whose daughters leave the system without re-interacting.
type Detection struct {
	Schema     record.Schema
	Resonances []int
	DecayType  int
	Width      float64
}

func (d *Detection) Name() string { return models.AnalysisDetection }

// Scan runs the ledger over every interaction block of one file. The
// ledger lives for the whole file.
func (d *Detection) Scan(r io.Reader) (*FileResult, error) {
	rd := record.NewReader(r, d.Schema)
	l := ledger.New(d.Resonances)
	res := newFileResult()

	for {
		rec, err := next(rd)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch rec.Kind {
		case record.KindInteraction:
			if err := interactionPass(rd, l, rec.Header, d.DecayType, res.Acc); err != nil {
				return nil, err
			}
		case record.KindEvent:
			if rec.Boundary.End {
				res.Acc.Events++
			}
		}
	}

	res.Acc.Total.Add(l.Total())
	res.Acc.Detected.Add(l.Detected())
	finish(rd, res)
	return res, nil
}

// Reduce sums total and detected over all files before binning.
func (d *Detection) Reduce(files []*FileResult) (*Result, error) {
	acc := mergeFiles(files)
	if err := acc.Check(); err != nil {
		return nil, err
	}
	series, err := binning.BinMean(DetectionSeries, binning.RawProbabilities(acc.Total, acc.Detected), d.Width)
	if err != nil {
		return nil, err
	}

	var total, detected int
	for _, n := range acc.Total {
		total += n
	}
	for _, n := range acc.Detected {
		detected += n
	}
	est := reducer.Estimate{}
	if p, err := binning.Ratio(detected, total); err == nil {
		est = reducer.Estimate{Value: p, Samples: total, Defined: true}
	}

	return &Result{Acc: acc, Series: []models.Series{series}, Estimate: &est}, nil
}
