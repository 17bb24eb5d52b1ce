package analysis

import (
	"errors"
	"fmt"
	"io"

	"github.com/rewired-gh/rescatter/internal/binning"
	"github.com/rewired-gh/rescatter/internal/kinematics"
	"github.com/rewired-gh/rescatter/internal/ledger"
	"github.com/rewired-gh/rescatter/internal/logger"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/reducer"
)

// Channel describes one resonance decay channel to compare against a
// final-state species.
type Channel struct {
	Name string `mapstructure:"name"`
	// Resonances are the tracked mother codes.
	Resonances []int `mapstructure:"resonances"`
	// DaughterSpecies are the final-state codes matched against tracked
	// daughter ids.
	DaughterSpecies []int `mapstructure:"daughter_species"`
	// TargetSpecies are the final-state codes counted in the denominator.
	TargetSpecies []int            `mapstructure:"target_species"`
	PairRule      binning.PairRule `mapstructure:"pair_rule"`
	Cuts          kinematics.Cuts  `mapstructure:"cuts"`
}

// Validate checks the channel definition.
func (c *Channel) Validate() error {
	if c.Name == "" {
		return errors.New("name must not be empty")
	}
	if len(c.Resonances) == 0 {
		return fmt.Errorf("channel %s: resonances must not be empty", c.Name)
	}
	if len(c.DaughterSpecies) == 0 {
		return fmt.Errorf("channel %s: daughter_species must not be empty", c.Name)
	}
	if len(c.TargetSpecies) == 0 {
		return fmt.Errorf("channel %s: target_species must not be empty", c.Name)
	}
	if !c.PairRule.Valid() {
		return fmt.Errorf("channel %s: pair_rule must be %q or %q", c.Name, binning.PairUnseen, binning.PairBothSeen)
	}
	if err := c.Cuts.Validate(); err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}
	return nil
}

// ChannelRatio computes, per event, the number of surviving tracked pairs
// over the number of accepted target particles in the final state. Each
// file reports the unweighted mean over its events.
type ChannelRatio struct {
	Schema    record.Schema
	DecayType int
	Channel   Channel
}

func (c *ChannelRatio) Name() string { return models.AnalysisRatio }

// Scan tracks decays through the interaction blocks of each event and
// closes the event at its "out" boundary, whose rows are the final state.
func (c *ChannelRatio) Scan(r io.Reader) (*FileResult, error) {
	rd := record.NewReader(r, c.Schema)
	l := ledger.New(c.Channel.Resonances)
	res := newFileResult()
	daughters := codeSet(c.Channel.DaughterSpecies)
	targets := codeSet(c.Channel.TargetSpecies)

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
			if err := interactionPass(rd, l, rec.Header, c.DecayType, res.Acc); err != nil {
				return nil, err
			}
		case record.KindEvent:
			if !rec.Boundary.End {
				continue
			}
			final, err := rd.ReadParticles(rec.Boundary.Particles, nil)
			if err != nil {
				return nil, err
			}
			res.Acc.Events++

			seen := make(map[int]struct{})
			matched := 0
			for _, p := range final {
				if !c.Channel.Cuts.Accept(p) {
					continue
				}
				if _, ok := daughters[p.PDG]; ok {
					seen[p.ID] = struct{}{}
				}
				if _, ok := targets[p.PDG]; ok {
					matched++
				}
			}

			surviving := binning.SurvivingPairs(l.ActivePairs(), seen, c.Channel.PairRule)
			l.ClearActive()

			ratio, err := binning.Ratio(surviving, matched)
			if err != nil {
				res.Undefined++
				logger.Debug("Event %d has no accepted target particles, skipping its ratio", rec.Boundary.Number)
				continue
			}
			res.Values = append(res.Values, ratio)
		}
	}

	res.Acc.Total.Add(l.Total())
	res.Acc.Detected.Add(l.Detected())
	finish(rd, res)
	return res, nil
}

// Reduce averages the per-file means. Files are weighted equally.
func (c *ChannelRatio) Reduce(files []*FileResult) (*Result, error) {
	scalars := perFileScalars(files)
	est := reducer.Summarize(scalars)
	return &Result{
		Acc:      mergeFiles(files),
		Scalars:  scalars,
		Estimate: &est,
	}, nil
}
