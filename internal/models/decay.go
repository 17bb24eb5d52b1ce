package models

import (
	"errors"
	"math"
)

// DecayRecord is a registered two-body decay of a tracked resonance.
// Counted starts true and flips to false at most once, when one of the
// daughters is seen re-interacting.
type DecayRecord struct {
	Time      float64 `json:"time"`
	Species   int     `json:"species"`
	Daughter1 int     `json:"daughter1"`
	Daughter2 int     `json:"daughter2"`
	Counted   bool    `json:"counted"`
}

// Validate checks that all decay fields are valid
func (d *DecayRecord) Validate() error {
	if math.IsNaN(d.Time) || math.IsInf(d.Time, 0) {
		return errors.New("decay time must be finite")
	}
	if d.Species == 0 {
		return errors.New("decay species must not be zero")
	}
	return nil
}

// Has reports whether id is one of the record's daughters.
func (d *DecayRecord) Has(id int) bool {
	return d.Daughter1 == id || d.Daughter2 == id
}

// DaughterPair is the pair of daughter ids of one decay.
type DaughterPair struct {
	First  int `json:"first"`
	Second int `json:"second"`
}
