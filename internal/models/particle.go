// Package models defines the core domain entities for the rescatter analysis.
// These models represent the records found in a particle-transport simulation log,
// the decays tracked across those records, and the series produced from them.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology (matching the simulation output):
//   - Event: one simulated collision, delimited by "# event N in" / "# event N out K" lines.
//   - Interaction: a block of particle rows announced by a "# interaction" header.
//   - Species code: the PDG code of a particle.
package models

import (
	"errors"
	"math"
)

// DecayProcessType is the interaction type code of a two-body decay.
const DecayProcessType = 5

// ParticleRecord is one parsed data row. Fields absent from the active
// column schema keep their zero value.
type ParticleRecord struct {
	Time              float64 `json:"time"`
	ID                int     `json:"id"`
	PDG               int     `json:"pdg"`
	NColl             int     `json:"ncoll"`
	FormationTime     float64 `json:"formation_time"`
	LastCollisionTime float64 `json:"last_collision_time"`
	Energy            float64 `json:"energy"`
	Px                float64 `json:"px"`
	Py                float64 `json:"py"`
	Pz                float64 `json:"pz"`
	Charge            int     `json:"charge"`
}

// Validate checks that all particle fields are valid
func (p *ParticleRecord) Validate() error {
	if math.IsNaN(p.Time) || math.IsInf(p.Time, 0) {
		return errors.New("particle time must be finite")
	}
	if math.IsNaN(p.Px) || math.IsNaN(p.Py) || math.IsNaN(p.Pz) {
		return errors.New("particle momentum must not be NaN")
	}
	return nil
}

// InteractionHeader describes the interaction block that follows it.
type InteractionHeader struct {
	InCount  int `json:"in"`
	OutCount int `json:"out"`
	Type     int `json:"type"`
}

// Rows returns the number of particle rows announced by the header.
func (h InteractionHeader) Rows() int {
	return h.InCount + h.OutCount
}

// IsDecay reports whether the header announces a decay block.
func (h InteractionHeader) IsDecay() bool {
	return h.Type == DecayProcessType
}

// Validate checks that all header fields are valid
func (h *InteractionHeader) Validate() error {
	if h.InCount < 0 {
		return errors.New("in count must not be negative")
	}
	if h.OutCount < 0 {
		return errors.New("out count must not be negative")
	}
	if h.Type < 0 {
		return errors.New("interaction type must not be negative")
	}
	return nil
}

// EventBoundary marks the start ("in") or end ("out") of a simulated event.
// For an end boundary, Particles is the number of final-state rows that follow.
type EventBoundary struct {
	Number    int  `json:"number"`
	End       bool `json:"end"`
	Particles int  `json:"particles"`
}
