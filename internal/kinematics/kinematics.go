// Package kinematics computes acceptance quantities of particle rows.
package kinematics

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"

	"github.com/rewired-gh/rescatter/internal/models"
)

// FourMomentum returns the particle's four-momentum.
func FourMomentum(p models.ParticleRecord) fmom.PxPyPzE {
	return fmom.NewPxPyPzE(p.Px, p.Py, p.Pz, p.Energy)
}

// Pt returns the transverse momentum.
func Pt(p models.ParticleRecord) float64 {
	p4 := FourMomentum(p)
	return p4.Pt()
}

// Eta returns the pseudorapidity. ok is false for a particle moving along
// the beam axis, where the pseudorapidity is not finite.
func Eta(p models.ParticleRecord) (eta float64, ok bool) {
	p4 := FourMomentum(p)
	if p4.Pt() == 0 {
		return 0, false
	}
	eta = p4.Eta()
	if math.IsNaN(eta) || math.IsInf(eta, 0) {
		return 0, false
	}
	return eta, true
}

// Cuts is a pseudorapidity and transverse-momentum acceptance window.
// The eta window is open, the pT window is closed. A zero PtMax means no
// upper pT bound.
type Cuts struct {
	Enabled bool    `mapstructure:"enabled"`
	EtaMin  float64 `mapstructure:"eta_min"`
	EtaMax  float64 `mapstructure:"eta_max"`
	PtMin   float64 `mapstructure:"pt_min"`
	PtMax   float64 `mapstructure:"pt_max"`
}

// Validate checks that the window is not empty
func (c *Cuts) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.EtaMin >= c.EtaMax {
		return fmt.Errorf("eta_min must be below eta_max")
	}
	if c.PtMin < 0 {
		return fmt.Errorf("pt_min must not be negative")
	}
	if c.PtMax != 0 && c.PtMax < c.PtMin {
		return fmt.Errorf("pt_max must be at least pt_min")
	}
	return nil
}

// Accept reports whether p falls inside the window.
func (c Cuts) Accept(p models.ParticleRecord) bool {
	if !c.Enabled {
		return true
	}
	eta, ok := Eta(p)
	if !ok || eta <= c.EtaMin || eta >= c.EtaMax {
		return false
	}
	pt := Pt(p)
	if pt < c.PtMin {
		return false
	}
	if c.PtMax > 0 && pt > c.PtMax {
		return false
	}
	return true
}
