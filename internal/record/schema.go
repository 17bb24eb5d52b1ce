package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rewired-gh/rescatter/internal/models"
)

// Absent marks a logical field that the log variant does not carry.
const Absent = -1

// Schema maps logical particle fields to whitespace-separated column
// indices. Producers of these logs disagree on the layout, so a schema is
// always injected rather than assumed.
type Schema struct {
	Name              string
	Time              int
	X                 int
	Y                 int
	Z                 int
	Mass              int
	Energy            int
	Px                int
	Py                int
	Pz                int
	PDG               int
	ID                int
	Charge            int
	NColl             int
	FormationTime     int
	LastCollisionTime int

	// ExactColumns, when positive, rejects rows with any other token count.
	ExactColumns int
	// EventHeaderColumns, when positive, treats a data line with exactly this
	// many tokens as an event start marker (OSCAR1999-style files).
	EventHeaderColumns int
}

// OSCAR2013 is the full particle-list layout with collision history.
func OSCAR2013() Schema {
	return Schema{
		Name:              "oscar2013",
		Time:              0,
		X:                 1,
		Y:                 2,
		Z:                 3,
		Mass:              4,
		Energy:            5,
		Px:                6,
		Py:                7,
		Pz:                8,
		PDG:               9,
		ID:                10,
		Charge:            11,
		NColl:             12,
		FormationTime:     13,
		LastCollisionTime: Absent,
	}
}

// OSCAR2013Extended is the 22-column layout that also carries the time of
// the last collision.
func OSCAR2013Extended() Schema {
	s := OSCAR2013()
	s.Name = "oscar2013_extended"
	s.LastCollisionTime = 17
	s.ExactColumns = 22
	return s
}

// Reduced only carries time, species and id.
func Reduced() Schema {
	return Schema{
		Name:              "reduced",
		Time:              0,
		X:                 Absent,
		Y:                 Absent,
		Z:                 Absent,
		Mass:              Absent,
		Energy:            Absent,
		Px:                Absent,
		Py:                Absent,
		Pz:                Absent,
		PDG:               9,
		ID:                10,
		Charge:            Absent,
		NColl:             Absent,
		FormationTime:     Absent,
		LastCollisionTime: Absent,
	}
}

// OSCAR1999 is the legacy 12-column layout: index, pdg, 0, px, py, pz, p0,
// mass, x, y, z, t. Events start with a 4-token line.
func OSCAR1999() Schema {
	return Schema{
		Name:               "oscar1999",
		Time:               11,
		X:                  8,
		Y:                  9,
		Z:                  10,
		Mass:               7,
		Energy:             6,
		Px:                 3,
		Py:                 4,
		Pz:                 5,
		PDG:                1,
		ID:                 0,
		Charge:             Absent,
		NColl:              Absent,
		FormationTime:      Absent,
		LastCollisionTime:  Absent,
		ExactColumns:       12,
		EventHeaderColumns: 4,
	}
}

// Builtin returns the named built-in schema.
func Builtin(name string) (Schema, bool) {
	switch name {
	case "oscar2013":
		return OSCAR2013(), true
	case "oscar2013_extended":
		return OSCAR2013Extended(), true
	case "reduced":
		return Reduced(), true
	case "oscar1999":
		return OSCAR1999(), true
	}
	return Schema{}, false
}

func (s Schema) columns() []int {
	return []int{
		s.Time, s.X, s.Y, s.Z, s.Mass, s.Energy, s.Px, s.Py, s.Pz,
		s.PDG, s.ID, s.Charge, s.NColl, s.FormationTime, s.LastCollisionTime,
	}
}

// MaxIndex returns the largest column index the schema reads.
func (s Schema) MaxIndex() int {
	maxCol := Absent
	for _, c := range s.columns() {
		if c > maxCol {
			maxCol = c
		}
	}
	return maxCol
}

// Has reports whether a column index is mapped.
func Has(col int) bool {
	return col >= 0
}

// Validate checks that the schema can identify particles
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	if s.Time < 0 || s.PDG < 0 || s.ID < 0 {
		return fmt.Errorf("schema %s: time, pdg and id columns are required", s.Name)
	}
	for _, c := range s.columns() {
		if c < Absent {
			return fmt.Errorf("schema %s: column index %d is invalid", s.Name, c)
		}
	}
	if s.ExactColumns > 0 && s.ExactColumns <= s.MaxIndex() {
		return fmt.Errorf("schema %s: exact_columns %d does not cover column %d", s.Name, s.ExactColumns, s.MaxIndex())
	}
	if s.EventHeaderColumns > 0 && s.EventHeaderColumns > s.MaxIndex() {
		return fmt.Errorf("schema %s: event_header_columns must be shorter than a particle row", s.Name)
	}
	return nil
}

// ParseParticle extracts a particle from already split tokens.
func (s Schema) ParseParticle(tokens []string) (models.ParticleRecord, error) {
	var p models.ParticleRecord
	if len(tokens) <= s.MaxIndex() {
		return p, fmt.Errorf("%w: %d columns, need %d", models.ErrMalformedRow, len(tokens), s.MaxIndex()+1)
	}
	if s.ExactColumns > 0 && len(tokens) != s.ExactColumns {
		return p, fmt.Errorf("%w: %d columns, need exactly %d", models.ErrMalformedRow, len(tokens), s.ExactColumns)
	}

	var err error
	floatAt := func(col int, dst *float64) {
		if err != nil || col < 0 {
			return
		}
		*dst, err = parseFloat(tokens[col])
	}
	intAt := func(col int, dst *int) {
		if err != nil || col < 0 {
			return
		}
		*dst, err = strconv.Atoi(tokens[col])
	}

	floatAt(s.Time, &p.Time)
	intAt(s.ID, &p.ID)
	intAt(s.PDG, &p.PDG)
	intAt(s.NColl, &p.NColl)
	floatAt(s.FormationTime, &p.FormationTime)
	floatAt(s.LastCollisionTime, &p.LastCollisionTime)
	floatAt(s.Energy, &p.Energy)
	floatAt(s.Px, &p.Px)
	floatAt(s.Py, &p.Py)
	floatAt(s.Pz, &p.Pz)
	intAt(s.Charge, &p.Charge)
	if err != nil {
		return models.ParticleRecord{}, fmt.Errorf("%w: %v", models.ErrMalformedRow, err)
	}
	return p, nil
}

var fortranExponent = strings.NewReplacer("D", "E", "d", "e")

// parseFloat accepts Fortran-style D exponents. Only finite values are
// valid; NaN and infinities would poison time-keyed maps and bin indices.
func parseFloat(tok string) (float64, error) {
	if strings.ContainsAny(tok, "Dd") {
		tok = fortranExponent.Replace(tok)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", tok)
	}
	return v, nil
}
