package binning

import (
	"fmt"

	"github.com/rewired-gh/rescatter/internal/models"
)

// PairRule decides which tracked daughter pairs survive an event.
type PairRule string

const (
	// PairUnseen keeps pairs neither of whose daughters is among the
	// matched final-state particles.
	PairUnseen PairRule = "unseen"
	// PairBothSeen keeps pairs both of whose daughters reached the final state.
	PairBothSeen PairRule = "both_seen"
)

// Valid reports whether r is a known rule.
func (r PairRule) Valid() bool {
	return r == PairUnseen || r == PairBothSeen
}

// SurvivingPairs counts the pairs that survive under rule given the ids of
// the matched final-state particles.
func SurvivingPairs(pairs []models.DaughterPair, seen map[int]struct{}, rule PairRule) int {
	n := 0
	for _, p := range pairs {
		_, s1 := seen[p.First]
		_, s2 := seen[p.Second]
		switch rule {
		case PairBothSeen:
			if s1 && s2 {
				n++
			}
		default:
			if !s1 && !s2 {
				n++
			}
		}
	}
	return n
}

// Ratio returns num/den, or an error wrapping models.ErrUndefined when den
// is zero.
func Ratio(num, den int) (float64, error) {
	if den == 0 {
		return 0, fmt.Errorf("ratio %d/0: %w", num, models.ErrUndefined)
	}
	return float64(num) / float64(den), nil
}
