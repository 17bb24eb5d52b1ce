// Package ledger tracks decays of resonances and the daughters they produced
// while a simulation log is consumed in file order.
//
// Decays are registered optimistically: a registration counts the decay as
// both produced (total) and detected. When a daughter later shows up among
// the participants of another interaction, the decay is cancelled: detected
// drops by one and both daughters leave the index, even though only one of
// them was seen re-interacting. A decay is cancelled at most once.
//
// Records live in an arena addressed by index; the daughter index stores
// arena indices, never pointers, so cancelling a record cannot leave stale
// state.
package ledger

import "github.com/rewired-gh/rescatter/internal/models"

// handle is the index of a DecayRecord in the ledger arena.
type handle int

// Ledger owns the decay records of one file.
type Ledger struct {
	tracked  map[int]struct{}
	records  []models.DecayRecord
	index    map[int]handle
	total    map[float64]int
	detected map[float64]int
}

// New creates a ledger that registers decays of the given mother species.
func New(resonances []int) *Ledger {
	tracked := make(map[int]struct{}, len(resonances))
	for _, code := range resonances {
		tracked[code] = struct{}{}
	}
	return &Ledger{
		tracked:  tracked,
		index:    make(map[int]handle),
		total:    make(map[float64]int),
		detected: make(map[float64]int),
	}
}

// Tracks reports whether decays of species are registered.
func (l *Ledger) Tracks(species int) bool {
	_, ok := l.tracked[species]
	return ok
}

// Register records a decay of a tracked resonance at time t into daughters
// d1 and d2. It increments total[t] and detected[t]. Decays of untracked
// species are ignored and Register returns false.
func (l *Ledger) Register(species int, t float64, d1, d2 int) bool {
	if !l.Tracks(species) {
		return false
	}

	h := handle(len(l.records))
	l.records = append(l.records, models.DecayRecord{
		Time:      t,
		Species:   species,
		Daughter1: d1,
		Daughter2: d2,
		Counted:   true,
	})
	l.index[d1] = h
	l.index[d2] = h
	l.total[t]++
	l.detected[t]++
	return true
}

// ObserveIncoming is called for every particle of a new interaction before
// that interaction's own decay is registered. If id is the daughter of a
// counted decay, the decay is cancelled and ObserveIncoming returns true.
func (l *Ledger) ObserveIncoming(id int) bool {
	h, ok := l.index[id]
	if !ok {
		return false
	}
	rec := &l.records[h]
	if !rec.Counted {
		return false
	}

	rec.Counted = false
	l.detected[rec.Time]--
	l.drop(rec.Daughter1, h)
	l.drop(rec.Daughter2, h)
	return true
}

// drop removes id from the index only while it still points at h; a later
// decay may have reused the id.
func (l *Ledger) drop(id int, h handle) {
	if cur, ok := l.index[id]; ok && cur == h {
		delete(l.index, id)
	}
}

// ActivePairs returns the daughter pairs of counted decays registered since
// the last ClearActive whose daughters are both still indexed, in
// registration order.
func (l *Ledger) ActivePairs() []models.DaughterPair {
	var pairs []models.DaughterPair
	for i := range l.records {
		rec := &l.records[i]
		if !rec.Counted {
			continue
		}
		h := handle(i)
		h1, ok1 := l.index[rec.Daughter1]
		h2, ok2 := l.index[rec.Daughter2]
		if !ok1 || !ok2 || h1 != h || h2 != h {
			continue
		}
		pairs = append(pairs, models.DaughterPair{First: rec.Daughter1, Second: rec.Daughter2})
	}
	return pairs
}

// ClearActive forgets every registered decay. The accumulators are
// untouched; later ObserveIncoming calls no longer match the cleared
// daughters. With the index empty no handle refers to an old record, so
// the arena is reused and ActivePairs only walks decays of the current
// event.
func (l *Ledger) ClearActive() {
	clear(l.index)
	l.records = l.records[:0]
}

// Total returns a copy of the registered decay counts keyed by decay time.
func (l *Ledger) Total() map[float64]int {
	return copyCounts(l.total)
}

// Detected returns a copy of the surviving decay counts keyed by decay time.
func (l *Ledger) Detected() map[float64]int {
	return copyCounts(l.detected)
}

func copyCounts(src map[float64]int) map[float64]int {
	dst := make(map[float64]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
