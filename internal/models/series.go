package models

import (
	"errors"
	"math"
	"sort"
)

// Point is one (x, y) entry of an ordered series. For binned series X is
// the bin center.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Series is a named, x-ordered list of points.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Points)
}

// Sort orders the points by ascending X.
func (s *Series) Sort() {
	sort.Slice(s.Points, func(i, j int) bool {
		return s.Points[i].X < s.Points[j].X
	})
}

// Validate checks that the series is named, ordered and finite
func (s *Series) Validate() error {
	if s.Name == "" {
		return errors.New("series name must not be empty")
	}
	for i, p := range s.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return errors.New("series points must be finite")
		}
		if i > 0 && s.Points[i-1].X > p.X {
			return errors.New("series points must be ordered by x")
		}
	}
	return nil
}
