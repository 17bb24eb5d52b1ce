// Package binning turns time-keyed counts into fixed-width binned series.
//
// Two bin conventions exist and are kept apart on purpose:
//
//	ProbabilityBin: t >= 0 -> floor(t/w), t < 0 -> floor((t-w+1)/w)
//	RateBin:        floor(t/w)
//
// Probability bins hold the arithmetic mean of the raw per-time
// probabilities that fall in them (not weighted by decay counts). Rate bins
// hold the sum of counts divided by the width.
package binning

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/rescatter/internal/models"
)

// ProbabilityBin returns the bin index of t in probability mode.
func ProbabilityBin(t, width float64) int {
	if t >= 0 {
		return int(math.Floor(t / width))
	}
	return int(math.Floor((t - width + 1) / width))
}

// RateBin returns the bin index of t in rate mode.
func RateBin(t, width float64) int {
	return int(math.Floor(t / width))
}

// Center returns the center of bin b.
func Center(b int, width float64) float64 {
	return (float64(b) + 0.5) * width
}

func checkWidth(width float64) error {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return fmt.Errorf("invalid bin width %v: must be positive", width)
	}
	return nil
}

// RawProbabilities returns detected[t]/total[t] for every t in total, or 0
// where total[t] is zero.
func RawProbabilities(total, detected map[float64]int) map[float64]float64 {
	raw := make(map[float64]float64, len(total))
	for t, n := range total {
		if n == 0 {
			raw[t] = 0
			continue
		}
		raw[t] = float64(detected[t]) / float64(n)
	}
	return raw
}

// BinMean groups raw probabilities into probability bins and returns the
// unweighted mean per bin, keyed by bin center, in ascending order.
func BinMean(name string, raw map[float64]float64, width float64) (models.Series, error) {
	if err := checkWidth(width); err != nil {
		return models.Series{}, err
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, t := range sortedKeys(raw) {
		b := ProbabilityBin(t, width)
		sums[b] += raw[t]
		counts[b]++
	}

	series := models.Series{Name: name, Points: make([]models.Point, 0, len(sums))}
	for _, b := range sortedBins(sums) {
		series.Points = append(series.Points, models.Point{
			X: Center(b, width),
			Y: sums[b] / float64(counts[b]),
		})
	}
	return series, nil
}

// BinRate sums counts into rate bins and divides each sum by width.
func BinRate(counts map[float64]int, width float64) (map[int]float64, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	bins := make(map[int]float64)
	for t, n := range counts {
		bins[RateBin(t, width)] += float64(n)
	}
	for b := range bins {
		bins[b] /= width
	}
	return bins, nil
}

// NetRate returns gain - decay per rate bin. Only bins present in the decay
// map appear in the result; a bin with gain but no decay is dropped.
func NetRate(name string, gain, decay map[float64]int, width float64) (models.Series, error) {
	gainBinned, err := BinRate(gain, width)
	if err != nil {
		return models.Series{}, err
	}
	decayBinned, err := BinRate(decay, width)
	if err != nil {
		return models.Series{}, err
	}

	series := models.Series{Name: name, Points: make([]models.Point, 0, len(decayBinned))}
	for _, b := range sortedBins(decayBinned) {
		series.Points = append(series.Points, models.Point{
			X: Center(b, width),
			Y: gainBinned[b] - decayBinned[b],
		})
	}
	return series, nil
}

// Normalize divides every count by n and returns the time-ordered series.
func Normalize(name string, counts map[float64]int, n int) (models.Series, error) {
	if n <= 0 {
		return models.Series{}, fmt.Errorf("normalize %s: %w", name, models.ErrUndefined)
	}
	series := models.Series{Name: name, Points: make([]models.Point, 0, len(counts))}
	keys := make([]float64, 0, len(counts))
	for t := range counts {
		keys = append(keys, t)
	}
	sort.Float64s(keys)
	for _, t := range keys {
		series.Points = append(series.Points, models.Point{X: t, Y: float64(counts[t]) / float64(n)})
	}
	return series, nil
}

func sortedKeys(m map[float64]float64) []float64 {
	keys := make([]float64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	return keys
}

func sortedBins(m map[int]float64) []int {
	bins := make([]int, 0, len(m))
	for b := range m {
		bins = append(bins, b)
	}
	sort.Ints(bins)
	return bins
}
