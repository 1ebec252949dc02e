package features

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// ZScores standardises values against their population mean and standard
// deviation. NaN entries stay NaN; fewer than two finite values make every
// entry NaN. A zero deviation is treated as 1.
func ZScores(values []float64) []float64 {
	out := make([]float64, len(values))
	present := lo.Filter(values, func(v float64, _ int) bool { return finite(v) })
	if len(present) < 2 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	mu := lo.Mean(present)
	variance := lo.MeanBy(present, func(v float64) float64 { return (v - mu) * (v - mu) })
	sd := math.Sqrt(variance)
	if sd == 0 {
		sd = 1
	}
	for i, v := range values {
		if finite(v) {
			out[i] = (v - mu) / sd
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Quantile returns the q-quantile of sorted using linear interpolation
// between closest ranks.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	below, above := int(math.Floor(pos)), int(math.Ceil(pos))
	if below == above {
		return sorted[below]
	}
	return sorted[below] + (sorted[above]-sorted[below])*(pos-float64(below))
}

// Median returns the median of values; NaN when empty.
func Median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	return Quantile(s, 0.5)
}

// TrimmedLongRun estimates a representative race pace from lap times in
// seconds: laps strictly between the 10th and 90th percentile are kept and
// their median is rounded to 3 decimals.
func TrimmedLongRun(laps []float64) float64 {
	s := lo.Filter(laps, func(v float64, _ int) bool { return finite(v) })
	if len(s) == 0 {
		return math.NaN()
	}
	sort.Float64s(s)
	p10, p90 := Quantile(s, 0.1), Quantile(s, 0.9)
	kept := lo.Filter(s, func(v float64, _ int) bool { return v > p10 && v < p90 })
	if len(kept) == 0 {
		return math.NaN()
	}
	return Round(Median(kept), 3)
}
