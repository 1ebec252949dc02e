package features

import (
	"math"
	"strconv"
)

// RainAtHour picks the hourly precipitation probability (percent) whose
// clock hour is closest to hour and returns it as a fraction rounded to
// 3 decimals and clamped to [0,1]. times are ISO local timestamps ("2024-09-01T15:00"); probs
// holds NaN where the API returned null.
func RainAtHour(times []string, probs []float64, hour int) float64 {
	if len(times) == 0 || len(probs) < len(times) {
		return math.NaN()
	}
	bestIdx, bestDist := -1, 0
	for i, ts := range times {
		h, ok := clockHour(ts)
		if !ok {
			return math.NaN()
		}
		dist := h - hour
		if dist < 0 {
			dist = -dist
		}
		if bestIdx < 0 || dist < bestDist {
			bestIdx, bestDist = i, dist
		}
	}
	p := probs[bestIdx]
	if !finite(p) {
		return math.NaN()
	}
	return math.Max(0, math.Min(Round(p/100, 3), 1))
}

// clockHour extracts HH from a timestamp ending in "HH:MM".
func clockHour(ts string) (int, bool) {
	if len(ts) < 5 {
		return 0, false
	}
	h, err := strconv.Atoi(ts[len(ts)-5 : len(ts)-3])
	if err != nil {
		return 0, false
	}
	return h, true
}
