package features

import (
	"math"

	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// SpeedTrap returns each driver's fastest-lap speed in km/h for raceID.
func SpeedTrap(results []model.Result, raceID int) Values {
	out := Values{}
	for _, r := range results {
		if r.RaceID == raceID && finite(r.FastestLapSpeed) {
			out[r.DriverID] = r.FastestLapSpeed
		}
	}
	return out
}

// MinMaxIndex scales values onto 0..100. When every value is equal each
// driver gets 50. NaN entries stay NaN.
func MinMaxIndex(v Values) Values {
	out := make(Values, len(v))
	present := lo.Filter(lo.Values(map[int]float64(v)), func(x float64, _ int) bool { return finite(x) })
	if len(present) == 0 {
		return out
	}
	lowest, highest := lo.Min(present), lo.Max(present)
	for id, x := range v {
		switch {
		case !finite(x):
			out[id] = math.NaN()
		case isClose(highest, lowest):
			out[id] = 50
		default:
			out[id] = (x - lowest) / (highest - lowest) * 100
		}
	}
	return out
}

// isClose reports whether a and b are equal within a relative tolerance
// of 1e-9.
func isClose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// StraightlineIndex is the min-max scaled speed trap of the field.
func StraightlineIndex(results []model.Result, raceID int) Values {
	return MinMaxIndex(SpeedTrap(results, raceID))
}

// CorneringIndex scales each driver's mean lap time so the quickest driver
// scores 100 and the slowest 0.
func CorneringIndex(laps []model.LapTime, raceID int) Values {
	pace := LongRunPace(laps, raceID)
	inverse := make(Values, len(pace))
	for id, s := range pace {
		inverse[id] = -s
	}
	return MinMaxIndex(inverse)
}
