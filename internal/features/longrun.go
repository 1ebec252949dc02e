package features

import (
	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// LongRunPace returns each driver's mean lap time in seconds for raceID.
func LongRunPace(laps []model.LapTime, raceID int) Values {
	out := Values{}
	for driverID, driverLaps := range lapsByDriver(laps, raceID) {
		ms := lo.FilterMap(driverLaps, func(l model.LapTime, _ int) (float64, bool) {
			return l.Milliseconds, finite(l.Milliseconds)
		})
		if len(ms) == 0 {
			continue
		}
		out[driverID] = lo.Mean(ms) / 1000
	}
	return out
}

func lapsByDriver(laps []model.LapTime, raceID int) map[int][]model.LapTime {
	race := lo.Filter(laps, func(l model.LapTime, _ int) bool { return l.RaceID == raceID })
	return lo.GroupBy(race, func(l model.LapTime) int { return l.DriverID })
}
