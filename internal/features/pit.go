package features

import (
	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// PitCrewMean returns each driver's mean stationary time in seconds for
// raceID, using milliseconds when present and the duration text otherwise.
func PitCrewMean(stops []model.PitStop, raceID int) Values {
	race := lo.Filter(stops, func(p model.PitStop, _ int) bool { return p.RaceID == raceID })
	out := Values{}
	for driverID, driverStops := range lo.GroupBy(race, func(p model.PitStop) int { return p.DriverID }) {
		secs := lo.FilterMap(driverStops, func(p model.PitStop, _ int) (float64, bool) {
			s := pitSeconds(p)
			return s, finite(s)
		})
		if len(secs) > 0 {
			out[driverID] = lo.Mean(secs)
		}
	}
	return out
}

func pitSeconds(p model.PitStop) float64 {
	if finite(p.Milliseconds) {
		return p.Milliseconds / 1000
	}
	return ParseTimeMS(p.Duration) / 1000
}
