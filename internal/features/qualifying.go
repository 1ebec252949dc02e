package features

import (
	"math"

	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// QualifyingGap returns each driver's gap to pole in milliseconds for
// raceID. A driver's best time is the minimum of q1..q3; pole is the field
// minimum. No rows or no parsable times yield an empty map.
func QualifyingGap(rows []model.Qualifying, raceID int) Values {
	race := lo.Filter(rows, func(q model.Qualifying, _ int) bool { return q.RaceID == raceID })
	if len(race) == 0 {
		return Values{}
	}

	best := make(Values, len(race))
	pole := math.NaN()
	for _, q := range race {
		b := math.NaN()
		for _, session := range q.Sessions() {
			ms := ParseTimeMS(session)
			if math.IsNaN(ms) {
				continue
			}
			if math.IsNaN(b) || ms < b {
				b = ms
			}
		}
		if math.IsNaN(b) {
			continue
		}
		best[q.DriverID] = b
		if math.IsNaN(pole) || b < pole {
			pole = b
		}
	}
	if math.IsNaN(pole) {
		return Values{}
	}

	gaps := make(Values, len(best))
	for driverID, b := range best {
		gaps[driverID] = b - pole
	}
	return gaps
}
