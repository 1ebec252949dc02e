package pipeline

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/model"
)

// BuildDriverBase returns one row per driver classified in raceID, in
// results order, with names, team and grid position filled. A grid of zero
// or less (pit lane start) is unavailable.
func BuildDriverBase(core *dataset.Core, raceID int) ([]model.DriverMetrics, error) {
	seen := map[int]bool{}
	var rows []model.DriverMetrics
	for _, r := range core.Results {
		if r.RaceID != raceID {
			continue
		}
		if seen[r.DriverID] {
			zap.L().Warn("duplicate result for driver, keeping the first",
				zap.Int("race_id", raceID),
				zap.Int("driver_id", r.DriverID),
			)
			continue
		}
		seen[r.DriverID] = true

		row := model.NewDriverMetrics(
			r.DriverID,
			r.ConstructorID,
			core.Drivers[r.DriverID].FullName(),
			core.Constructors[r.ConstructorID].Name,
		)
		if r.Grid > 0 {
			row.GridPosition = r.Grid
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("No race results available for raceId=%d", raceID)
	}
	return rows, nil
}
