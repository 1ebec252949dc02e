package db

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// DriverMetricsTable is the Postgres target of `build --load`.
const DriverMetricsTable = "f1.driver_metrics"

// DriverMetricsMigration creates the target table.
const DriverMetricsMigration = `
CREATE SCHEMA IF NOT EXISTS f1;

CREATE TABLE IF NOT EXISTS f1.driver_metrics (
	race_id            INTEGER NOT NULL,
	driver_name        TEXT NOT NULL,
	team_name          TEXT NOT NULL DEFAULT '',
	grid_position      DOUBLE PRECISION,
	qualy_gap_ms       DOUBLE PRECISION,
	fp_longrun_pace_s  DOUBLE PRECISION,
	straightline_index DOUBLE PRECISION,
	cornering_index    DOUBLE PRECISION,
	pit_crew_mean_s    DOUBLE PRECISION,
	dnf_rate           DOUBLE PRECISION,
	sc_prob            DOUBLE PRECISION,
	rain_prob          DOUBLE PRECISION,
	speed_trap_kph     DOUBLE PRECISION,
	run_id             TEXT,
	loaded_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (race_id, driver_name)
);
`

// DriverMetricsColumns are the loaded columns in row order.
var DriverMetricsColumns = lo.Flatten([][]string{{"race_id"}, model.DriverMetricsColumns, {"run_id"}})

var driverMetricsKeys = []string{"race_id", "driver_name"}

// MigrateDriverMetrics creates the target schema and table.
func MigrateDriverMetrics(ctx context.Context, pool Pool) error {
	_, err := pool.Exec(ctx, DriverMetricsMigration)
	return eris.Wrap(err, "db: migrate driver metrics")
}

// UpsertDriverMetrics loads one race's rows keyed by (race_id, driver_name).
// NaN values are stored as NULL.
func UpsertDriverMetrics(ctx context.Context, pool Pool, raceID int, runID string, rows []model.DriverMetrics) (int64, error) {
	values := lo.Map(rows, func(m model.DriverMetrics, _ int) []any {
		return []any{
			raceID,
			m.DriverName,
			m.TeamName,
			nullable(m.GridPosition),
			nullable(m.QualyGapMS),
			nullable(m.FPLongRunPaceS),
			nullable(m.StraightlineIndex),
			nullable(m.CorneringIndex),
			nullable(m.PitCrewMeanS),
			nullable(m.DNFRate),
			nullable(m.SCProb),
			nullable(m.RainProb),
			nullable(m.SpeedTrapKPH),
			runID,
		}
	})
	n, err := BulkUpsert(ctx, pool, UpsertConfig{
		Table:        DriverMetricsTable,
		Columns:      DriverMetricsColumns,
		ConflictKeys: driverMetricsKeys,
	}, values)
	return n, eris.Wrapf(err, "db: load driver metrics for race %d", raceID)
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
