package orchestrator

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

// Plausible field sizes; counts outside only warn.
const (
	DefaultMinDrivers = 10
	DefaultMaxDrivers = 25
)

var (
	requiredDriverColumns = []string{"driver_id", "driver_name", "team_name"}
	requiredRaceColumns   = []string{"race_id", "circuit_id", "date_local"}
)

// CrossValidate checks the session and race features outputs against each
// other and returns the driver row count.
func CrossValidate(driverFile, raceFile string, minDrivers, maxDrivers int) (int, error) {
	log := zap.L().With(zap.String("component", "orchestrator"))

	driverHeader, driverRows, err := readCSVFile(driverFile)
	if err != nil {
		return 0, err
	}
	raceHeader, raceRows, err := readCSVFile(raceFile)
	if err != nil {
		return 0, err
	}

	if len(driverRows) == 0 {
		return 0, eris.Errorf("orchestrator: driver file is empty: %s", driverFile)
	}
	if len(raceRows) == 0 {
		return 0, eris.Errorf("orchestrator: race features file is empty: %s", raceFile)
	}

	n := len(driverRows)
	if n < minDrivers || n > maxDrivers {
		log.Warn("unusual driver count", zap.Int("drivers", n), zap.Int("min", minDrivers), zap.Int("max", maxDrivers))
	}

	if missing := lo.Without(requiredDriverColumns, driverHeader...); len(missing) > 0 {
		return 0, eris.Errorf("orchestrator: missing required driver columns: %v", missing)
	}
	if missing := lo.Without(requiredRaceColumns, raceHeader...); len(missing) > 0 {
		return 0, eris.Errorf("orchestrator: missing required race columns: %v", missing)
	}

	log.Info("cross-validation passed", zap.Int("drivers", n))
	return n, nil
}

func readCSVFile(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "orchestrator: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(context.Background(), f)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "orchestrator: read %s", path)
	}
	return header, rows, nil
}
