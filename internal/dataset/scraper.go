package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

// Scraper table names.
const (
	ScraperLongRun   = "longrun"
	ScraperWeather   = "weather"
	ScraperSafetyCar = "safety_car"
	ScraperSpeedTrap = "speed_trap"
)

// ScraperFiles lists, per scraper table, the candidate file names in
// priority order. Each candidate may also exist as an .xlsx workbook.
var ScraperFiles = map[string][]string{
	ScraperLongRun: {
		"fp_longrun.csv",
		"free_practice_longrun.csv",
		"fp_longrun_pace.csv",
		"long_run_pace.csv",
	},
	ScraperWeather: {
		"weather.csv",
		"weather_forecast.csv",
		"rain_forecast.csv",
		"rain_probability.csv",
	},
	ScraperSafetyCar: {
		"safety_car.csv",
		"safety_car_probabilities.csv",
		"sc_probability.csv",
	},
	ScraperSpeedTrap: {
		"speed_trap.csv",
		"speed_trap_top_speeds.csv",
	},
}

// LoadScraper loads the first matching candidate for each scraper table in
// dir. An empty dir yields no tables.
func LoadScraper(ctx context.Context, dir string) (map[string]*Table, error) {
	log := zap.L().With(zap.String("component", "dataset.scraper"))
	tables := map[string]*Table{}
	if dir == "" {
		log.Info("scraper output directory not provided, continuing without enrichments")
		return tables, nil
	}

	for name, candidates := range ScraperFiles {
		t, err := loadFirstCandidate(ctx, name, dir, candidates)
		if err != nil {
			return nil, err
		}
		if t == nil {
			log.Info("no scraper table found",
				zap.String("table", name),
				zap.String("checked", strings.Join(candidates, ", ")),
			)
			continue
		}
		log.Info("loaded scraper table", zap.String("table", name), zap.String("path", t.Path))
		tables[name] = t
	}
	return tables, nil
}

func loadFirstCandidate(ctx context.Context, name, dir string, candidates []string) (*Table, error) {
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if fileExists(path) {
			return readTable(ctx, name, path)
		}
		xlsxPath := strings.TrimSuffix(path, ".csv") + ".xlsx"
		if fileExists(xlsxPath) {
			return readWorkbook(name, xlsxPath)
		}
	}
	return nil, nil
}

func readWorkbook(name, path string) (*Table, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	if len(rows) == 0 {
		t := NewTable(name, nil, nil)
		t.Path = path
		return t, nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := NewTable(name, header, rows[1:])
	t.Path = path
	return t, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
