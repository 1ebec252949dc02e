// Package export writes the derived tables to disk.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/model"
)

// BOM is the UTF-8 byte order mark prepended to spreadsheet-bound CSVs.
const BOM = "\ufeff"

// Recorder is a row that can render itself as CSV cells.
type Recorder interface {
	Record() []string
}

// OutputPath returns dir/outFile when outFile is set (absolute outFile is
// kept as is), else dir/<year>_<race-name>.csv with
// the race name lowercased and spaces replaced by hyphens.
func OutputPath(dir, outFile string, year int, raceName string) string {
	if outFile != "" {
		if filepath.IsAbs(outFile) {
			return outFile
		}
		return filepath.Join(dir, outFile)
	}
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raceName)), " ", "-")
	return filepath.Join(dir, fmt.Sprintf("%d_%s.csv", year, slug))
}

// WriteCSV writes header and rows to path, creating parent directories. The
// file is written to a sibling temp file first and renamed into place. bom
// prefixes the output with a UTF-8 byte order mark.
func WriteCSV(path string, header []string, rows [][]string, bom bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	buf := bufio.NewWriter(tmp)
	if bom {
		if _, err := buf.WriteString(BOM); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "export: write bom")
		}
	}

	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "export: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "export: write rows")
	}
	if err := buf.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "export: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "export: rename into %s", path)
	}
	return nil
}

// Records renders rows with Record.
func Records[T Recorder](rows []T) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out
}

// WriteDriverMetrics writes the new-schema driver table.
func WriteDriverMetrics(path string, rows []model.DriverMetrics) error {
	return WriteCSV(path, model.DriverMetricsColumns, Records(rows), false)
}

// WriteSessionDrivers writes the session extractor table.
func WriteSessionDrivers(path string, rows []model.SessionDriver) error {
	return WriteCSV(path, model.SessionDriverColumns, Records(rows), false)
}

// WriteRaceFeatures writes the single-row race features table.
func WriteRaceFeatures(path string, row model.RaceFeatures) error {
	return WriteCSV(path, model.RaceFeaturesColumns, [][]string{row.Record()}, false)
}
