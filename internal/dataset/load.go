package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/f1-etl/internal/fetcher"
	"github.com/sells-group/f1-etl/internal/model"
)

// Core table names and their files in the dump.
const (
	TableDrivers      = "drivers"
	TableConstructors = "constructors"
	TableRaces        = "races"
	TableResults      = "results"
	TableQualifying   = "qualifying"
	TableLapTimes     = "lap_times"
	TablePitStops     = "pit_stops"
	TableStatus       = "status"
	TableCircuits     = "circuits"
)

// CoreFiles maps each core table to its CSV file name.
var CoreFiles = map[string]string{
	TableDrivers:      "drivers.csv",
	TableConstructors: "constructors.csv",
	TableRaces:        "races.csv",
	TableResults:      "results.csv",
	TableQualifying:   "qualifying.csv",
	TableLapTimes:     "lap_times.csv",
	TablePitStops:     "pit_stops.csv",
	TableStatus:       "status.csv",
	TableCircuits:     "circuits.csv",
}

// Mandatory lists the tables whose absence aborts a build.
var Mandatory = []string{TableRaces, TableResults, TableDrivers, TableConstructors}

// ErrMissingTable matches a MissingTableError.
var ErrMissingTable = errors.New("missing required dataset files")

// MissingTableError names the mandatory tables that were not found.
type MissingTableError struct {
	Dir    string
	Tables []string
}

func (e *MissingTableError) Error() string {
	files := make([]string, len(e.Tables))
	for i, name := range e.Tables {
		files[i] = CoreFiles[name]
	}
	return "Missing required dataset files: " + strings.Join(files, ", ")
}

// Is lets errors.Is match ErrMissingTable.
func (e *MissingTableError) Is(target error) bool { return target == ErrMissingTable }

// Core holds the typed historical tables. Optional tables that were not
// found are nil and reported false by Has.
type Core struct {
	Races        []model.Race
	Results      []model.Result
	Drivers      map[int]model.Driver
	Constructors map[int]model.Constructor
	Qualifying   []model.Qualifying
	LapTimes     []model.LapTime
	PitStops     []model.PitStop
	Status       map[int]model.Status
	Circuits     map[int]model.Circuit

	// ResultsHaveStatus is true when results.csv carries a statusId column.
	ResultsHaveStatus bool

	present map[string]bool
}

// Has reports whether table was loaded.
func (c *Core) Has(table string) bool {
	return c != nil && c.present[table]
}

// LoadCore reads the core tables from dir in parallel. A missing optional
// table is logged and skipped; missing mandatory tables return a
// *MissingTableError.
func LoadCore(ctx context.Context, dir string) (*Core, error) {
	log := zap.L().With(zap.String("component", "dataset"))

	names := make([]string, 0, len(CoreFiles))
	for name := range CoreFiles {
		names = append(names, name)
	}
	sort.Strings(names)

	raw := make([]*Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			t, err := readTable(gctx, name, filepath.Join(dir, CoreFiles[name]))
			if err != nil {
				return err
			}
			raw[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables := make(map[string]*Table, len(names))
	for i, name := range names {
		if raw[i] == nil {
			log.Warn("skipping table because its file is missing",
				zap.String("table", name),
				zap.String("file", CoreFiles[name]),
			)
			continue
		}
		log.Info("loaded table", zap.String("table", name), zap.Int("rows", raw[i].Len()))
		tables[name] = raw[i]
	}

	var missing []string
	for _, name := range Mandatory {
		if tables[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingTableError{Dir: dir, Tables: missing}
	}

	return buildCore(tables), nil
}

// readTable loads one CSV. A missing file returns (nil, nil).
func readTable(ctx context.Context, name, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	t := NewTable(name, header, rows)
	t.Path = path
	return t, nil
}

// NewCore builds a Core from already-parsed tables keyed by core table name.
func NewCore(tables map[string]*Table) *Core {
	return buildCore(tables)
}

func buildCore(tables map[string]*Table) *Core {
	c := &Core{
		Drivers:      map[int]model.Driver{},
		Constructors: map[int]model.Constructor{},
		present:      map[string]bool{},
	}
	for name, t := range tables {
		if t != nil {
			c.present[name] = true
		}
	}

	if t := tables[TableRaces]; t != nil {
		c.Races = parseRaces(t)
	}
	if t := tables[TableResults]; t != nil {
		c.Results = parseResults(t)
		c.ResultsHaveStatus = t.Has("statusId")
	}
	if t := tables[TableDrivers]; t != nil {
		for _, row := range t.Rows {
			d := model.Driver{
				DriverID: parseIntOr(t.Get(row, "driverId"), 0),
				Code:     nullToEmpty(t.Get(row, "code")),
				Forename: t.Get(row, "forename"),
				Surname:  t.Get(row, "surname"),
			}
			c.Drivers[d.DriverID] = d
		}
	}
	if t := tables[TableConstructors]; t != nil {
		for _, row := range t.Rows {
			k := model.Constructor{
				ConstructorID: parseIntOr(t.Get(row, "constructorId"), 0),
				Name:          t.Get(row, "name"),
			}
			c.Constructors[k.ConstructorID] = k
		}
	}
	if t := tables[TableQualifying]; t != nil {
		c.Qualifying = parseQualifying(t)
	}
	if t := tables[TableLapTimes]; t != nil && t.Has("milliseconds") {
		c.LapTimes = parseLapTimes(t)
	}
	if t := tables[TablePitStops]; t != nil {
		c.PitStops = parsePitStops(t)
	}
	if t := tables[TableStatus]; t != nil {
		c.Status = make(map[int]model.Status, t.Len())
		for _, row := range t.Rows {
			s := model.Status{
				StatusID: parseIntOr(t.Get(row, "statusId"), 0),
				Status:   t.Get(row, "status"),
			}
			c.Status[s.StatusID] = s
		}
	}
	if t := tables[TableCircuits]; t != nil {
		c.Circuits = make(map[int]model.Circuit, t.Len())
		for _, row := range t.Rows {
			ci := model.Circuit{
				CircuitID: parseIntOr(t.Get(row, "circuitId"), 0),
				Ref:       t.Get(row, "circuitRef"),
				Name:      t.Get(row, "name"),
				Location:  t.Get(row, "location"),
				Country:   t.Get(row, "country"),
				Lat:       ParseFloat(t.Get(row, "lat")),
				Lng:       ParseFloat(t.Get(row, "lng")),
			}
			c.Circuits[ci.CircuitID] = ci
		}
	}
	return c
}

func parseRaces(t *Table) []model.Race {
	out := make([]model.Race, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, model.Race{
			RaceID:    parseIntOr(t.Get(row, "raceId"), 0),
			Year:      parseIntOr(t.Get(row, "year"), 0),
			Round:     parseIntOr(t.Get(row, "round"), 0),
			CircuitID: parseIntOr(t.Get(row, "circuitId"), 0),
			Name:      t.Get(row, "name"),
			Date:      t.Get(row, "date"),
			Time:      nullToEmpty(t.Get(row, "time")),
		})
	}
	return out
}

func parseResults(t *Table) []model.Result {
	out := make([]model.Result, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, model.Result{
			ResultID:        parseIntOr(t.Get(row, "resultId"), 0),
			RaceID:          parseIntOr(t.Get(row, "raceId"), 0),
			DriverID:        parseIntOr(t.Get(row, "driverId"), 0),
			ConstructorID:   parseIntOr(t.Get(row, "constructorId"), 0),
			Grid:            ParseFloat(t.Get(row, "grid")),
			PositionText:    t.Get(row, "positionText"),
			StatusID:        parseIntOr(t.Get(row, "statusId"), 0),
			FastestLapSpeed: ParseFloat(t.Get(row, "fastestLapSpeed")),
			FastestLapTime:  nullToEmpty(t.Get(row, "fastestLapTime")),
		})
	}
	return out
}

func parseQualifying(t *Table) []model.Qualifying {
	out := make([]model.Qualifying, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, model.Qualifying{
			RaceID:   parseIntOr(t.Get(row, "raceId"), 0),
			DriverID: parseIntOr(t.Get(row, "driverId"), 0),
			Q1:       t.Get(row, "q1"),
			Q2:       t.Get(row, "q2"),
			Q3:       t.Get(row, "q3"),
		})
	}
	return out
}

func parseLapTimes(t *Table) []model.LapTime {
	out := make([]model.LapTime, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, model.LapTime{
			RaceID:       parseIntOr(t.Get(row, "raceId"), 0),
			DriverID:     parseIntOr(t.Get(row, "driverId"), 0),
			Lap:          parseIntOr(t.Get(row, "lap"), 0),
			Milliseconds: ParseFloat(t.Get(row, "milliseconds")),
		})
	}
	return out
}

// parsePitStops reads pit_stops.csv. Tables without milliseconds or
// duration carry seconds in their first numeric column other than the ids.
func parsePitStops(t *Table) []model.PitStop {
	fallback := -1
	if !t.Has("milliseconds") && !t.Has("duration") {
		fallback = t.FirstNumericColumn(t.Col("raceId"), t.Col("driverId"), t.Col("stop"), t.Col("lap"))
	}

	out := make([]model.PitStop, 0, t.Len())
	for _, row := range t.Rows {
		p := model.PitStop{
			RaceID:       parseIntOr(t.Get(row, "raceId"), 0),
			DriverID:     parseIntOr(t.Get(row, "driverId"), 0),
			Stop:         parseIntOr(t.Get(row, "stop"), 0),
			Duration:     nullToEmpty(t.Get(row, "duration")),
			Milliseconds: ParseFloat(t.Get(row, "milliseconds")),
		}
		if fallback >= 0 {
			p.Milliseconds = ParseFloat(Cell(row, fallback)) * 1000
		}
		out = append(out, p)
	}
	return out
}

func nullToEmpty(s string) string {
	if IsNull(s) {
		return ""
	}
	return strings.TrimSpace(s)
}
