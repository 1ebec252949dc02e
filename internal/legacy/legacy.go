// Package legacy converts new-schema driver tables into the column layout
// the older front-end reads.
package legacy

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/export"
	"github.com/sells-group/f1-etl/internal/fetcher"
)

// Renames maps new-schema columns to legacy column names.
var Renames = []struct{ From, To string }{
	{"driver_name", "Piloto"},
	{"team_name", "Equipa"},
	{"grid_position", "Grid"},
	{"fp_longrun_pace_s", "LongRunPace"},
	{"qualy_gap_ms", "QualiGap"},
	{"straightline_index", "TopSpeed"},
	{"cornering_index", "CorneringIndex"},
	{"pit_crew_mean_s", "PitStopAvg"},
	{"dnf_rate", "TaxaAbandono"},
	{"speed_trap_kph", "SpeedTrap"},
}

// Defaults are the constant legacy-only columns.
var Defaults = []struct{ Column, Value string }{
	{"Pontuação Total", "0"},
	{"Confiança", "5"},
	{"Momentum", "0"},
	{"Pressão", "3"},
	{"Estado Emocional", "4"},
	{"Setup", "3.5"},
	{"Motor", "3"},
	{"Aero", "3.5"},
	{"Pneus", "3"},
	{"Combustível", "3"},
	{"Fiabilidade", "3"},
	{"Rumores", "0"},
	{"Conflitos", "0"},
	{"Ultimas5", ""},
	{"QualiMédia", "0.0"},
	{"Clima", "0"},
	{"SafetyCar", "0"},
	{"TrackFit_Aero", "0.0"},
	{"TrackFit_Power", "0.0"},
	{"Deg", "0.4"},
	{"Upgrades", "Impacto Upgrades=1. Converted from new schema"},
}

// Columns is the legacy output order. Columns not produced by the
// conversion are left out of the output.
var Columns = []string{
	"Piloto", "Equipa", "Pontuação Total", "Confiança", "Momentum",
	"Pressão", "Estado Emocional", "Setup", "Motor", "Aero", "Pneus",
	"Combustível", "Fiabilidade", "Rumores", "Conflitos", "Ultimas5",
	"QualiMédia", "TaxaAbandono", "Clima", "SafetyCar", "Notas",
	"Grid", "LongRunPace", "TopSpeed", "TrackFit_Aero",
	"TrackFit_Power", "PitStopAvg", "Deg", "Upgrades",
}

const notesPrefix = "Converted from new schema - "

// Options configures a conversion.
type Options struct {
	DriversPath string
	// RacePath is an optional race features CSV.
	RacePath string
	OutPath  string
}

// Result describes a finished conversion. RainProb and SCProb are NaN when
// no race features row was read.
type Result struct {
	Rows     int
	Columns  []string
	RainProb float64
	SCProb   float64
}

// Convert reads the new-schema CSV, converts it and writes the legacy CSV
// with a UTF-8 byte order mark.
func Convert(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "legacy"))

	drivers, err := readCSV(ctx, opts.DriversPath)
	if err != nil {
		return nil, eris.Wrap(err, "legacy: read drivers")
	}

	header, rows := ConvertTable(drivers)
	res := &Result{Rows: len(rows), Columns: header, RainProb: math.NaN(), SCProb: math.NaN()}

	if opts.RacePath != "" {
		race, err := readCSV(ctx, opts.RacePath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn("race features file not found", zap.String("path", opts.RacePath))
		case err != nil:
			log.Warn("could not read race data", zap.Error(err))
		case race.Len() > 0:
			res.RainProb = dataset.ParseFloat(race.Get(race.Rows[0], "rain_prob"))
			res.SCProb = dataset.ParseFloat(race.Get(race.Rows[0], "sc_prob"))
			log.Info("read race weather fields",
				zap.Float64("rain_prob", res.RainProb),
				zap.Float64("sc_prob", res.SCProb),
			)
		}
	}

	if err := export.WriteCSV(opts.OutPath, header, rows, true); err != nil {
		return nil, err
	}
	log.Info("converted drivers to legacy format",
		zap.Int("rows", res.Rows),
		zap.String("out", opts.OutPath),
		zap.Strings("columns", header),
	)
	return res, nil
}

// ConvertTable maps a new-schema table onto the legacy layout. Row count is
// preserved.
func ConvertTable(t *dataset.Table) ([]string, [][]string) {
	values := map[string]func(row []string) string{}
	for _, r := range Renames {
		if col := t.Col(r.From); col >= 0 {
			values[r.To] = func(row []string) string { return dataset.Cell(row, col) }
		}
	}
	for _, d := range Defaults {
		values[d.Column] = func([]string) string { return d.Value }
	}
	nameCol := t.Col("driver_name")
	values["Notas"] = func(row []string) string {
		name := "Unknown"
		if nameCol >= 0 {
			name = dataset.Cell(row, nameCol)
		}
		return notesPrefix + name
	}

	header := slices.DeleteFunc(slices.Clone(Columns), func(c string) bool {
		_, ok := values[c]
		return !ok
	})

	rows := make([][]string, 0, t.Len())
	for _, row := range t.Rows {
		out := make([]string, len(header))
		for i, c := range header {
			out[i] = values[c](row)
		}
		rows = append(rows, out)
	}
	return header, rows
}

func readCSV(ctx context.Context, path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "legacy: parse %s", path)
	}
	t := dataset.NewTable(path, header, rows)
	t.Path = path
	return t, nil
}
