// Package pipeline assembles the per-driver metrics table for one race from
// the historical tables and the optional scraper outputs.
package pipeline

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/features"
	"github.com/sells-group/f1-etl/internal/model"
)

// WetLookup answers whether a past race was run in the wet.
type WetLookup interface {
	WetRace(ctx context.Context, race model.Race, circuit model.Circuit) (model.WetFlag, error)
}

// Options configures a single build.
type Options struct {
	Filter        RaceFilter
	HistoryWindow int
	// Columns holds explicit scraper column mappings keyed by scraper table.
	Columns map[string]features.Columns
}

// Result is the assembled table for the selected race.
type Result struct {
	Race    model.Race
	Circuit *model.Circuit
	Rows    []model.DriverMetrics
}

// Pipeline builds DriverMetrics tables.
type Pipeline struct {
	wet WetLookup
}

// New creates a Pipeline. wet may be nil, in which case rain probability
// comes only from the weather scraper table.
func New(wet WetLookup) *Pipeline {
	return &Pipeline{wet: wet}
}

// Run selects the target race and computes every metric column for its
// drivers.
func (p *Pipeline) Run(ctx context.Context, core *dataset.Core, scraper map[string]*dataset.Table, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	if core == nil {
		return nil, eris.New("pipeline: no dataset loaded")
	}

	race, err := SelectTargetRace(core.Races, opts.Filter)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.Int("race_id", race.RaceID), zap.String("race", race.Name))
	log.Info("preparing dataset", zap.Int("year", race.Year), zap.Int("round", race.Round))

	rows, err := BuildDriverBase(core, race.RaceID)
	if err != nil {
		return nil, err
	}

	res := &Result{Race: race, Rows: rows}
	if c, ok := core.Circuits[race.CircuitID]; ok {
		res.Circuit = &c
	}

	names := make(map[int]string, len(rows))
	for _, r := range rows {
		names[r.DriverID] = r.DriverName
	}
	cols := func(table string) features.Columns { return opts.Columns[table] }

	gap := features.QualifyingGap(core.Qualifying, race.RaceID)

	pace := features.LongRunPace(core.LapTimes, race.RaceID)
	pace = features.ApplyLongRunOverride(pace, names, scraper[dataset.ScraperLongRun], cols(dataset.ScraperLongRun))

	speed := features.SpeedTrap(core.Results, race.RaceID)
	speed = features.ApplyDriverOverride(speed, names, scraper[dataset.ScraperSpeedTrap], cols(dataset.ScraperSpeedTrap), features.SpeedTrapKeywords)
	straight := features.MinMaxIndex(restrict(speed, names))
	corner := features.CorneringIndex(core.LapTimes, race.RaceID)

	pit := features.PitCrewMean(core.PitStops, race.RaceID)

	history := features.History{
		Races:     core.Races,
		Results:   core.Results,
		Status:    core.Status,
		UseStatus: core.ResultsHaveStatus,
	}
	dnf := features.DNFRate(history, race.RaceID, opts.HistoryWindow)

	sc := features.SafetyCarFromTable(scraper[dataset.ScraperSafetyCar], race.Name, cols(dataset.ScraperSafetyCar))
	if math.IsNaN(sc) {
		sc = features.SafetyCarProbability(history, race.RaceID, opts.HistoryWindow)
	}

	rain := features.RainFromTable(scraper[dataset.ScraperWeather], race.Name, cols(dataset.ScraperWeather))
	if math.IsNaN(rain) && p.wet != nil && res.Circuit != nil {
		flag, err := p.wet.WetRace(ctx, race, *res.Circuit)
		if err != nil {
			log.Warn("wet race lookup failed, leaving rain probability empty", zap.Error(err))
		} else {
			rain = flag.Probability()
		}
	}

	for i := range rows {
		id := rows[i].DriverID
		rows[i].QualyGapMS = gap.Get(id)
		rows[i].FPLongRunPaceS = pace.Get(id)
		rows[i].SpeedTrapKPH = speed.Get(id)
		rows[i].StraightlineIndex = straight.Get(id)
		rows[i].CorneringIndex = corner.Get(id)
		rows[i].PitCrewMeanS = pit.Get(id)
		rows[i].DNFRate = dnf.Get(id)
		rows[i].SCProb = sc
		rows[i].RainProb = rain
	}

	log.Info("dataset assembled", zap.Int("drivers", len(rows)))
	return res, nil
}

// restrict keeps only the entries of v for drivers in names.
func restrict(v features.Values, names map[int]string) features.Values {
	out := make(features.Values, len(v))
	for id, x := range v {
		if _, ok := names[id]; ok {
			out[id] = x
		}
	}
	return out
}
