package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/model"
)

func fixtureCore(t *testing.T) *dataset.Core {
	t.Helper()
	tables := map[string]*dataset.Table{
		dataset.TableRaces: dataset.NewTable(dataset.TableRaces,
			[]string{"raceId", "year", "round", "circuitId", "name", "date", "time"},
			[][]string{
				{"10", "2024", "1", "1", "Bahrain Grand Prix", "2024-03-02", "15:00:00"},
				{"11", "2024", "2", "2", "Saudi Arabian Grand Prix", "2024-03-09", "17:00:00"},
				{"12", "2024", "3", "3", "Australian Grand Prix", "2024-03-24", `\N`},
			}),
		dataset.TableResults: dataset.NewTable(dataset.TableResults,
			[]string{"resultId", "raceId", "driverId", "constructorId", "grid", "positionText", "statusId", "fastestLapSpeed"},
			[][]string{
				{"1", "10", "1", "9", "1", "1", "1", "210.0"},
				{"2", "10", "2", "6", "2", "R", "3", "205.0"},
				{"3", "11", "1", "9", "2", "1", "1", "250.0"},
				{"4", "11", "2", "6", "1", "2", "1", "260.0"},
				{"5", "12", "1", "9", "1", "R", "5", "200.0"},
				{"6", "12", "2", "6", "0", "1", "1", "220.0"},
				{"7", "12", "2", "6", "3", "2", "1", "230.0"},
			}),
		dataset.TableDrivers: dataset.NewTable(dataset.TableDrivers,
			[]string{"driverId", "code", "forename", "surname"},
			[][]string{
				{"1", "VER", "Max", "Verstappen"},
				{"2", "LEC", "Charles", "Leclerc"},
			}),
		dataset.TableConstructors: dataset.NewTable(dataset.TableConstructors,
			[]string{"constructorId", "name"},
			[][]string{{"9", "Red Bull"}, {"6", "Ferrari"}}),
		dataset.TableStatus: dataset.NewTable(dataset.TableStatus,
			[]string{"statusId", "status"},
			[][]string{{"1", "Finished"}, {"3", "Accident"}, {"5", "Engine"}}),
		dataset.TableQualifying: dataset.NewTable(dataset.TableQualifying,
			[]string{"raceId", "driverId", "q1", "q2", "q3"},
			[][]string{
				{"12", "1", "1:17.000", "1:16.500", "1:16.000"},
				{"12", "2", "1:17.100", "1:16.400", `\N`},
			}),
		dataset.TableLapTimes: dataset.NewTable(dataset.TableLapTimes,
			[]string{"raceId", "driverId", "lap", "milliseconds"},
			[][]string{
				{"12", "1", "1", "80000"},
				{"12", "1", "2", "82000"},
				{"12", "2", "1", "81000"},
				{"12", "2", "2", "83000"},
			}),
		dataset.TablePitStops: dataset.NewTable(dataset.TablePitStops,
			[]string{"raceId", "driverId", "stop", "duration", "milliseconds"},
			[][]string{
				{"12", "1", "1", "22.5", "22500"},
				{"12", "2", "1", "23.0", `\N`},
			}),
		dataset.TableCircuits: dataset.NewTable(dataset.TableCircuits,
			[]string{"circuitId", "circuitRef", "name", "location", "country", "lat", "lng"},
			[][]string{{"3", "albert_park", "Albert Park Grand Prix Circuit", "Melbourne", "Australia", "-37.8497", "144.968"}}),
	}
	return dataset.NewCore(tables)
}

type fakeWet struct {
	flag  model.WetFlag
	err   error
	calls int
}

func (f *fakeWet) WetRace(_ context.Context, _ model.Race, _ model.Circuit) (model.WetFlag, error) {
	f.calls++
	return f.flag, f.err
}

func TestBuildDriverBase(t *testing.T) {
	rows, err := BuildDriverBase(fixtureCore(t), 12)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Max Verstappen", rows[0].DriverName)
	assert.Equal(t, "Red Bull", rows[0].TeamName)
	assert.Equal(t, 1.0, rows[0].GridPosition)

	// Pit lane start, duplicate row dropped.
	assert.Equal(t, "Charles Leclerc", rows[1].DriverName)
	assert.True(t, math.IsNaN(rows[1].GridPosition))
}

func TestBuildDriverBase_NoResults(t *testing.T) {
	_, err := BuildDriverBase(fixtureCore(t), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No race results available for raceId=99")
}

func TestRun_LatestRace(t *testing.T) {
	res, err := New(nil).Run(context.Background(), fixtureCore(t), nil, Options{HistoryWindow: 5})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Race.RaceID)
	require.NotNil(t, res.Circuit)
	assert.Equal(t, "Australia", res.Circuit.Country)
	require.Len(t, res.Rows, 2)

	ver, lec := res.Rows[0], res.Rows[1]
	assert.InDelta(t, 0.0, ver.QualyGapMS, 1e-9)
	assert.InDelta(t, 400.0, lec.QualyGapMS, 1e-9)

	assert.InDelta(t, 81.0, ver.FPLongRunPaceS, 1e-9)
	assert.InDelta(t, 82.0, lec.FPLongRunPaceS, 1e-9)
	assert.InDelta(t, 100.0, ver.CorneringIndex, 1e-9)
	assert.InDelta(t, 0.0, lec.CorneringIndex, 1e-9)

	assert.InDelta(t, 200.0, ver.SpeedTrapKPH, 1e-9)
	assert.InDelta(t, 0.0, ver.StraightlineIndex, 1e-9)
	assert.InDelta(t, 100.0, lec.StraightlineIndex, 1e-9)

	assert.InDelta(t, 22.5, ver.PitCrewMeanS, 1e-9)
	assert.InDelta(t, 23.0, lec.PitCrewMeanS, 1e-9)

	assert.InDelta(t, 1.0/3, ver.DNFRate, 1e-9)
	assert.InDelta(t, 0.25, lec.DNFRate, 1e-9)

	// Only round 1 had an accident.
	assert.InDelta(t, 1.0/3, ver.SCProb, 1e-9)
	assert.Equal(t, ver.SCProb, lec.SCProb)

	assert.True(t, math.IsNaN(ver.RainProb))
}

func TestRun_Filters(t *testing.T) {
	res, err := New(nil).Run(context.Background(), fixtureCore(t), nil, Options{
		Filter: RaceFilter{Year: 2024, Name: "saudi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Race.RaceID)
	assert.Nil(t, res.Circuit)

	_, err = New(nil).Run(context.Background(), fixtureCore(t), nil, Options{Filter: RaceFilter{Year: 1999}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No race matched the provided filters")
}

func TestRun_ScraperOverrides(t *testing.T) {
	scraper := map[string]*dataset.Table{
		dataset.ScraperLongRun: dataset.NewTable(dataset.ScraperLongRun,
			[]string{"driver", "long_run_pace"},
			[][]string{{"Charles Leclerc", "79.5"}}),
		dataset.ScraperWeather: dataset.NewTable(dataset.ScraperWeather,
			[]string{"race", "rain_probability"},
			[][]string{{"Australian Grand Prix", "40"}}),
		dataset.ScraperSafetyCar: dataset.NewTable(dataset.ScraperSafetyCar,
			[]string{"event", "sc_probability"},
			[][]string{{"Australian Grand Prix", "0.65"}}),
	}
	wet := &fakeWet{flag: model.Wet}

	res, err := New(wet).Run(context.Background(), fixtureCore(t), scraper, Options{HistoryWindow: 5})
	require.NoError(t, err)

	ver, lec := res.Rows[0], res.Rows[1]
	assert.InDelta(t, 81.0, ver.FPLongRunPaceS, 1e-9)
	assert.InDelta(t, 79.5, lec.FPLongRunPaceS, 1e-9)
	assert.InDelta(t, 0.65, ver.SCProb, 1e-9)
	assert.InDelta(t, 0.4, lec.RainProb, 1e-9)
	assert.Zero(t, wet.calls)
}

func TestRun_WetLookup(t *testing.T) {
	wet := &fakeWet{flag: model.Wet}
	res, err := New(wet).Run(context.Background(), fixtureCore(t), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, wet.calls)
	assert.Equal(t, 1.0, res.Rows[0].RainProb)

	failing := &fakeWet{err: errors.New("offline")}
	res, err = New(failing).Run(context.Background(), fixtureCore(t), nil, Options{})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Rows[0].RainProb))
}

func TestSelectTargetRace(t *testing.T) {
	races := []model.Race{
		{RaceID: 1, Name: "A", Date: "2024-05-01"},
		{RaceID: 2, Name: "B", Date: "not a date"},
		{RaceID: 3, Name: "C", Date: "2023-05-01"},
	}
	r, err := SelectTargetRace(races, RaceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.RaceID)

	r, err = SelectTargetRace(races, RaceFilter{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, r.RaceID)

	_, err = SelectTargetRace(nil, RaceFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No races available in the dataset")
}
