package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/model"
)

func TestNameKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Max Verstappen", "maxverstappen"},
		{"  max-verstappen 1 ", "maxverstappen"},
		{"Sergio Pérez", "sergioperez"},
		{"Kimi Räikkönen", "kimiraikkonen"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NameKey(tt.in))
		})
	}
}

func TestParseTimeMS(t *testing.T) {
	assert.InDelta(t, 90031.0, ParseTimeMS("1:30.031"), 1e-6)
	assert.InDelta(t, 58500.0, ParseTimeMS("58.5"), 1e-6)
	assert.InDelta(t, 3723000.0, ParseTimeMS("1:02:03"), 1e-6)
	assert.True(t, math.IsNaN(ParseTimeMS(`\N`)))
	assert.True(t, math.IsNaN(ParseTimeMS("")))
	assert.True(t, math.IsNaN(ParseTimeMS("fast")))
	assert.True(t, math.IsNaN(ParseTimeMS("1::2")))
}

func TestRoundAndNormalize(t *testing.T) {
	assert.Equal(t, 1.235, Round(1.23456, 3))
	assert.True(t, math.IsNaN(Round(math.NaN(), 3)))

	assert.InDelta(t, 0.7, NormalizeProbability(70), 1e-12)
	assert.Equal(t, 0.4, NormalizeProbability(0.4))
	assert.Equal(t, 0.0, NormalizeProbability(-3))
	assert.Equal(t, 1.0, NormalizeProbability(150))
	assert.True(t, math.IsNaN(NormalizeProbability(math.NaN())))
}

func TestQualifyingGap(t *testing.T) {
	rows := []model.Qualifying{
		{RaceID: 1, DriverID: 1, Q1: "1:30.000", Q2: "1:29.500", Q3: "1:29.000"},
		{RaceID: 1, DriverID: 2, Q1: "1:30.100", Q2: `\N`, Q3: `\N`},
		{RaceID: 1, DriverID: 3, Q1: `\N`, Q2: `\N`, Q3: `\N`},
		{RaceID: 2, DriverID: 1, Q1: "1:00.000"},
	}

	gaps := QualifyingGap(rows, 1)
	assert.InDelta(t, 0.0, gaps[1], 1e-9)
	assert.InDelta(t, 1100.0, gaps[2], 1e-6)
	_, ok := gaps[3]
	assert.False(t, ok)
	assert.True(t, math.IsNaN(gaps.Get(3)))
}

func TestQualifyingGap_NoData(t *testing.T) {
	assert.Empty(t, QualifyingGap(nil, 1))
	assert.Empty(t, QualifyingGap([]model.Qualifying{{RaceID: 1, DriverID: 1, Q1: `\N`}}, 1))
}

func TestLongRunPace(t *testing.T) {
	laps := []model.LapTime{
		{RaceID: 1, DriverID: 1, Lap: 1, Milliseconds: 90000},
		{RaceID: 1, DriverID: 1, Lap: 2, Milliseconds: 92000},
		{RaceID: 1, DriverID: 1, Lap: 3, Milliseconds: math.NaN()},
		{RaceID: 1, DriverID: 2, Lap: 1, Milliseconds: 95000},
		{RaceID: 2, DriverID: 1, Lap: 1, Milliseconds: 10},
	}
	pace := LongRunPace(laps, 1)
	assert.InDelta(t, 91.0, pace[1], 1e-9)
	assert.InDelta(t, 95.0, pace[2], 1e-9)
	assert.Len(t, pace, 2)
}

func TestApplyLongRunOverride(t *testing.T) {
	pace := Values{1: 91.0, 3: 93.0}
	names := map[int]string{1: "Max Verstappen", 2: "Sergio Pérez", 3: "Lando Norris"}
	tbl := dataset.NewTable("longrun", []string{"driver_name", "long_run_pace"}, [][]string{
		{"max verstappen", "89.5"},
		{"Sergio Perez", "90.1"},
		{"Someone Else", "not a number"},
	})

	got := ApplyLongRunOverride(pace, names, tbl, Columns{})
	assert.Equal(t, 89.5, got[1])
	assert.Equal(t, 90.1, got[2])
	assert.Equal(t, 93.0, got[3])
	assert.Equal(t, 91.0, pace[1], "input map is not mutated")
}

func TestApplyLongRunOverride_ExplicitColumns(t *testing.T) {
	tbl := dataset.NewTable("longrun", []string{"Who", "Secs", "long_avg"}, [][]string{
		{"Max Verstappen", "88.8", "1"},
	})
	got := ApplyLongRunOverride(Values{}, map[int]string{1: "Max Verstappen"}, tbl, Columns{Key: "Who", Value: "Secs"})
	assert.Equal(t, 88.8, got[1])

	got = ApplyLongRunOverride(Values{1: 90}, map[int]string{1: "Max Verstappen"}, tbl, Columns{Key: "missing"})
	assert.Equal(t, 90.0, got[1])
}

func TestApplyLongRunOverride_NumericFallback(t *testing.T) {
	tbl := dataset.NewTable("longrun", []string{"pilot", "team", "seconds"}, [][]string{
		{"Lando Norris", "McLaren", "90.4"},
	})
	got := ApplyLongRunOverride(Values{}, map[int]string{4: "Lando Norris"}, tbl, Columns{})
	assert.Equal(t, 90.4, got[4])
}

func TestStraightlineIndex(t *testing.T) {
	results := []model.Result{
		{RaceID: 1, DriverID: 1, FastestLapSpeed: 200},
		{RaceID: 1, DriverID: 2, FastestLapSpeed: 220},
		{RaceID: 1, DriverID: 3, FastestLapSpeed: math.NaN()},
		{RaceID: 2, DriverID: 1, FastestLapSpeed: 300},
	}
	idx := StraightlineIndex(results, 1)
	assert.Equal(t, 0.0, idx[1])
	assert.Equal(t, 100.0, idx[2])
	assert.True(t, math.IsNaN(idx.Get(3)))
}

func TestMinMaxIndex_AllEqual(t *testing.T) {
	idx := MinMaxIndex(Values{1: 210, 2: 210, 3: 210, 4: math.NaN()})
	assert.Equal(t, 50.0, idx[1])
	assert.Equal(t, 50.0, idx[2])
	assert.Equal(t, 50.0, idx[3])
	assert.True(t, math.IsNaN(idx[4]))

	assert.Empty(t, MinMaxIndex(Values{}))

	idx = MinMaxIndex(Values{1: 200, 2: 200.0000000001})
	assert.Equal(t, 50.0, idx[1])
	assert.Equal(t, 50.0, idx[2])
}

func TestCorneringIndex(t *testing.T) {
	laps := []model.LapTime{
		{RaceID: 1, DriverID: 1, Milliseconds: 90000},
		{RaceID: 1, DriverID: 2, Milliseconds: 92000},
		{RaceID: 1, DriverID: 3, Milliseconds: 94000},
	}
	idx := CorneringIndex(laps, 1)
	assert.InDelta(t, 100.0, idx[1], 1e-9)
	assert.InDelta(t, 50.0, idx[2], 1e-9)
	assert.InDelta(t, 0.0, idx[3], 1e-9)
}

func TestPitCrewMean(t *testing.T) {
	stops := []model.PitStop{
		{RaceID: 1, DriverID: 1, Stop: 1, Milliseconds: 23000},
		{RaceID: 1, DriverID: 1, Stop: 2, Milliseconds: 25000},
		{RaceID: 1, DriverID: 2, Stop: 1, Milliseconds: math.NaN(), Duration: "22.5"},
		{RaceID: 1, DriverID: 3, Stop: 1, Milliseconds: math.NaN()},
		{RaceID: 9, DriverID: 1, Stop: 1, Milliseconds: 1000},
	}
	mean := PitCrewMean(stops, 1)
	assert.InDelta(t, 24.0, mean[1], 1e-9)
	assert.InDelta(t, 22.5, mean[2], 1e-9)
	_, ok := mean[3]
	assert.False(t, ok)
}

func historyFixture() History {
	return History{
		Races: []model.Race{
			{RaceID: 1, Year: 2024, Round: 1},
			{RaceID: 2, Year: 2024, Round: 2},
			{RaceID: 3, Year: 2024, Round: 3},
			{RaceID: 4, Year: 2024, Round: 4},
			{RaceID: 5, Year: 2023, Round: 1},
		},
		Results: []model.Result{
			{RaceID: 1, DriverID: 1, StatusID: 1},
			{RaceID: 2, DriverID: 1, StatusID: 3},
			{RaceID: 3, DriverID: 1, StatusID: 11},
			{RaceID: 4, DriverID: 1, StatusID: 5},
			{RaceID: 5, DriverID: 1, StatusID: 5},
			{RaceID: 1, DriverID: 2, StatusID: 5},
			{RaceID: 2, DriverID: 2, StatusID: 1},
			{RaceID: 3, DriverID: 2, StatusID: 1},
		},
		Status: map[int]model.Status{
			1:  {StatusID: 1, Status: "Finished"},
			3:  {StatusID: 3, Status: "Accident"},
			5:  {StatusID: 5, Status: "Engine"},
			11: {StatusID: 11, Status: "+1 Lap"},
		},
		UseStatus: true,
	}
}

func TestDNFRate_StatusTable(t *testing.T) {
	h := historyFixture()

	rates := DNFRate(h, 3, 5)
	assert.InDelta(t, 1.0/3, rates[1], 1e-9)
	assert.InDelta(t, 1.0/3, rates[2], 1e-9)

	rates = DNFRate(h, 3, 2)
	assert.InDelta(t, 0.5, rates[1], 1e-9)
	assert.InDelta(t, 0.0, rates[2], 1e-9)

	rates = DNFRate(h, 3, 0)
	assert.InDelta(t, 0.0, rates[1], 1e-9, "window is at least one race")

	assert.Empty(t, DNFRate(h, 99, 5))
}

func TestDNF_UnknownStatusCountsAsDNF(t *testing.T) {
	h := historyFixture()
	assert.True(t, h.DNF(model.Result{StatusID: 42}))
	assert.False(t, h.Incident(model.Result{StatusID: 42}))
}

func TestDNF_PositionTextFallback(t *testing.T) {
	h := History{}
	for _, pt := range []string{"R", "d", "E", "F", "W", "DNF"} {
		assert.True(t, h.DNF(model.Result{PositionText: pt}), pt)
	}
	assert.False(t, h.DNF(model.Result{PositionText: "1"}))
	assert.False(t, h.DNF(model.Result{PositionText: "N"}))

	h = historyFixture()
	h.UseStatus = false
	assert.True(t, h.DNF(model.Result{StatusID: 1, PositionText: "R"}))
}

func TestSafetyCarProbability(t *testing.T) {
	h := historyFixture()
	assert.InDelta(t, 1.0/3, SafetyCarProbability(h, 3, 5), 1e-9)
	assert.InDelta(t, 0.0, SafetyCarProbability(h, 3, 1), 1e-9)
	assert.InDelta(t, 0.5, SafetyCarProbability(h, 3, 2), 1e-9)
	assert.True(t, math.IsNaN(SafetyCarProbability(h, 99, 5)))
}

func TestSafetyCarProbability_DNFStandsIn(t *testing.T) {
	h := History{
		Races: []model.Race{{RaceID: 1, Year: 2024, Round: 1}, {RaceID: 2, Year: 2024, Round: 2}},
		Results: []model.Result{
			{RaceID: 1, DriverID: 1, PositionText: "R"},
			{RaceID: 2, DriverID: 1, PositionText: "1"},
		},
	}
	assert.InDelta(t, 0.5, SafetyCarProbability(h, 2, 5), 1e-9)
}

func TestRainFromTable_NumericFallbackWithoutRaceColumn(t *testing.T) {
	tbl := dataset.NewTable("weather", []string{"chance_value", "conditions"}, [][]string{{"70", "cloudy"}})
	assert.InDelta(t, 0.7, RainFromTable(tbl, "Sample GP", Columns{}), 1e-12)
}

func TestRainFromTable_RaceMatch(t *testing.T) {
	tbl := dataset.NewTable("weather", []string{"race_name", "rain_chance"}, [][]string{
		{"Bahrain Grand Prix", "20"},
		{"Italian Grand Prix", "0.35"},
		{"Dutch Grand Prix", "150"},
		{"Qatar Grand Prix", "n/a"},
	})
	assert.InDelta(t, 0.35, RainFromTable(tbl, "Italian Grand Prix", Columns{}), 1e-12)
	assert.InDelta(t, 0.2, RainFromTable(tbl, "bahrain grand prix", Columns{}), 1e-12)
	assert.Equal(t, 1.0, RainFromTable(tbl, "Dutch Grand Prix", Columns{}))
	assert.True(t, math.IsNaN(RainFromTable(tbl, "Qatar Grand Prix", Columns{})))
	assert.True(t, math.IsNaN(RainFromTable(tbl, "Monaco Grand Prix", Columns{})))
	assert.True(t, math.IsNaN(RainFromTable(nil, "Monaco Grand Prix", Columns{})))
}

func TestRainFromTable_ExplicitColumns(t *testing.T) {
	tbl := dataset.NewTable("weather", []string{"Race", "Outlook", "RainChance"}, [][]string{
		{"Monaco Grand Prix", "storm", "65"},
	})
	assert.InDelta(t, 0.65, RainFromTable(tbl, "Monaco Grand Prix", Columns{Key: "Race", Value: "RainChance"}), 1e-12)
	assert.True(t, math.IsNaN(RainFromTable(tbl, "Monaco Grand Prix", Columns{Key: "GP", Value: "RainChance"})))
}

func TestRainAtHour(t *testing.T) {
	times := []string{"2024-09-01T13:00", "2024-09-01T14:00", "2024-09-01T15:00"}
	probs := []float64{10, math.NaN(), 33.33}

	assert.InDelta(t, 0.333, RainAtHour(times, probs, 15), 1e-12)
	assert.InDelta(t, 0.333, RainAtHour(times, probs, 18), 1e-12)
	assert.InDelta(t, 0.1, RainAtHour(times, probs, 9), 1e-12)
	assert.True(t, math.IsNaN(RainAtHour(times, probs, 14)))
	assert.True(t, math.IsNaN(RainAtHour(nil, nil, 14)))
	assert.True(t, math.IsNaN(RainAtHour([]string{"bad"}, []float64{1}, 14)))

	assert.Equal(t, 1.0, RainAtHour([]string{"2024-01-01T15:00"}, []float64{105}, 15))
	assert.Equal(t, 0.0, RainAtHour([]string{"2024-01-01T15:00"}, []float64{-4}, 15))
}

func TestZScores(t *testing.T) {
	z := ZScores([]float64{1, 2, 3, math.NaN()})
	require.Len(t, z, 4)
	assert.InDelta(t, -1.224744871, z[0], 1e-6)
	assert.InDelta(t, 0.0, z[1], 1e-12)
	assert.InDelta(t, 1.224744871, z[2], 1e-6)
	assert.True(t, math.IsNaN(z[3]))

	z = ZScores([]float64{5, math.NaN()})
	assert.True(t, math.IsNaN(z[0]))
	assert.True(t, math.IsNaN(z[1]))

	assert.Equal(t, []float64{0, 0}, ZScores([]float64{4, 4}))
}

func TestTrimmedLongRun(t *testing.T) {
	laps := []float64{98, 91, 92, 120, 93, 94, 95, 90, 96, 97}
	assert.InDelta(t, 94.5, TrimmedLongRun(laps), 1e-9)

	assert.True(t, math.IsNaN(TrimmedLongRun(nil)))
	assert.True(t, math.IsNaN(TrimmedLongRun([]float64{90})))
}

func TestQuantileAndMedian(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.3, Quantile(s, 0.1), 1e-12)
	assert.InDelta(t, 2.5, Median([]float64{4, 1, 3, 2}), 1e-12)
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestSafetyCarFromTable(t *testing.T) {
	tbl := dataset.NewTable("safety_car", []string{"grand_prix", "safety_car_probability"}, [][]string{
		{"Singapore Grand Prix", "100"},
		{"Italian Grand Prix", "45"},
	})
	assert.Equal(t, 1.0, SafetyCarFromTable(tbl, "Singapore Grand Prix", Columns{}))
	assert.InDelta(t, 0.45, SafetyCarFromTable(tbl, "Italian Grand Prix", Columns{}), 1e-12)
	assert.True(t, math.IsNaN(SafetyCarFromTable(tbl, "Japanese Grand Prix", Columns{})))
}

func TestApplyDriverOverride_SpeedTrap(t *testing.T) {
	tbl := dataset.NewTable("speed_trap", []string{"Driver", "Team", "top_speed_kph"}, [][]string{
		{"Max Verstappen", "Red Bull", "343.2"},
	})
	speeds := Values{1: 220, 2: 218}
	got := ApplyDriverOverride(speeds, map[int]string{1: "Max Verstappen", 2: "Lewis Hamilton"}, tbl, Columns{}, SpeedTrapKeywords)
	assert.Equal(t, 343.2, got[1])
	assert.Equal(t, 218.0, got[2])
}
