package racefeatures

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/f1-etl/internal/resilience"
	"github.com/sells-group/f1-etl/pkg/openmeteo"
)

func p(v float64) *float64 { return &v }

type fakeWeather struct {
	resp          *openmeteo.Response
	errs          []error
	archiveCalls  int
	forecastCalls int
	archiveDate   time.Time
	forecastDays  int
}

func (w *fakeWeather) next() (*openmeteo.Response, error) {
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		return nil, err
	}
	return w.resp, nil
}

func (w *fakeWeather) Archive(_ context.Context, _, _ float64, date time.Time) (*openmeteo.Response, error) {
	w.archiveCalls++
	w.archiveDate = date
	return w.next()
}

func (w *fakeWeather) Forecast(_ context.Context, _, _ float64, days int) (*openmeteo.Response, error) {
	w.forecastCalls++
	w.forecastDays = days
	return w.next()
}

func (w *fakeWeather) DailyArchive(context.Context, float64, float64, time.Time) (*openmeteo.Response, error) {
	return nil, errors.New("not used")
}

func hourly() *openmeteo.Response {
	return &openmeteo.Response{
		Latitude: 45.6, Longitude: 9.28, Timezone: "Europe/Rome",
		Hourly: &openmeteo.Hourly{
			Time:                     []string{"2024-09-01T13:00", "2024-09-01T14:00", "2024-09-01T15:00", "2024-09-01T16:00"},
			PrecipitationProbability: []*float64{p(10), p(20), p(35), nil},
		},
	}
}

func monza() Input {
	in := Defaults()
	in.RaceID = "2024_monza_race"
	in.Season = 2024
	in.Round = 16
	in.CircuitID = "monza"
	in.CircuitName = "Autodromo Nazionale Monza"
	in.Country = "Italy"
	in.RaceDate = "2024-09-01"
	in.StartTime = "15:00"
	in.Laps = 53
	in.TrackLengthKM = 5.793
	in.Lat, in.Lon = 45.6156, 9.2811
	return in
}

var noRetry = WithRetry(resilience.RetryConfig{MaxAttempts: 1})

func TestBuild_PastRaceUsesArchive(t *testing.T) {
	w := &fakeWeather{resp: hourly()}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC))

	row, err := New(w, WithClock(clock), noRetry).Build(context.Background(), monza())
	require.NoError(t, err)

	assert.Equal(t, 1, w.archiveCalls)
	assert.Zero(t, w.forecastCalls)
	assert.Equal(t, "2024-09-01", w.archiveDate.Format(dateLayout))
	assert.InDelta(t, 0.35, row.RainProb, 1e-9)

	assert.Equal(t, "2024_monza_race", row.RaceID)
	assert.Equal(t, "Europe/Rome", row.Timezone)
	assert.Equal(t, 2, row.DRSZones)
	assert.InDelta(t, 0.3, row.SCProb, 1e-9)
	assert.Equal(t, 2, row.AsphaltRoughness)
	assert.True(t, math.IsNaN(row.TrackTempTypicalC))
	assert.True(t, math.IsNaN(row.WindTypicalKPH))
}

func TestBuild_RaceDayUsesArchive(t *testing.T) {
	w := &fakeWeather{resp: hourly()}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 1, 23, 30, 0, 0, time.UTC))

	_, err := New(w, WithClock(clock), noRetry).Build(context.Background(), monza())
	require.NoError(t, err)
	assert.Equal(t, 1, w.archiveCalls)
}

func TestBuild_FutureRaceUsesForecast(t *testing.T) {
	w := &fakeWeather{resp: hourly()}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 29, 8, 0, 0, 0, time.UTC))

	in := monza()
	in.StartTime = "14:00"
	row, err := New(w, WithClock(clock), noRetry).Build(context.Background(), in)
	require.NoError(t, err)

	assert.Zero(t, w.archiveCalls)
	assert.Equal(t, 1, w.forecastCalls)
	assert.Equal(t, ForecastDays, w.forecastDays)
	assert.InDelta(t, 0.2, row.RainProb, 1e-9)
}

func TestBuild_WeatherFailureLeavesRainEmpty(t *testing.T) {
	w := &fakeWeather{errs: []error{errors.New("boom")}}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC))

	row, err := New(w, WithClock(clock), noRetry).Build(context.Background(), monza())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(row.RainProb))
	assert.Equal(t, "", row.Record()[len(row.Record())-1])
}

func TestBuild_InvalidPayloadIsRecovered(t *testing.T) {
	w := &fakeWeather{resp: &openmeteo.Response{Latitude: 1, Longitude: 1}}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC))

	row, err := New(w, WithClock(clock), noRetry).Build(context.Background(), monza())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(row.RainProb))
}

func TestBuild_RetriesOnFakeClock(t *testing.T) {
	w := &fakeWeather{resp: hourly(), errs: []error{errors.New("timeout")}}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC))
	b := New(w, WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		rain float64
		err  error
	}
	done := make(chan result, 1)
	go func() {
		row, err := b.Build(ctx, monza())
		done <- result{row.RainProb, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultBaseDelay)

	res := <-done
	require.NoError(t, res.err)
	assert.InDelta(t, 0.35, res.rain, 1e-9)
	assert.Equal(t, 2, w.archiveCalls)
}

func TestBuild_InvalidInput(t *testing.T) {
	b := New(&fakeWeather{}, noRetry)

	in := monza()
	in.RaceDate = "01/09/2024"
	_, err := b.Build(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid race date")

	in = monza()
	in.StartTime = "noon"
	_, err = b.Build(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid start time")
}

func TestValidate(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Empty weather response")

	err = Validate(&openmeteo.Response{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Empty weather response")

	err = Validate(&openmeteo.Response{Timezone: "GMT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing 'hourly' section")

	assert.NoError(t, Validate(&openmeteo.Response{Hourly: &openmeteo.Hourly{}}))
}

func TestRainProb(t *testing.T) {
	assert.InDelta(t, 0.1, RainProb(hourly(), 9), 1e-9)
	assert.True(t, math.IsNaN(RainProb(hourly(), 16)))
	assert.True(t, math.IsNaN(RainProb(&openmeteo.Response{}, 15)))
}
