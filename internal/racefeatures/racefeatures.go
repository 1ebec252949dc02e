// Package racefeatures builds the per-race features row: circuit metadata
// from flags plus the race-hour rain probability from Open-Meteo.
package racefeatures

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/features"
	"github.com/sells-group/f1-etl/internal/model"
	"github.com/sells-group/f1-etl/internal/resilience"
	"github.com/sells-group/f1-etl/pkg/openmeteo"
)

// ForecastDays is the forecast horizon requested for future races.
const ForecastDays = 7

// Weather fetch retry policy.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

const dateLayout = "2006-01-02"

// Input carries the command flags.
type Input struct {
	RaceID           string
	Season           int
	Round            int
	CircuitID        string
	CircuitName      string
	Country          string
	RaceDate         string // YYYY-MM-DD, local
	StartTime        string // HH:MM, local
	Timezone         string
	Laps             int
	TrackLengthKM    float64
	AltitudeM        int
	DRSZones         int
	OvertakeIndex    float64
	PitLaneLossS     float64
	SCProb           float64
	VSCProb          float64
	SCAvgCount       float64
	RetireProb       float64
	TyreStress       int
	AsphaltGrip      int
	AsphaltRoughness int
	Lat              float64
	Lon              float64
}

// Defaults returns an Input with the optional fields at their usual values.
func Defaults() Input {
	return Input{
		Timezone:         "Europe/Rome",
		DRSZones:         2,
		OvertakeIndex:    0.5,
		PitLaneLossS:     20.0,
		SCProb:           0.3,
		VSCProb:          0.2,
		SCAvgCount:       1.0,
		RetireProb:       0.08,
		TyreStress:       3,
		AsphaltGrip:      3,
		AsphaltRoughness: 2,
	}
}

// Builder produces RaceFeatures rows.
type Builder struct {
	weather openmeteo.Client
	clock   clockwork.Clock
	retry   resilience.RetryConfig
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used to pick archive or forecast data and to
// pace retries.
func WithClock(c clockwork.Clock) Option {
	return func(b *Builder) {
		b.clock = c
	}
}

// WithRetry replaces the weather fetch retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(b *Builder) {
		b.retry = cfg
	}
}

// New creates a Builder backed by weather.
func New(weather openmeteo.Client, opts ...Option) *Builder {
	b := &Builder{
		weather: weather,
		clock:   clockwork.NewRealClock(),
		retry:   resilience.Backoff("weather fetch", DefaultMaxRetries, DefaultBaseDelay),
	}
	for _, o := range opts {
		o(b)
	}
	if b.retry.Clock == nil {
		b.retry.Clock = b.clock
	}
	return b
}

// Build returns the features row. A weather failure is logged and leaves
// RainProb NaN; only malformed input is an error.
func (b *Builder) Build(ctx context.Context, in Input) (model.RaceFeatures, error) {
	log := zap.L().With(zap.String("component", "racefeatures"), zap.String("race_id", in.RaceID))

	date, err := time.Parse(dateLayout, strings.TrimSpace(in.RaceDate))
	if err != nil {
		return model.RaceFeatures{}, eris.Wrapf(err, "racefeatures: invalid race date %q", in.RaceDate)
	}
	hour, err := startHour(in.StartTime)
	if err != nil {
		return model.RaceFeatures{}, err
	}

	row := model.RaceFeatures{
		RaceID:            in.RaceID,
		Season:            in.Season,
		Round:             in.Round,
		CircuitID:         in.CircuitID,
		CircuitName:       in.CircuitName,
		Country:           in.Country,
		DateLocal:         date.Format(dateLayout),
		StartTimeLocal:    in.StartTime,
		Timezone:          in.Timezone,
		Laps:              in.Laps,
		TrackLengthKM:     in.TrackLengthKM,
		AltitudeM:         in.AltitudeM,
		DRSZones:          in.DRSZones,
		OvertakeIndex:     in.OvertakeIndex,
		PitLaneLossS:      in.PitLaneLossS,
		SCProb:            in.SCProb,
		VSCProb:           in.VSCProb,
		SCAvgCount:        in.SCAvgCount,
		RetireProb:        in.RetireProb,
		TyreStress:        in.TyreStress,
		AsphaltGrip:       in.AsphaltGrip,
		AsphaltRoughness:  in.AsphaltRoughness,
		TrackTempTypicalC: math.NaN(),
		WindTypicalKPH:    math.NaN(),
		RainProb:          math.NaN(),
	}

	log.Info("starting weather data fetch")
	resp, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*openmeteo.Response, error) {
		resp, err := b.fetch(ctx, in.Lat, in.Lon, date)
		if err != nil {
			return nil, err
		}
		return resp, Validate(resp)
	})
	if err != nil {
		log.Error("weather fetch failed", zap.Error(err))
		return row, nil
	}

	row.RainProb = RainProb(resp, hour)
	log.Info("weather data processed", zap.Float64("rain_prob", row.RainProb))
	return row, nil
}

// fetch uses the archive for dates up to today (UTC) and the forecast
// otherwise.
func (b *Builder) fetch(ctx context.Context, lat, lon float64, date time.Time) (*openmeteo.Response, error) {
	today := b.clock.Now().UTC().Truncate(24 * time.Hour)
	if !date.After(today) {
		return b.weather.Archive(ctx, lat, lon, date)
	}
	return b.weather.Forecast(ctx, lat, lon, ForecastDays)
}

// Validate rejects payloads without an hourly section. Missing series are
// only logged.
func Validate(resp *openmeteo.Response) error {
	if resp.Empty() {
		return eris.New("Empty weather response")
	}
	if resp.Hourly == nil {
		return eris.New("Missing 'hourly' section in weather data")
	}
	log := zap.L().With(zap.String("component", "racefeatures"))
	if resp.Hourly.PrecipitationProbability == nil {
		log.Warn("missing precipitation_probability in weather data")
	}
	if resp.Hourly.Time == nil {
		log.Warn("missing time in weather data")
	}
	return nil
}

// RainProb is the precipitation probability closest to hour as a fraction.
func RainProb(resp *openmeteo.Response, hour int) float64 {
	if resp == nil || resp.Hourly == nil {
		return math.NaN()
	}
	probs := make([]float64, len(resp.Hourly.PrecipitationProbability))
	for i, p := range resp.Hourly.PrecipitationProbability {
		if p == nil {
			probs[i] = math.NaN()
		} else {
			probs[i] = *p
		}
	}
	return features.RainAtHour(resp.Hourly.Time, probs, hour)
}

func startHour(s string) (int, error) {
	h, _, _ := strings.Cut(strings.TrimSpace(s), ":")
	n, err := strconv.Atoi(h)
	if err != nil || n < 0 || n > 23 {
		return 0, eris.Errorf("racefeatures: invalid start time %q", s)
	}
	return n, nil
}
