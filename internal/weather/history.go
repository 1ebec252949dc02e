// Package weather answers "was this race wet?" from Open-Meteo daily
// precipitation totals, with a persistent cache keyed by race id.
package weather

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/model"
	"github.com/sells-group/f1-etl/pkg/openmeteo"
)

// DefaultWetThresholdMM is the daily precipitation total at or above which a
// race day counts as wet.
const DefaultWetThresholdMM = 1.0

// DefaultStartUTC is the assumed race start for rows without a time.
const DefaultStartUTC = 13 * time.Hour

// History looks up wet race days.
type History struct {
	client    openmeteo.Client
	cache     Cache
	threshold float64
	start     time.Duration
	clock     clockwork.Clock
}

// Option configures a History.
type Option func(*History)

// WithThreshold sets the wet threshold in millimetres.
func WithThreshold(mm float64) Option {
	return func(h *History) {
		if mm > 0 {
			h.threshold = mm
		}
	}
}

// WithDefaultStart sets the UTC start ("15:04:05" or "15:04") assumed for
// races whose time is missing. Unparseable values are ignored.
func WithDefaultStart(clock string) Option {
	return func(h *History) {
		for _, layout := range []string{"15:04:05", "15:04"} {
			if t, err := time.Parse(layout, clock); err == nil {
				h.start = time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
				return
			}
		}
	}
}

// WithClock sets the clock used to reject future dates.
func WithClock(c clockwork.Clock) Option {
	return func(h *History) {
		h.clock = c
	}
}

// NewHistory creates a History. cache may be nil to disable caching.
func NewHistory(client openmeteo.Client, cache Cache, opts ...Option) *History {
	h := &History{
		client:    client,
		cache:     cache,
		threshold: DefaultWetThresholdMM,
		start:     DefaultStartUTC,
		clock:     clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Key is the cache key of a race.
func Key(race model.Race) string {
	return strconv.Itoa(race.RaceID)
}

// WetRace reports whether the race day was wet. Races without a usable date
// or coordinates, and races that have not happened yet, are Unknown and not
// cached. A missing precipitation total is cached as Unknown.
func (h *History) WetRace(ctx context.Context, race model.Race, circuit model.Circuit) (model.WetFlag, error) {
	log := zap.L().With(zap.String("component", "weather"), zap.Int("race_id", race.RaceID))
	key := Key(race)

	if h.cache != nil {
		flag, ok, err := h.cache.GetWet(ctx, key)
		if err != nil {
			log.Warn("weather cache read failed", zap.Error(err))
		} else if ok {
			log.Debug("weather cache hit", zap.Bool("known", flag.Known), zap.Bool("wet", flag.Wet))
			return flag, nil
		}
	}

	at, ok := race.EventTime()
	if !ok || math.IsNaN(circuit.Lat) || math.IsNaN(circuit.Lng) {
		return model.Unknown, nil
	}
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	if !hasTime(race) {
		at = day.Add(h.start)
	}
	if at.After(h.clock.Now().UTC()) {
		return model.Unknown, nil
	}

	resp, err := h.client.DailyArchive(ctx, circuit.Lat, circuit.Lng, day)
	if err != nil {
		return model.Unknown, eris.Wrapf(err, "weather: daily archive for race %d", race.RaceID)
	}
	flag := h.classify(resp)
	log.Info("weather history fetched", zap.Bool("known", flag.Known), zap.Bool("wet", flag.Wet))

	if h.cache != nil {
		if err := h.cache.PutWet(ctx, key, flag); err != nil {
			log.Warn("weather cache write failed", zap.Error(err))
		}
	}
	return flag, nil
}

func hasTime(race model.Race) bool {
	t := strings.TrimSpace(race.Time)
	return t != "" && t != `\N`
}

func (h *History) classify(resp *openmeteo.Response) model.WetFlag {
	if resp == nil || resp.Daily == nil || len(resp.Daily.PrecipitationSum) == 0 || resp.Daily.PrecipitationSum[0] == nil {
		return model.Unknown
	}
	if *resp.Daily.PrecipitationSum[0] >= h.threshold {
		return model.Wet
	}
	return model.Dry
}
