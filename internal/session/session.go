// Package session extracts per-driver metrics for one timed session from the
// OpenF1 live timing API.
package session

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/f1-etl/internal/features"
	"github.com/sells-group/f1-etl/internal/model"
	"github.com/sells-group/f1-etl/internal/resilience"
	"github.com/sells-group/f1-etl/pkg/ergast"
	"github.com/sells-group/f1-etl/pkg/openf1"
)

// Load retry policy.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 3 * time.Second
)

// Pace outside this range (seconds) is logged as implausible.
const (
	minPlausiblePace = 60.0
	maxPlausiblePace = 200.0
)

// Options selects the session. Event wins over Round when both resolve.
type Options struct {
	Season  int
	Event   string
	Round   int
	Session string
}

// Data is a loaded session.
type Data struct {
	Session openf1.Session
	Round   int
	Drivers []openf1.Driver
	Laps    []openf1.Lap
	Pits    []openf1.PitStop
}

// Extractor builds SessionDriver rows.
type Extractor struct {
	api   openf1.Client
	grid  ergast.Client
	retry resilience.RetryConfig
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRetry replaces the load retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Extractor) {
		e.retry = cfg
	}
}

// New creates an Extractor. grid may be nil, in which case every grid
// position is 0.
func New(api openf1.Client, grid ergast.Client, opts ...Option) *Extractor {
	e := &Extractor{
		api:   api,
		grid:  grid,
		retry: resilience.Backoff("session load", DefaultMaxRetries, DefaultBaseDelay),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract loads the session, validates it and computes one row per driver,
// sorted by driver code.
func (e *Extractor) Extract(ctx context.Context, opts Options) ([]model.SessionDriver, error) {
	log := zap.L().With(zap.String("component", "session"))
	log.Info("starting session data extraction",
		zap.Int("season", opts.Season),
		zap.String("event", opts.Event),
		zap.Int("round", opts.Round),
		zap.String("session", opts.Session),
	)

	data, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*Data, error) {
		return e.load(ctx, opts)
	})
	if err != nil {
		return nil, eris.Wrap(err, "session: load")
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	log.Info("session loaded", zap.Int("session_key", data.Session.SessionKey), zap.Int("laps", len(data.Laps)))

	var grid map[string]int
	if e.grid != nil && data.Round > 0 {
		grid = ergast.GridPositions(ctx, e.grid, opts.Season, data.Round)
	}

	rows := Compute(data, opts.Session, grid)
	if len(rows) == 0 {
		return nil, eris.New("No driver data generated")
	}

	paces := lo.FilterMap(rows, func(r model.SessionDriver, _ int) (float64, bool) {
		return r.FPLongRunPaceS, !math.IsNaN(r.FPLongRunPaceS)
	})
	if len(paces) > 0 {
		lowest, highest := lo.Min(paces), lo.Max(paces)
		if lowest < minPlausiblePace || highest > maxPlausiblePace {
			log.Warn("unusual lap times detected", zap.Float64("min_s", lowest), zap.Float64("max_s", highest))
		}
	}
	log.Info("session drivers processed", zap.Int("drivers", len(rows)))
	return rows, nil
}

func (e *Extractor) load(ctx context.Context, opts Options) (*Data, error) {
	s, round, err := e.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	laps, err := e.api.Laps(ctx, s.SessionKey)
	if err != nil {
		return nil, err
	}
	drivers, err := e.api.Drivers(ctx, s.SessionKey)
	if err != nil {
		return nil, err
	}
	pits, err := e.api.PitStops(ctx, s.SessionKey)
	if err != nil {
		zap.L().Warn("pit data unavailable", zap.String("component", "session"), zap.Error(err))
		pits = nil
	}
	return &Data{Session: s, Round: round, Drivers: drivers, Laps: laps, Pits: pits}, nil
}

// resolve finds the session by event name, then by round.
func (e *Extractor) resolve(ctx context.Context, opts Options) (openf1.Session, int, error) {
	meetings, err := e.api.Meetings(ctx, opts.Season)
	if err != nil {
		return openf1.Session{}, 0, err
	}
	meetings = lo.Filter(meetings, func(m openf1.Meeting, _ int) bool {
		return !strings.Contains(strings.ToLower(m.MeetingName), "testing")
	})
	sort.SliceStable(meetings, func(i, j int) bool { return meetings[i].DateStart < meetings[j].DateStart })

	idx := -1
	if key := features.NameKey(opts.Event); key != "" {
		_, idx, _ = lo.FindIndexOf(meetings, func(m openf1.Meeting) bool {
			return lo.ContainsBy([]string{m.CountryName, m.Location, m.CircuitShortName, m.MeetingName}, func(s string) bool {
				return strings.Contains(features.NameKey(s), key)
			})
		})
	}
	if idx < 0 && opts.Round > 0 && opts.Round <= len(meetings) {
		idx = opts.Round - 1
	}
	if idx < 0 {
		return openf1.Session{}, 0, resilience.Permanent(eris.Errorf(
			"Could not resolve session by event %q or round %d in %d", opts.Event, opts.Round, opts.Season))
	}

	name := openf1.SessionName(opts.Session)
	sessions, err := e.api.Sessions(ctx, openf1.SessionQuery{MeetingKey: meetings[idx].MeetingKey, SessionName: name})
	if err != nil {
		return openf1.Session{}, 0, err
	}
	if len(sessions) == 0 {
		return openf1.Session{}, 0, eris.Errorf("session %q not found for %s", name, meetings[idx].MeetingName)
	}
	return sessions[0], idx + 1, nil
}

// Validate rejects sessions without laps or drivers.
func Validate(d *Data) error {
	if d == nil {
		return eris.New("no session loaded")
	}
	if len(d.Laps) == 0 {
		return eris.New("No lap data available")
	}
	numbered := lo.Filter(d.Laps, func(l openf1.Lap, _ int) bool { return l.DriverNumber > 0 })
	if len(numbered) == 0 {
		return eris.New("No drivers found in lap data")
	}
	return nil
}

type driverLaps struct {
	number int
	code   string
	info   openf1.Driver
	laps   []openf1.Lap
}

// Compute derives the per-driver rows from a loaded session. sessionName is
// the requested session; qualifying gaps are only filled for sessions whose
// name starts with "q". grid maps driver codes to grid positions.
func Compute(d *Data, sessionName string, grid map[string]int) []model.SessionDriver {
	info := lo.KeyBy(d.Drivers, func(dr openf1.Driver) int { return dr.DriverNumber })

	var drivers []*driverLaps
	for number, laps := range lo.GroupBy(d.Laps, func(l openf1.Lap) int { return l.DriverNumber }) {
		dl := &driverLaps{number: number, info: info[number], laps: laps}
		dl.code = strings.ToUpper(strings.TrimSpace(dl.info.NameAcronym))
		if dl.code == "" {
			dl.code = strconv.Itoa(number)
		}
		drivers = append(drivers, dl)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].code < drivers[j].code })

	best := make([]float64, len(drivers))
	speed := make([]float64, len(drivers))
	for i, dl := range drivers {
		best[i] = bestLap(dl.laps)
		speed[i] = topSpeed(dl.laps)
	}
	speedZ := features.ZScores(speed)
	bestZ := features.ZScores(best)

	qualifying := strings.HasPrefix(strings.ToLower(strings.TrimSpace(sessionName)), "q")
	pole := math.NaN()
	if qualifying {
		if present := lo.Filter(best, func(v float64, _ int) bool { return !math.IsNaN(v) }); len(present) > 0 {
			pole = lo.Min(present)
		}
	}

	pits := pitMeans(d.Pits)
	title := cases.Title(language.Und)

	rows := make([]model.SessionDriver, 0, len(drivers))
	for i, dl := range drivers {
		name := strings.TrimSpace(dl.info.FullName)
		if name == "" {
			name = dl.code
		} else {
			name = title.String(name)
		}
		team := strings.TrimSpace(dl.info.TeamName)

		row := model.SessionDriver{
			DriverID:          strings.ToLower(dl.code),
			DriverName:        name,
			TeamID:            strings.ReplaceAll(strings.ToLower(team), " ", "_"),
			TeamName:          team,
			GridPosition:      grid[dl.code],
			QualyGapMS:        math.NaN(),
			FPLongRunPaceS:    longRunPace(dl.laps),
			StraightlineIndex: speedZ[i],
			CorneringIndex:    negate(bestZ[i]),
			PitCrewMeanS:      pits.Get(dl.number),
			DNFRate:           math.NaN(),
		}
		if !math.IsNaN(pole) && !math.IsNaN(best[i]) {
			row.QualyGapMS = math.Round(1000 * (best[i] - pole))
		}
		rows = append(rows, row)
	}
	return rows
}

// negate flips the sign without producing a negative zero.
func negate(v float64) float64 {
	if v == 0 {
		return 0
	}
	return -v
}

func lapSeconds(laps []openf1.Lap) []float64 {
	return lo.FilterMap(laps, func(l openf1.Lap, _ int) (float64, bool) {
		if l.LapDuration == nil {
			return 0, false
		}
		return *l.LapDuration, true
	})
}

func bestLap(laps []openf1.Lap) float64 {
	s := lapSeconds(laps)
	if len(s) == 0 {
		return math.NaN()
	}
	return lo.Min(s)
}

// longRunPace drops pit-out laps before trimming.
func longRunPace(laps []openf1.Lap) float64 {
	clean := lo.Reject(laps, func(l openf1.Lap, _ int) bool { return l.IsPitOutLap })
	return features.TrimmedLongRun(lapSeconds(clean))
}

// topSpeed is the highest speed-trap or intermediate reading.
func topSpeed(laps []openf1.Lap) float64 {
	top := math.NaN()
	for _, l := range laps {
		for _, v := range []*float64{l.STSpeed, l.I1Speed, l.I2Speed} {
			if v != nil && (math.IsNaN(top) || *v > top) {
				top = *v
			}
		}
	}
	return top
}

func pitMeans(pits []openf1.PitStop) features.Values {
	out := features.Values{}
	for number, stops := range lo.GroupBy(pits, func(p openf1.PitStop) int { return p.DriverNumber }) {
		secs := lo.FilterMap(stops, func(p openf1.PitStop, _ int) (float64, bool) {
			if p.PitDuration == nil {
				return 0, false
			}
			return *p.PitDuration, true
		})
		if len(secs) > 0 {
			out[number] = features.Round(lo.Mean(secs), 3)
		}
	}
	return out
}
