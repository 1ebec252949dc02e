package features

import (
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// IncidentKeywords mark a result status as a safety-car-worthy incident.
var IncidentKeywords = []string{"accident", "collision", "crash", "spin", "spun", "contact", "damage", "debris"}

var dnfPositionText = map[string]bool{"R": true, "D": true, "E": true, "F": true, "W": true, "DNF": true}

// History is the season context used by the rolling DNF and safety-car
// metrics. Status is nil when status.csv is missing; UseStatus is false when
// results carry no statusId column.
type History struct {
	Races     []model.Race
	Results   []model.Result
	Status    map[int]model.Status
	UseStatus bool
}

func (h History) statusLookup() bool {
	return h.Status != nil && h.UseStatus
}

// DNF reports whether r did not finish. With a status table a result is
// finished when its status mentions "finished" or "lap"; without one the
// position text heuristic applies.
func (h History) DNF(r model.Result) bool {
	if h.statusLookup() {
		s, ok := h.Status[r.StatusID]
		if !ok {
			return true
		}
		text := strings.ToLower(s.Status)
		return !strings.Contains(text, "finished") && !strings.Contains(text, "lap")
	}
	return dnfPositionText[strings.ToUpper(strings.TrimSpace(r.PositionText))]
}

// Incident reports whether r's status names an on-track incident. Without a
// status table the DNF flag stands in.
func (h History) Incident(r model.Result) bool {
	if !h.statusLookup() {
		return h.DNF(r)
	}
	s, ok := h.Status[r.StatusID]
	if !ok {
		return false
	}
	text := strings.ToLower(s.Status)
	return lo.ContainsBy(IncidentKeywords, func(kw string) bool { return strings.Contains(text, kw) })
}

type seasonResult struct {
	model.Result
	round int
}

// window returns the results of the target race's season up to and
// including its round. ok is false when raceID is unknown.
func (h History) window(raceID int) ([]seasonResult, bool) {
	target, ok := lo.Find(h.Races, func(r model.Race) bool { return r.RaceID == raceID })
	if !ok {
		return nil, false
	}
	rounds := make(map[int]model.Race, len(h.Races))
	for _, r := range h.Races {
		rounds[r.RaceID] = r
	}

	var out []seasonResult
	for _, res := range h.Results {
		race, ok := rounds[res.RaceID]
		if !ok || race.Year != target.Year || race.Round > target.Round {
			continue
		}
		out = append(out, seasonResult{Result: res, round: race.Round})
	}
	return out, true
}

// DNFRate returns, per driver, the share of non-finishes over the driver's
// most recent `window` races of the target season up to the target round.
func DNFRate(h History, raceID, window int) Values {
	results, ok := h.window(raceID)
	if !ok {
		return Values{}
	}
	n := max(1, window)

	out := Values{}
	for driverID, rows := range lo.GroupBy(results, func(r seasonResult) int { return r.DriverID }) {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].round > rows[j].round })
		recent := rows[:min(n, len(rows))]
		out[driverID] = lo.MeanBy(recent, func(r seasonResult) float64 {
			if h.DNF(r.Result) {
				return 1
			}
			return 0
		})
	}
	return out
}

// SafetyCarProbability is the share of the season's most recent `window`
// races up to the target round with at least one incident. NaN when the race
// is unknown or has no history.
func SafetyCarProbability(h History, raceID, window int) float64 {
	results, ok := h.window(raceID)
	if !ok || len(results) == 0 {
		return math.NaN()
	}

	type raceFlag struct {
		round    int
		incident bool
	}
	byRace := map[int]*raceFlag{}
	for _, r := range results {
		f, ok := byRace[r.RaceID]
		if !ok {
			f = &raceFlag{round: r.round}
			byRace[r.RaceID] = f
		}
		f.incident = f.incident || h.Incident(r.Result)
	}

	flags := lo.Values(byRace)
	sort.SliceStable(flags, func(i, j int) bool { return flags[i].round > flags[j].round })
	recent := flags[:min(max(1, window), len(flags))]
	return lo.MeanBy(recent, func(f *raceFlag) float64 {
		if f.incident {
			return 1
		}
		return 0
	})
}
