package pipeline

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/model"
)

// RaceFilter selects the target race. Zero values mean "any".
type RaceFilter struct {
	Year  int
	Round int
	Name  string
}

func (f RaceFilter) empty() bool {
	return f.Year == 0 && f.Round == 0 && strings.TrimSpace(f.Name) == ""
}

func (f RaceFilter) match(r model.Race) bool {
	if f.Year != 0 && r.Year != f.Year {
		return false
	}
	if f.Round != 0 && r.Round != f.Round {
		return false
	}
	if name := strings.ToLower(strings.TrimSpace(f.Name)); name != "" &&
		!strings.Contains(strings.ToLower(r.Name), name) {
		return false
	}
	return true
}

// SelectTargetRace returns the latest race (by start time, a missing time
// counting as midnight) among those matching f. Races whose date does not
// parse sort before every dated race.
func SelectTargetRace(races []model.Race, f RaceFilter) (model.Race, error) {
	candidates := races
	if !f.empty() {
		candidates = nil
		for _, r := range races {
			if f.match(r) {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			return model.Race{}, eris.New("No race matched the provided filters")
		}
	}
	if len(candidates) == 0 {
		return model.Race{}, eris.New("No races available in the dataset")
	}

	type dated struct {
		race model.Race
		at   int64
		ok   bool
	}
	sorted := make([]dated, len(candidates))
	for i, r := range candidates {
		at, ok := r.EventTime()
		sorted[i] = dated{race: r, at: at.Unix(), ok: ok}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ok != b.ok {
			return !a.ok
		}
		return a.at < b.at
	})
	return sorted[len(sorted)-1].race, nil
}
