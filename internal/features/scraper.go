package features

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/dataset"
)

// Keyword sets used to discover scraper columns when no explicit mapping is
// configured.
var (
	DriverKeywords    = []string{"driver", "name", "pilot"}
	RaceKeywords      = []string{"race", "grand", "event", "gp"}
	LongRunKeywords   = []string{"pace", "average", "long"}
	RainKeywords      = []string{"rain", "precip", "prob"}
	SafetyCarKeywords = []string{"safety", "sc_", "prob"}
	SpeedTrapKeywords = []string{"speed", "kph", "trap"}
)

// ApplyDriverOverride replaces values with those from a scraper table whose
// driver label matches the driver's name under NameKey. names maps driver id
// to display name. The label column is the first matching DriverKeywords and
// the value column the first matching valueKeywords, else the first numeric
// column; cols replaces either when set. The input map is not modified.
func ApplyDriverOverride(values Values, names map[int]string, t *dataset.Table, cols Columns, valueKeywords []string) Values {
	if t == nil || t.Len() == 0 {
		return values
	}
	log := zap.L().With(zap.String("component", "features.override"), zap.String("table", t.Name))

	nameCol := t.FindColumn(DriverKeywords...)
	if cols.Key != "" {
		nameCol = t.Col(cols.Key)
	}
	valueCol := -1
	if cols.Value != "" {
		valueCol = t.Col(cols.Value)
	} else if valueCol = t.FindColumn(valueKeywords...); valueCol < 0 {
		valueCol = t.FirstNumericColumn(nameCol)
	}
	if nameCol < 0 || valueCol < 0 {
		log.Warn("scraper table has no usable driver or value column", zap.Strings("header", t.Header))
		return values
	}

	lookup := map[string]float64{}
	for _, row := range t.Rows {
		v := dataset.ParseFloat(dataset.Cell(row, valueCol))
		if !finite(v) {
			continue
		}
		lookup[NameKey(dataset.Cell(row, nameCol))] = v
	}

	out := make(Values, len(values))
	for id, v := range values {
		out[id] = v
	}
	var applied int
	for driverID, name := range names {
		if v, ok := lookup[NameKey(name)]; ok {
			out[driverID] = v
			applied++
		}
	}
	log.Debug("applied scraper overrides", zap.Int("drivers", applied))
	return out
}

// ApplyLongRunOverride overrides computed long-run paces from the long-run
// scraper table.
func ApplyLongRunOverride(pace Values, names map[int]string, t *dataset.Table, cols Columns) Values {
	return ApplyDriverOverride(pace, names, t, cols, LongRunKeywords)
}

// RaceValueFromTable reads a per-race value for raceName from a scraper
// table. Rows are matched on the first column matching RaceKeywords whose
// lowercased value contains the lowercased race name; without such a
// column every row matches. The value comes from the first matching row,
// in the first column matching valueKeywords or else the first numeric
// column other than the race column. cols replaces either when set.
func RaceValueFromTable(t *dataset.Table, raceName string, cols Columns, valueKeywords []string) float64 {
	if t == nil || t.Len() == 0 {
		return math.NaN()
	}

	nameCol := t.FindColumn(RaceKeywords...)
	if cols.Key != "" {
		if nameCol = t.Col(cols.Key); nameCol < 0 {
			return math.NaN()
		}
	}

	matches := t.Rows
	name := strings.ToLower(strings.TrimSpace(raceName))
	if nameCol >= 0 && name != "" {
		matches = nil
		for _, row := range t.Rows {
			if strings.Contains(strings.ToLower(dataset.Cell(row, nameCol)), name) {
				matches = append(matches, row)
			}
		}
	}
	if len(matches) == 0 {
		return math.NaN()
	}

	valueCol := -1
	if cols.Value != "" {
		valueCol = t.Col(cols.Value)
	} else if valueCol = t.FindColumn(valueKeywords...); valueCol < 0 {
		valueCol = t.FirstNumericColumn(nameCol)
	}
	if valueCol < 0 {
		return math.NaN()
	}
	return dataset.ParseFloat(dataset.Cell(matches[0], valueCol))
}

// RainFromTable reads the rain probability for raceName from a weather
// scraper table, normalised onto [0,1].
func RainFromTable(t *dataset.Table, raceName string, cols Columns) float64 {
	return NormalizeProbability(RaceValueFromTable(t, raceName, cols, RainKeywords))
}

// SafetyCarFromTable reads a published safety-car probability for raceName,
// normalised onto [0,1].
func SafetyCarFromTable(t *dataset.Table, raceName string, cols Columns) float64 {
	return NormalizeProbability(RaceValueFromTable(t, raceName, cols, SafetyCarKeywords))
}
