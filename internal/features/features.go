// Package features derives per-driver and per-race metrics from the
// historical tables, the scraper outputs and the live timing and weather APIs.
// Every computer is a pure function; an absent map entry or a NaN value means
// the metric is unavailable.
package features

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Values maps a driver id to a metric value.
type Values map[int]float64

// Get returns the value for driverID or NaN.
func (v Values) Get(driverID int) float64 {
	if x, ok := v[driverID]; ok {
		return x
	}
	return math.NaN()
}

// Columns is an explicit scraper column mapping. Empty fields fall back to
// keyword discovery.
type Columns struct {
	Key   string
	Value string
}

// NameKey canonicalises a driver or race name for joins across providers:
// diacritics folded, non-letters dropped, lowercased. Distinct drivers
// sharing the same letters collide.
func NameKey(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseTimeMS parses "M:SS.mmm", "H:MM:SS.mmm" or "SS.mmm" into
// milliseconds. Null or malformed values yield NaN.
func ParseTimeMS(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == `\N` {
		return math.NaN()
	}
	seconds := 0.0
	for _, part := range strings.Split(s, ":") {
		v, ok := parseNumber(part)
		if !ok {
			return math.NaN()
		}
		seconds = seconds*60 + v
	}
	return seconds * 1000
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E' {
			return 0, false
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// Round rounds v half-to-even to places decimals. NaN and Inf pass through.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

// NormalizeProbability maps percentage-scale values (>1) onto [0,1] and
// clamps the result. NaN passes through.
func NormalizeProbability(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if v > 1 {
		v /= 100
	}
	return math.Max(0, math.Min(v, 1))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
