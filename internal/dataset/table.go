// Package dataset loads the historical Formula 1 CSV dump and the optional
// scraper outputs that enrich it.
package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Table is a raw CSV table: a header and string rows.
type Table struct {
	Name   string
	Path   string
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a Table and indexes its header.
func NewTable(name string, header []string, rows [][]string) *Table {
	t := &Table{Name: name, Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, col := range header {
		if _, dup := t.index[col]; !dup {
			t.index[col] = i
		}
	}
	return t
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Has reports whether the header contains col.
func (t *Table) Has(col string) bool {
	if t == nil {
		return false
	}
	_, ok := t.index[col]
	return ok
}

// Col returns the index of col, or -1.
func (t *Table) Col(col string) int {
	if i, ok := t.index[col]; ok {
		return i
	}
	return -1
}

// Cell returns row[idx] or "" when idx is out of range.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Get returns the value of col in row.
func (t *Table) Get(row []string, col string) string {
	return Cell(row, t.Col(col))
}

// IsNull reports whether a raw cell means "no value" in the dump.
func IsNull(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == `\N` || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null")
}

// ParseFloat parses s as a float, returning NaN for null or malformed values.
func ParseFloat(s string) float64 {
	if IsNull(s) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseIntOr parses s as an integer, returning def if parsing fails.
func parseIntOr(s string, def int) int {
	if IsNull(s) {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil || math.IsNaN(f) || f != math.Trunc(f) {
			return def
		}
		return int(f)
	}
	return v
}

// IsNumeric reports whether every non-null value of column idx parses as a
// number. A column with no values counts as numeric.
func (t *Table) IsNumeric(idx int) bool {
	if idx < 0 || idx >= len(t.Header) {
		return false
	}
	for _, row := range t.Rows {
		v := Cell(row, idx)
		if IsNull(v) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return false
		}
	}
	return true
}

// FindColumn returns the index of the first column whose lowercased name
// contains any of keywords, or -1.
func (t *Table) FindColumn(keywords ...string) int {
	for i, col := range t.Header {
		lowered := strings.ToLower(col)
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				return i
			}
		}
	}
	return -1
}

// FirstNumericColumn returns the first numeric column not listed in skip, or -1.
func (t *Table) FirstNumericColumn(skip ...int) int {
	for i := range t.Header {
		skipped := false
		for _, s := range skip {
			if s == i {
				skipped = true
				break
			}
		}
		if !skipped && t.IsNumeric(i) {
			return i
		}
	}
	return -1
}
