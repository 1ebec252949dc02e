package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

// Summary describes the files produced by one run.
type Summary struct {
	RunID       string         `json:"run_id,omitempty"`
	Command     string         `json:"command"`
	Race        string         `json:"race,omitempty"`
	Outputs     []string       `json:"outputs"`
	RowCounts   map[string]int `json:"row_counts"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Add records an output file and its row count.
func (s *Summary) Add(path string, rows int) {
	if s.RowCounts == nil {
		s.RowCounts = map[string]int{}
	}
	s.Outputs = append(s.Outputs, path)
	s.RowCounts[filepath.Base(path)] = rows
}

// WriteSummary writes s as indented JSON to path.
func WriteSummary(path string, s Summary) error {
	if s.Outputs == nil {
		s.Outputs = []string{}
	}
	if s.RowCounts == nil {
		s.RowCounts = map[string]int{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal summary")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// XLSXPath returns csvPath with its extension replaced by .xlsx.
func XLSXPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".xlsx"
}

// WriteXLSXTwin writes the same table as a workbook next to csvPath and
// returns the workbook path.
func WriteXLSXTwin(csvPath string, header []string, rows [][]string) (string, error) {
	path := XLSXPath(csvPath)
	if err := fetcher.WriteXLSX(path, "data", header, rows); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}
