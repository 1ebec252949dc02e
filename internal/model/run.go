package model

import "time"

// RunStatus represents the outcome of a recorded command run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one entry of the run log.
type Run struct {
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	Status     RunStatus      `json:"status"`
	Outputs    []string       `json:"outputs,omitempty"`
	RowCounts  map[string]int `json:"row_counts,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Command string
	Status  RunStatus
	Limit   int
}

// WetFlag is a cached daily weather lookup: wet, dry or unknown.
type WetFlag struct {
	Known bool
	Wet   bool
}

// Wet and Dry are the two known WetFlag values.
var (
	Wet     = WetFlag{Known: true, Wet: true}
	Dry     = WetFlag{Known: true}
	Unknown = WetFlag{}
)

// Probability maps the flag to 1, 0 or NaN.
func (w WetFlag) Probability() float64 {
	switch {
	case !w.Known:
		return NA()
	case w.Wet:
		return 1
	default:
		return 0
	}
}
