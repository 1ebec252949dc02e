package observability

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/samber/lo"

	"github.com/sells-group/f1-etl/internal/model"
)

// RunLister is the run-log query the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Snapshot summarises the run log over a lookback window.
type Snapshot struct {
	Total         int       `json:"total"`
	Complete      int       `json:"complete"`
	Failed        int       `json:"failed"`
	Running       int       `json:"running"`
	FailRate      float64   `json:"fail_rate"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers snapshots from the run log.
type Collector struct {
	runs  RunLister
	clock clockwork.Clock
}

// NewCollector creates a collector. clock may be nil.
func NewCollector(runs RunLister, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock}
}

const collectLimit = 10000

// Collect summarises runs started within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.clock.Now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, model.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "observability: list runs")
	}
	runs = lo.Filter(runs, func(r model.Run, _ int) bool { return !r.StartedAt.Before(cutoff) })

	snap.Total = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		}
	}
	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
