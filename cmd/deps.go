package main

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/config"
	"github.com/sells-group/f1-etl/internal/features"
	"github.com/sells-group/f1-etl/internal/fetcher"
	"github.com/sells-group/f1-etl/internal/model"
	"github.com/sells-group/f1-etl/internal/observability"
	"github.com/sells-group/f1-etl/internal/store"
	"github.com/sells-group/f1-etl/pkg/ergast"
	"github.com/sells-group/f1-etl/pkg/openf1"
	"github.com/sells-group/f1-etl/pkg/openmeteo"
)

// snapshotLookbackHours is the window of the run-log gauges written with
// every textfile.
const snapshotLookbackHours = 24

// newHTTPFetcher builds the single HTTP client every API client shares.
func newHTTPFetcher(c config.HTTPConfig, ergastRate float64) (*fetcher.HTTPFetcher, error) {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.UserAgent,
		Timeout:      time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries:   c.MaxRetries,
		BaseBackoff:  time.Duration(c.BaseBackoffSecs) * time.Second,
		Insecure:     c.Insecure,
		CABundle:     c.CABundle,
		Proxy:        c.Proxy,
		RateLimiters: fetcher.DefaultRateLimiters(),
		Adaptive:     fetcher.DefaultAdaptiveLimiters(ergastRate),
	})
}

type apiClients struct {
	http      *fetcher.HTTPFetcher
	ergast    ergast.Client
	openf1    openf1.Client
	openmeteo openmeteo.Client
}

func initClients(c *config.Config) (*apiClients, error) {
	if c.HTTP.Insecure {
		zap.L().Warn("TLS certificate verification disabled")
	}
	f, err := newHTTPFetcher(c.HTTP, c.Ergast.RateLimit)
	if err != nil {
		return nil, eris.Wrap(err, "init http client")
	}
	return &apiClients{
		http:   f,
		ergast: ergast.NewClient(f, ergast.WithBaseURL(c.Ergast.BaseURL)),
		openf1: openf1.NewClient(f, openf1.WithBaseURL(c.OpenF1.BaseURL)),
		openmeteo: openmeteo.NewClient(f,
			openmeteo.WithForecastURL(c.Weather.ForecastURL),
			openmeteo.WithArchiveURL(c.Weather.ArchiveURL),
		),
	}, nil
}

// scraperColumns converts the configured explicit mappings.
func scraperColumns(c config.ScraperConfig) map[string]features.Columns {
	out := make(map[string]features.Columns, len(c.Columns))
	for table, m := range c.Columns {
		out[table] = features.Columns{Key: m.Key, Value: m.Value}
	}
	return out
}

// runLog records one command invocation in the store and the metrics
// textfile. A store that cannot be opened disables the run log without
// failing the command.
type runLog struct {
	store store.Store
	run   *model.Run
}

func startRun(ctx context.Context, command string) *runLog {
	log := zap.L().With(zap.String("component", "runlog"))
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Warn("run log disabled", zap.Error(err))
		return &runLog{}
	}
	run, err := st.CreateRun(ctx, command)
	if err != nil {
		log.Warn("run log disabled", zap.Error(err))
		_ = st.Close()
		return &runLog{}
	}
	return &runLog{store: st, run: run}
}

// finish records the outcome and closes the store. runErr is returned
// unchanged.
func (r *runLog) finish(ctx context.Context, outputs []string, counts map[string]int, runErr error) error {
	log := zap.L().With(zap.String("component", "runlog"))
	if r.run == nil {
		return runErr
	}
	defer r.store.Close() //nolint:errcheck

	r.run.Outputs = outputs
	r.run.RowCounts = counts
	r.run.Status = model.RunStatusComplete
	if runErr != nil {
		r.run.Status = model.RunStatusFailed
		r.run.Error = runErr.Error()
	}
	if err := r.store.FinishRun(ctx, r.run); err != nil {
		log.Warn("could not record run", zap.Error(err))
		return runErr
	}

	if cfg.Metrics.Textfile != "" {
		m := observability.NewMetrics()
		m.ObserveRun(r.run)
		snap, err := observability.NewCollector(r.store, clockwork.NewRealClock()).Collect(ctx, snapshotLookbackHours)
		if err != nil {
			log.Warn("could not collect run snapshot", zap.Error(err))
		} else {
			m.ObserveSnapshot(snap)
		}
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("could not write metrics textfile", zap.Error(err))
		}
	}
	return runErr
}

func (r *runLog) id() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID
}
