package main

import (
	"context"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/db"
	"github.com/sells-group/f1-etl/internal/export"
	"github.com/sells-group/f1-etl/internal/model"
	"github.com/sells-group/f1-etl/internal/pipeline"
	"github.com/sells-group/f1-etl/internal/store"
	"github.com/sells-group/f1-etl/internal/weather"
)

type buildOptions struct {
	Datasets      string
	ScraperDir    string
	OutDir        string
	OutFile       string
	Year          int
	Round         int
	Race          string
	HistoryWindow int
	XLSX          bool
	Load          bool

	clock clockwork.Clock
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the per-driver metrics CSV for one race",
	Long:  "Loads the historical CSV tables and optional scraper outputs, selects the target race (latest matching --year/--round/--race) and writes the new-schema driver metrics table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		o := buildOptionsFromFlags(cmd)

		rl := startRun(ctx, "build")
		summary, err := runBuild(ctx, o, rl)
		var outputs []string
		var counts map[string]int
		if summary != nil {
			outputs, counts = summary.Outputs, summary.RowCounts
		}
		return rl.finish(ctx, outputs, counts, err)
	},
}

func buildOptionsFromFlags(cmd *cobra.Command) buildOptions {
	f := cmd.Flags()
	o := buildOptions{
		Datasets:      cfg.Datasets.Dir,
		ScraperDir:    cfg.Scraper.Dir,
		OutDir:        cfg.Output.Dir,
		HistoryWindow: cfg.Datasets.HistoryWindow,
		XLSX:          cfg.Output.XLSX,
	}
	if f.Changed("datasets") {
		o.Datasets, _ = f.GetString("datasets")
	}
	if f.Changed("scraper-output") {
		o.ScraperDir, _ = f.GetString("scraper-output")
	}
	if f.Changed("out") {
		o.OutDir, _ = f.GetString("out")
	}
	if f.Changed("history-window") {
		o.HistoryWindow, _ = f.GetInt("history-window")
	}
	if f.Changed("xlsx") {
		o.XLSX, _ = f.GetBool("xlsx")
	}
	o.OutFile, _ = f.GetString("out-file")
	o.Year, _ = f.GetInt("year")
	o.Round, _ = f.GetInt("round")
	o.Race, _ = f.GetString("race")
	o.Load, _ = f.GetBool("load")
	return o
}

// poolProvider is implemented by stores backed by Postgres.
type poolProvider interface {
	Pool() db.Pool
}

func runBuild(ctx context.Context, o buildOptions, rl *runLog) (*export.Summary, error) {
	log := zap.L().With(zap.String("component", "build"))

	core, err := dataset.LoadCore(ctx, o.Datasets)
	if err != nil {
		return nil, err
	}
	scraper, err := dataset.LoadScraper(ctx, o.ScraperDir)
	if err != nil {
		return nil, err
	}

	var wet pipeline.WetLookup
	if cfg.Weather.History {
		history, closeCache, err := openHistory(ctx, rl.store)
		if err != nil {
			return nil, err
		}
		defer closeCache() //nolint:errcheck
		wet = history
	}

	res, err := pipeline.New(wet).Run(ctx, core, scraper, pipeline.Options{
		Filter:        pipeline.RaceFilter{Year: o.Year, Round: o.Round, Name: o.Race},
		HistoryWindow: o.HistoryWindow,
		Columns:       scraperColumns(cfg.Scraper),
	})
	if err != nil {
		return nil, err
	}

	clock := o.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	summary := &export.Summary{
		RunID:       rl.id(),
		Command:     "build",
		Race:        res.Race.Name,
		GeneratedAt: clock.Now().UTC(),
	}

	path := export.OutputPath(o.OutDir, o.OutFile, res.Race.Year, res.Race.Name)
	if err := export.WriteDriverMetrics(path, res.Rows); err != nil {
		return summary, err
	}
	summary.Add(path, len(res.Rows))
	log.Info("saved dataset", zap.String("path", path), zap.Int("rows", len(res.Rows)))

	if o.XLSX {
		xlsxPath, err := export.WriteXLSXTwin(path, model.DriverMetricsColumns, export.Records(res.Rows))
		if err != nil {
			return summary, err
		}
		summary.Add(xlsxPath, len(res.Rows))
	}

	if o.Load {
		if err := loadDriverMetrics(ctx, rl, res); err != nil {
			return summary, err
		}
	}

	summaryPath := filepath.Join(o.OutDir, cfg.Output.SummaryFile)
	if err := export.WriteSummary(summaryPath, *summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func openHistory(ctx context.Context, shared store.Store) (*weather.History, func() error, error) {
	clients, err := initClients(cfg)
	if err != nil {
		return nil, nil, err
	}
	cache, closeCache, err := weather.OpenCache(ctx, cfg.Weather, shared)
	if err != nil {
		return nil, nil, err
	}
	return weather.NewHistory(clients.openmeteo, cache,
		weather.WithThreshold(cfg.Weather.WetThresholdMM),
		weather.WithDefaultStart(cfg.Weather.DefaultStartUTC),
	), closeCache, nil
}

func loadDriverMetrics(ctx context.Context, rl *runLog, res *pipeline.Result) error {
	pp, ok := rl.store.(poolProvider)
	if !ok {
		return eris.New("build --load requires store.driver postgres")
	}
	if err := db.MigrateDriverMetrics(ctx, pp.Pool()); err != nil {
		return err
	}
	n, err := db.UpsertDriverMetrics(ctx, pp.Pool(), res.Race.RaceID, rl.id(), res.Rows)
	if err != nil {
		return err
	}
	zap.L().Info("loaded driver metrics",
		zap.String("table", db.DriverMetricsTable),
		zap.Int("race_id", res.Race.RaceID),
		zap.Int64("rows", n),
	)
	return nil
}

func init() {
	f := buildCmd.Flags()
	f.String("datasets", "", "path to the core datasets directory (default from datasets.dir)")
	f.String("scraper-output", "", "directory containing optional scraper metrics")
	f.String("out", "", "directory where the generated CSV is stored (default from output.dir)")
	f.String("out-file", "", "filename for the generated CSV (default <year>_<race>.csv)")
	f.Int("year", 0, "limit to a specific year")
	f.Int("round", 0, "limit to a specific round within the selected year")
	f.String("race", "", "filter races by (partial) name; latest race when omitted")
	f.Int("history-window", 5, "number of recent races used for rolling statistics")
	f.Bool("xlsx", false, "also write an XLSX copy of the output")
	f.Bool("load", false, "upsert the rows into Postgres (store.driver postgres)")
	rootCmd.AddCommand(buildCmd)
}
