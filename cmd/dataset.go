package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/f1-etl/internal/dataset"
	"github.com/sells-group/f1-etl/internal/fetcher"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage the historical CSV dataset",
}

var datasetFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the historical CSV archive",
	Long:  "Downloads a zipped CSV dump over HTTP(S) or FTP and extracts it into the dataset directory. HTTP downloads are skipped when the stored ETag is current.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		url, _ := f.GetString("url")
		if url == "" {
			url = cfg.Datasets.ArchiveURL
		}
		if url == "" {
			return eris.New("no archive url: pass --url or set datasets.archive_url")
		}
		dir, _ := f.GetString("dir")
		if dir == "" {
			dir = cfg.Datasets.Dir
		}
		force, _ := f.GetBool("force")

		httpFetcher, err := newHTTPFetcher(cfg.HTTP, cfg.Ergast.RateLimit)
		if err != nil {
			return eris.Wrap(err, "init http client")
		}
		ftp := fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout: time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		})

		res, err := dataset.FetchArchive(ctx, dataset.FetchOptions{
			URL:   url,
			Dir:   dir,
			HTTP:  httpFetcher,
			FTP:   ftp,
			Force: force,
		})
		if err != nil {
			return err
		}
		if !res.Changed {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "dataset is up to date")
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "extracted %d files to %s\n", res.Files, res.TablesDir)
		return nil
	},
}

func init() {
	f := datasetFetchCmd.Flags()
	f.String("url", "", "archive URL, http(s):// or ftp:// (default from datasets.archive_url)")
	f.String("dir", "", "extraction directory (default from datasets.dir)")
	f.Bool("force", false, "download even when the stored ETag is current")
	datasetCmd.AddCommand(datasetFetchCmd)
	rootCmd.AddCommand(datasetCmd)
}
