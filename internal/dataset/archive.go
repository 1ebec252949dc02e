package dataset

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

const etagFile = ".etag"

// FetchOptions configures FetchArchive.
type FetchOptions struct {
	URL  string
	Dir  string
	HTTP fetcher.ConditionalFetcher
	FTP  fetcher.Fetcher
	// Force ignores a stored ETag.
	Force bool
}

// FetchResult describes a completed archive fetch.
type FetchResult struct {
	// TablesDir is the extracted directory that holds races.csv.
	TablesDir string
	Files     int
	Changed   bool
}

// FetchArchive downloads a zipped CSV dump over HTTP(S) or FTP and extracts
// it into opts.Dir. HTTP downloads are skipped when the server reports the
// stored ETag as current.
func FetchArchive(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	log := zap.L().With(zap.String("component", "dataset.fetch"), zap.String("url", opts.URL))
	if opts.URL == "" {
		return nil, eris.New("dataset: archive url is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "dataset: create dataset dir")
	}

	tmp, err := os.CreateTemp("", "f1-dataset-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath) //nolint:errcheck

	etagPath := filepath.Join(opts.Dir, etagFile)
	var newETag string

	if strings.HasPrefix(strings.ToLower(opts.URL), "ftp://") {
		if opts.FTP == nil {
			return nil, eris.New("dataset: no ftp fetcher configured")
		}
		n, err := opts.FTP.DownloadToFile(ctx, opts.URL, tmpPath)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: ftp download")
		}
		log.Info("downloaded archive", zap.Int64("bytes", n))
	} else {
		if opts.HTTP == nil {
			return nil, eris.New("dataset: no http fetcher configured")
		}
		etag := ""
		if !opts.Force {
			if b, err := os.ReadFile(etagPath); err == nil {
				etag = strings.TrimSpace(string(b))
			}
		}

		body, tag, changed, err := opts.HTTP.DownloadIfChanged(ctx, opts.URL, etag)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: http download")
		}
		if !changed {
			log.Info("archive unchanged, keeping extracted tables", zap.String("etag", etag))
			dir, err := findTablesDir(opts.Dir)
			if err != nil {
				return nil, err
			}
			return &FetchResult{TablesDir: dir}, nil
		}
		n, err := copyToFile(tmpPath, body)
		_ = body.Close()
		if err != nil {
			return nil, err
		}
		newETag = tag
		log.Info("downloaded archive", zap.Int64("bytes", n))
	}

	files, err := fetcher.ExtractZIP(tmpPath, opts.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: extract archive")
	}

	dir, err := findTablesDir(opts.Dir)
	if err != nil {
		return nil, err
	}

	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			log.Warn("could not store etag", zap.Error(err))
		}
	}

	log.Info("extracted archive", zap.Int("files", len(files)), zap.String("tables_dir", dir))
	return &FetchResult{TablesDir: dir, Files: len(files), Changed: true}, nil
}

func copyToFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: create archive file")
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(f, r)
	if err != nil {
		return n, eris.Wrap(err, "dataset: write archive file")
	}
	return n, nil
}

// findTablesDir returns the shallowest directory under root holding races.csv.
func findTablesDir(root string) (string, error) {
	best := ""
	bestDepth := -1
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != CoreFiles[TableRaces] {
			return nil
		}
		dir := filepath.Dir(path)
		depth := strings.Count(dir, string(os.PathSeparator))
		if bestDepth < 0 || depth < bestDepth {
			best, bestDepth = dir, depth
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "dataset: scan extracted archive")
	}
	if best == "" {
		return "", eris.Errorf("dataset: no %s found under %s", CoreFiles[TableRaces], root)
	}
	return best, nil
}
