package weather

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/config"
	"github.com/sells-group/f1-etl/internal/model"
	"github.com/sells-group/f1-etl/internal/store"
)

// Cache stores wet-race lookups by key. store.Store satisfies it.
type Cache interface {
	GetWet(ctx context.Context, key string) (flag model.WetFlag, ok bool, err error)
	PutWet(ctx context.Context, key string, flag model.WetFlag) error
}

// Cache drivers accepted by weather.cache_driver.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverStore  = "store"
)

// OpenCache builds the configured cache. DriverStore reuses shared, the run
// log store. The returned close func releases what OpenCache opened.
func OpenCache(ctx context.Context, cfg config.WeatherConfig, shared store.Store) (Cache, func() error, error) {
	noop := func() error { return nil }
	switch cfg.CacheDriver {
	case DriverJSON:
		return NewJSONCache(cfg.CachePath), noop, nil
	case "", DriverSQLite:
		s, err := store.NewSQLite(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case DriverStore:
		if shared == nil {
			return nil, nil, eris.New("weather: cache driver \"store\" needs an open store")
		}
		return shared, noop, nil
	default:
		return nil, nil, eris.Errorf("weather: unknown cache driver %q", cfg.CacheDriver)
	}
}

// JSONCache is a single JSON object file mapping key to true, false or
// null. Every Put rewrites the whole file.
type JSONCache struct {
	path string
	mu   sync.Mutex
}

// NewJSONCache returns a cache backed by path. The file is created on the
// first Put.
func NewJSONCache(path string) *JSONCache {
	return &JSONCache{path: path}
}

func (c *JSONCache) load() (map[string]*bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*bool{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "weather: read cache %s", c.path)
	}
	entries := map[string]*bool{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "weather: parse cache %s", c.path)
	}
	return entries, nil
}

func (c *JSONCache) GetWet(_ context.Context, key string) (model.WetFlag, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return model.Unknown, false, err
	}
	v, ok := entries[key]
	if !ok || v == nil {
		return model.Unknown, ok, nil
	}
	return model.WetFlag{Known: true, Wet: *v}, true, nil
}

func (c *JSONCache) PutWet(_ context.Context, key string, flag model.WetFlag) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	var v *bool
	if flag.Known {
		wet := flag.Wet
		v = &wet
	}
	entries[key] = v

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "weather: encode cache")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return eris.Wrapf(err, "weather: create dir for %s", c.path)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "weather: write cache %s", tmp)
	}
	return eris.Wrapf(os.Rename(tmp, c.path), "weather: replace cache %s", c.path)
}
