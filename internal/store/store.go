// Package store persists the run log and the wet-race weather cache.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/config"
	"github.com/sells-group/f1-etl/internal/model"
)

// Store is the persistence interface shared by the SQLite and Postgres
// backends.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, command string) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Weather cache. ok is false when key was never stored.
	GetWet(ctx context.Context, key string) (flag model.WetFlag, ok bool, err error)
	PutWet(ctx context.Context, key string, flag model.WetFlag) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires store.database_url")
		}
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
