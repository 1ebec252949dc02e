package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/db"
	"github.com/sells-group/f1-etl/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(4), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool for loaders that write derived tables.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	outputs     JSONB,
	row_counts  JSONB,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS weather_cache (
	cache_key  TEXT PRIMARY KEY,
	wet        BOOLEAN,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, command string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Command:   command,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, command, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Command, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	outputs, counts, err := marshalResult(run)
	if err != nil {
		return err
	}
	finished := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, outputs = $2, row_counts = $3, error = $4, finished_at = $5 WHERE id = $6`,
		string(run.Status), outputs, counts, run.Error, finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	run.FinishedAt = &finished
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Command != "" {
		args = append(args, filter.Command)
		query += fmt.Sprintf(` AND command = $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetWet(ctx context.Context, key string) (model.WetFlag, bool, error) {
	var wet *bool
	err := s.pool.QueryRow(ctx, `SELECT wet FROM weather_cache WHERE cache_key = $1`, key).Scan(&wet)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Unknown, false, nil
	}
	if err != nil {
		return model.Unknown, false, eris.Wrapf(err, "postgres: get weather %s", key)
	}
	if wet == nil {
		return model.Unknown, true, nil
	}
	return model.WetFlag{Known: true, Wet: *wet}, true, nil
}

func (s *PostgresStore) PutWet(ctx context.Context, key string, flag model.WetFlag) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO weather_cache (cache_key, wet, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET wet = EXCLUDED.wet, updated_at = EXCLUDED.updated_at`,
		key, wetValue(flag), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put weather %s", key)
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r               model.Run
		status          string
		outputs, counts []byte
	)
	if err := row.Scan(&r.ID, &r.Command, &status, &outputs, &counts, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := unmarshalResult(&r, outputs, counts); err != nil {
		return nil, err
	}
	return &r, nil
}
