package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/f1-etl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at path, creating its directory, and
// configures WAL mode.
func NewSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir for %s", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	outputs     TEXT,
	row_counts  TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS weather_cache (
	cache_key  TEXT PRIMARY KEY,
	wet        INTEGER,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, command string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Command:   command,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Command, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	outputs, counts, err := marshalResult(run)
	if err != nil {
		return err
	}
	finished := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outputs = ?, row_counts = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(outputs), string(counts), run.Error, finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}
	run.FinishedAt = &finished
	return nil
}

const runColumns = `id, command, status, outputs, row_counts, error, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Command != "" {
		query += ` AND command = ?`
		args = append(args, filter.Command)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetWet(ctx context.Context, key string) (model.WetFlag, bool, error) {
	var wet sql.NullBool
	err := s.db.QueryRowContext(ctx, `SELECT wet FROM weather_cache WHERE cache_key = ?`, key).Scan(&wet)
	if err == sql.ErrNoRows {
		return model.Unknown, false, nil
	}
	if err != nil {
		return model.Unknown, false, eris.Wrapf(err, "sqlite: get weather %s", key)
	}
	return model.WetFlag{Known: wet.Valid, Wet: wet.Bool}, true, nil
}

func (s *SQLiteStore) PutWet(ctx context.Context, key string, flag model.WetFlag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_cache (cache_key, wet, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET wet = excluded.wet, updated_at = excluded.updated_at`,
		key, wetValue(flag), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put weather %s", key)
}

// helpers

func wetValue(flag model.WetFlag) any {
	if !flag.Known {
		return nil
	}
	return flag.Wet
}

func marshalResult(run *model.Run) (outputs, counts []byte, err error) {
	if outputs, err = json.Marshal(run.Outputs); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal outputs")
	}
	if counts, err = json.Marshal(run.RowCounts); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal row counts")
	}
	return outputs, counts, nil
}

func unmarshalResult(run *model.Run, outputs, counts []byte) error {
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &run.Outputs); err != nil {
			return eris.Wrap(err, "store: unmarshal outputs")
		}
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &run.RowCounts); err != nil {
			return eris.Wrap(err, "store: unmarshal row counts")
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var outputs, counts sql.NullString
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Command, &r.Status, &outputs, &counts, &r.Error, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if err := unmarshalResult(&r, []byte(outputs.String), []byte(counts.String)); err != nil {
		return nil, err
	}
	return &r, nil
}
