// Package runlog keeps an audit trail of crawl runs in Postgres.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// Recorder records the start and end of crawl runs.
type Recorder interface {
	Start(ctx context.Context, runID string, startedAt time.Time, options []types.SearchOption) error
	Finish(ctx context.Context, report *types.CrawlReport) error
	Close()
}

// DB is the subset of a pgx pool the recorder uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS crawl_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	options     JSONB NOT NULL,
	scraped     BIGINT NOT NULL DEFAULT 0,
	inserted    INTEGER NOT NULL DEFAULT 0,
	deleted     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT
)`

const insertRunSQL = `INSERT INTO crawl_runs (id, started_at, options) VALUES ($1, $2, $3)`

const finishRunSQL = `UPDATE crawl_runs
SET finished_at = $2, scraped = $3, inserted = $4, deleted = $5, failed = $6, error = $7
WHERE id = $1`

const selectRunSQL = `SELECT started_at, finished_at, scraped, inserted, deleted, failed, COALESCE(error, '')
FROM crawl_runs WHERE id = $1`

// PostgresRecorder writes runs to the crawl_runs table.
type PostgresRecorder struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresRecorder connects to dsn and returns a recorder.
func NewPostgresRecorder(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithDB(pool, logger), nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db DB, logger *slog.Logger) *PostgresRecorder {
	return &PostgresRecorder{
		db:     db,
		logger: logger.With("component", "runlog"),
		now:    time.Now,
	}
}

// EnsureSchema creates the crawl_runs table if it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create crawl_runs: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Start(ctx context.Context, runID string, startedAt time.Time, options []types.SearchOption) error {
	opts, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if _, err := r.db.Exec(ctx, insertRunSQL, runID, startedAt.UTC(), opts); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	r.logger.Debug("run recorded", "run_id", runID)
	return nil
}

func (r *PostgresRecorder) Finish(ctx context.Context, report *types.CrawlReport) error {
	var inserted, deleted, failed int
	if w := report.Write; w != nil {
		inserted, deleted, failed = w.Inserted, w.Deleted, w.Failed
	}
	var errText *string
	if report.Error != "" {
		errText = &report.Error
	}

	tag, err := r.db.Exec(ctx, finishRunSQL,
		report.RunID,
		r.now().UTC(),
		report.Stats.ListingsKept,
		inserted,
		deleted,
		failed,
		errText,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", report.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: no such run", report.RunID)
	}
	return nil
}

// Lookup loads a recorded run. Options and stats other than the
// scraped count are not restored.
func (r *PostgresRecorder) Lookup(ctx context.Context, runID string) (*types.CrawlReport, error) {
	var (
		startedAt  time.Time
		finishedAt *time.Time
		scraped    int64
		w          types.WriteReport
		errText    string
	)
	err := r.db.QueryRow(ctx, selectRunSQL, runID).
		Scan(&startedAt, &finishedAt, &scraped, &w.Inserted, &w.Deleted, &w.Failed, &errText)
	if err != nil {
		return nil, fmt.Errorf("lookup run %s: %w", runID, err)
	}

	report := &types.CrawlReport{
		RunID:     runID,
		StartedAt: startedAt,
		Stats:     types.CrawlStats{ListingsKept: scraped},
		Write:     &w,
		Error:     errText,
	}
	if finishedAt != nil {
		report.Duration = finishedAt.Sub(startedAt)
	}
	return report, nil
}

func (r *PostgresRecorder) Close() { r.db.Close() }

// Nop discards every run.
type Nop struct{}

func (Nop) Start(context.Context, string, time.Time, []types.SearchOption) error { return nil }
func (Nop) Finish(context.Context, *types.CrawlReport) error                     { return nil }
func (Nop) Close()                                                               {}

// Open returns a PostgresRecorder with its schema in place when the run log
// is enabled, else Nop.
func Open(ctx context.Context, cfg config.RunLogConfig, logger *slog.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	rec, err := NewPostgresRecorder(ctx, cfg.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := rec.EnsureSchema(ctx); err != nil {
		rec.Close()
		return nil, err
	}
	return rec, nil
}
