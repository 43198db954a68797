package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the Postgres connection used for checkpoints and run records.
type DB struct {
	conn *sql.DB
}

// DefaultConnectTimeout bounds the retried initial ping.
const DefaultConnectTimeout = 30 * time.Second

// Open connects to dsn with the pgx driver. The first ping is retried with
// exponential backoff so a database that is still starting is tolerated.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("open database: empty DSN")
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(4)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = DefaultConnectTimeout
	if err := backoff.Retry(func() error {
		return conn.PingContext(ctx)
	}, backoff.WithContext(bo, ctx)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// migrations are applied in order; index+1 is the schema version.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS checkpoints (
    thread_id   TEXT PRIMARY KEY,
    pipeline    TEXT NOT NULL,
    next_node   TEXT NOT NULL DEFAULT '',
    completed   BOOLEAN NOT NULL DEFAULT FALSE,
    state       JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_runs (
    id               BIGSERIAL PRIMARY KEY,
    repo             TEXT NOT NULL,
    issue_number     INTEGER NOT NULL,
    workflow_type    TEXT NOT NULL,
    started_at       TIMESTAMPTZ NOT NULL,
    completed_at     TIMESTAMPTZ NOT NULL,
    triage_decision  TEXT,
    triage_reason    TEXT,
    duplicate_of     INTEGER,
    fix_decision     TEXT,
    score            INTEGER,
    priority         TEXT,
    story_points     INTEGER,
    fix_success      BOOLEAN,
    pr_url           TEXT,
    fix_error        TEXT,
    input_tokens     BIGINT NOT NULL DEFAULT 0,
    output_tokens    BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_repo_started ON workflow_runs(repo, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_issue ON workflow_runs(repo, issue_number);
`,
}

// Migrate applies every migration newer than the recorded schema version.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := d.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := d.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply schema v%d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema v%d: %w", version, err)
		}
	}
	return nil
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset(ctx context.Context) error {
	for _, t := range []string{"workflow_runs", "checkpoints", "schema_version"} {
		if _, err := d.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate(ctx)
}
