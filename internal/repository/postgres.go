package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finxtract/internal/common"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id             UUID PRIMARY KEY,
	document_path  TEXT NOT NULL,
	state          TEXT NOT NULL,
	degraded       BOOLEAN NOT NULL DEFAULT FALSE,
	low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
	pages_total    INTEGER NOT NULL,
	pages_selected INTEGER NOT NULL,
	call_count     INTEGER NOT NULL,
	cost_usd       DOUBLE PRECISION NOT NULL,
	record_json    JSONB,
	report_json    JSONB,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_document_path_idx ON runs (document_path);
CREATE INDEX IF NOT EXISTS runs_finished_at_idx ON runs (finished_at DESC);
`

// PostgresArchive stores runs in Postgres through a pgx pool.
type PostgresArchive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates the pool, verifies connectivity, and ensures the schema.
func OpenPostgres(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (*PostgresArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("archive.pg.parse_config.failed", "error", err)
		return nil, fmt.Errorf("%w: parse postgres config: %v", common.ErrDatabase, err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "finxtract"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("archive.pg.connect.failed", "error", err)
		return nil, fmt.Errorf("%w: connect postgres: %v", common.ErrDatabase, err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		logger.Error("archive.pg.migrate.failed", "error", err)
		return nil, fmt.Errorf("%w: ensure runs schema: %v", common.ErrDatabase, err)
	}
	logger.Info("archive.pg.connected")
	return &PostgresArchive{pool: pool, logger: logger}, nil
}

func (a *PostgresArchive) SaveRun(ctx context.Context, row *RunRow) error {
	_, err := a.pool.Exec(ctx, `
INSERT INTO runs (id, document_path, state, degraded, low_confidence, pages_total,
	pages_selected, call_count, cost_usd, record_json, report_json, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	degraded = EXCLUDED.degraded,
	low_confidence = EXCLUDED.low_confidence,
	call_count = EXCLUDED.call_count,
	cost_usd = EXCLUDED.cost_usd,
	record_json = EXCLUDED.record_json,
	report_json = EXCLUDED.report_json,
	finished_at = EXCLUDED.finished_at`,
		row.ID, row.DocumentPath, row.State, row.Degraded, row.LowConfidence,
		row.PagesTotal, row.PagesSelected, row.CallCount, row.CostUSD,
		row.RecordJSON, row.ReportJSON, row.StartedAt, row.FinishedAt)
	if err != nil {
		a.logger.Error("archive.pg.save.failed", "run_id", row.ID, "error", err)
		return fmt.Errorf("%w: save run: %v", common.ErrDatabase, err)
	}
	return nil
}

func (a *PostgresArchive) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	row := &RunRow{}
	err := a.pool.QueryRow(ctx, `
SELECT id, document_path, state, degraded, low_confidence, pages_total,
	pages_selected, call_count, cost_usd, record_json, report_json, started_at, finished_at
FROM runs WHERE id = $1`, id).Scan(
		&row.ID, &row.DocumentPath, &row.State, &row.Degraded, &row.LowConfidence,
		&row.PagesTotal, &row.PagesSelected, &row.CallCount, &row.CostUSD,
		&row.RecordJSON, &row.ReportJSON, &row.StartedAt, &row.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run not found", common.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get run: %v", common.ErrDatabase, err)
	}
	return row, nil
}

func (a *PostgresArchive) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.pool.Query(ctx, `
SELECT id, document_path, state, degraded, low_confidence, pages_total,
	pages_selected, call_count, cost_usd, record_json, report_json, started_at, finished_at
FROM runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*RunRow
	for rows.Next() {
		row := &RunRow{}
		if err := rows.Scan(
			&row.ID, &row.DocumentPath, &row.State, &row.Degraded, &row.LowConfidence,
			&row.PagesTotal, &row.PagesSelected, &row.CallCount, &row.CostUSD,
			&row.RecordJSON, &row.ReportJSON, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, fmt.Errorf("%w: scan run: %v", common.ErrDatabase, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (a *PostgresArchive) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %v", common.ErrDatabase, err)
	}
	return nil
}

func (a *PostgresArchive) Close() {
	if a != nil && a.pool != nil {
		a.pool.Close()
	}
}
