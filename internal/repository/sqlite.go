package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"finxtract/internal/common"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	document_path  TEXT NOT NULL,
	state          TEXT NOT NULL,
	degraded       INTEGER NOT NULL DEFAULT 0,
	low_confidence INTEGER NOT NULL DEFAULT 0,
	pages_total    INTEGER NOT NULL,
	pages_selected INTEGER NOT NULL,
	call_count     INTEGER NOT NULL,
	cost_usd       REAL NOT NULL,
	record_json    BLOB,
	report_json    BLOB,
	started_at     TIMESTAMP NOT NULL,
	finished_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_finished_at_idx ON runs (finished_at DESC);
`

// SQLiteArchive is the single-binary fallback archive. It speaks plain
// database/sql so tests can run against ":memory:".
type SQLiteArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLite(path string, logger *slog.Logger) (*SQLiteArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", common.ErrDatabase, err)
	}
	// modernc sqlite misbehaves with concurrent writers on one file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ensure runs schema: %v", common.ErrDatabase, err)
	}
	logger.Info("archive.sqlite.opened", "path", path)
	return &SQLiteArchive{db: db, logger: logger}, nil
}

func (a *SQLiteArchive) SaveRun(ctx context.Context, row *RunRow) error {
	_, err := a.db.ExecContext(ctx, `
INSERT INTO runs (id, document_path, state, degraded, low_confidence, pages_total,
	pages_selected, call_count, cost_usd, record_json, report_json, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	state = excluded.state,
	degraded = excluded.degraded,
	low_confidence = excluded.low_confidence,
	call_count = excluded.call_count,
	cost_usd = excluded.cost_usd,
	record_json = excluded.record_json,
	report_json = excluded.report_json,
	finished_at = excluded.finished_at`,
		row.ID.String(), row.DocumentPath, row.State, row.Degraded, row.LowConfidence,
		row.PagesTotal, row.PagesSelected, row.CallCount, row.CostUSD,
		row.RecordJSON, row.ReportJSON, row.StartedAt.UTC(), row.FinishedAt.UTC())
	if err != nil {
		a.logger.Error("archive.sqlite.save.failed", "run_id", row.ID, "error", err)
		return fmt.Errorf("%w: save run: %v", common.ErrDatabase, err)
	}
	return nil
}

func (a *SQLiteArchive) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	row := &RunRow{}
	var rawID string
	err := a.db.QueryRowContext(ctx, `
SELECT id, document_path, state, degraded, low_confidence, pages_total,
	pages_selected, call_count, cost_usd, record_json, report_json, started_at, finished_at
FROM runs WHERE id = ?`, id.String()).Scan(
		&rawID, &row.DocumentPath, &row.State, &row.Degraded, &row.LowConfidence,
		&row.PagesTotal, &row.PagesSelected, &row.CallCount, &row.CostUSD,
		&row.RecordJSON, &row.ReportJSON, &row.StartedAt, &row.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run not found", common.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get run: %v", common.ErrDatabase, err)
	}
	row.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: parse run id: %v", common.ErrDatabase, err)
	}
	return row, nil
}

func (a *SQLiteArchive) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
SELECT id, document_path, state, degraded, low_confidence, pages_total,
	pages_selected, call_count, cost_usd, record_json, report_json, started_at, finished_at
FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*RunRow
	for rows.Next() {
		row := &RunRow{}
		var rawID string
		if err := rows.Scan(
			&rawID, &row.DocumentPath, &row.State, &row.Degraded, &row.LowConfidence,
			&row.PagesTotal, &row.PagesSelected, &row.CallCount, &row.CostUSD,
			&row.RecordJSON, &row.ReportJSON, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, fmt.Errorf("%w: scan run: %v", common.ErrDatabase, err)
		}
		if row.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("%w: parse run id: %v", common.ErrDatabase, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (a *SQLiteArchive) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping sqlite: %v", common.ErrDatabase, err)
	}
	return nil
}

func (a *SQLiteArchive) Close() {
	if a != nil && a.db != nil {
		_ = a.db.Close()
	}
}
