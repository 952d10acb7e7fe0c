package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunRow is the archived shape of a finished (or failed) extraction run.
// RecordJSON and ReportJSON hold the consolidated record and the run report
// as produced by the engine, so the archive never needs to re-derive them.
type RunRow struct {
	ID            uuid.UUID
	DocumentPath  string
	State         string
	Degraded      bool
	LowConfidence bool
	PagesTotal    int
	PagesSelected int
	CallCount     int
	CostUSD       float64
	RecordJSON    []byte
	ReportJSON    []byte
	StartedAt     time.Time
	FinishedAt    time.Time
}

// RunArchive persists completed runs for audit and reprocessing decisions.
type RunArchive interface {
	SaveRun(ctx context.Context, row *RunRow) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRow, error)
	HealthCheck(ctx context.Context, timeout time.Duration) error
	Close()
}
