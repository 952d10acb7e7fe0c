package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"finxtract/internal/common"
)

func openTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func sampleRow(id uuid.UUID) *RunRow {
	now := time.Now().UTC().Truncate(time.Second)
	return &RunRow{
		ID:            id,
		DocumentPath:  "/inbox/annual_report.pdf",
		State:         "DONE",
		Degraded:      false,
		LowConfidence: false,
		PagesTotal:    42,
		PagesSelected: 6,
		CallCount:     48,
		CostUSD:       0.91,
		RecordJSON:    []byte(`{"years":[2023]}`),
		ReportJSON:    []byte(`{"run_id":"` + id.String() + `"}`),
		StartedAt:     now.Add(-3 * time.Minute),
		FinishedAt:    now,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, a.SaveRun(ctx, sampleRow(id)))

	got, err := a.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "/inbox/annual_report.pdf", got.DocumentPath)
	require.Equal(t, "DONE", got.State)
	require.Equal(t, 42, got.PagesTotal)
	require.Equal(t, 48, got.CallCount)
	require.InDelta(t, 0.91, got.CostUSD, 1e-9)
	require.JSONEq(t, `{"years":[2023]}`, string(got.RecordJSON))
}

func TestGetRunNotFound(t *testing.T) {
	a := openTestArchive(t)

	_, err := a.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSaveRunUpserts(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	id := uuid.New()
	row := sampleRow(id)
	require.NoError(t, a.SaveRun(ctx, row))

	row.State = "DEGRADED"
	row.Degraded = true
	row.CostUSD = 1.5
	require.NoError(t, a.SaveRun(ctx, row))

	got, err := a.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "DEGRADED", got.State)
	require.True(t, got.Degraded)
	require.InDelta(t, 1.5, got.CostUSD, 1e-9)

	runs, err := a.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1, "saving the same run twice must not duplicate it")
}

func TestListRunsNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	older := sampleRow(uuid.New())
	older.FinishedAt = older.FinishedAt.Add(-time.Hour)
	newer := sampleRow(uuid.New())

	require.NoError(t, a.SaveRun(ctx, older))
	require.NoError(t, a.SaveRun(ctx, newer))

	runs, err := a.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, newer.ID, runs[0].ID)
	require.Equal(t, older.ID, runs[1].ID)

	limited, err := a.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestHealthCheck(t *testing.T) {
	a := openTestArchive(t)
	require.NoError(t, a.HealthCheck(context.Background(), time.Second))
}
