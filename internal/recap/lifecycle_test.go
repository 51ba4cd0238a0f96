package recap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recaps/internal/types"
)

func TestLifecycle_CreateNormalizesToPeriodStart(t *testing.T) {
	h := newHarness(0, Options{})
	ctx := context.Background()

	r, err := h.svc.CreateReport(ctx, september, types.ReportKindStandard)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), r.ReportDate)
	assert.Equal(t, types.ReportStatusQueued, r.Status)

	yir, err := h.svc.CreateReport(ctx, september, types.ReportKindYearInReview)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), yir.ReportDate)
}

func TestLifecycle_CreateDuplicate(t *testing.T) {
	h := newHarness(0, Options{})
	ctx := context.Background()

	_, err := h.svc.CreateReport(ctx, september, types.ReportKindStandard)
	require.NoError(t, err)

	// Another day of the same month is the same period.
	_, err = h.svc.CreateReport(ctx, september.AddDate(0, 0, 10), types.ReportKindStandard)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictDuplicateReport))
}

func TestLifecycle_CreateRequiresDate(t *testing.T) {
	h := newHarness(0, Options{})
	_, err := h.svc.CreateReport(context.Background(), time.Time{}, types.ReportKindStandard)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidDate))
}

func TestLifecycle_GetMissingReport(t *testing.T) {
	h := newHarness(0, Options{})
	_, err := h.svc.Lifecycle.Get(context.Background(), 99)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundReport))
}

func TestLifecycle_StatusOnlyMovesForward(t *testing.T) {
	h := newHarness(0, Options{})
	ctx := context.Background()
	lc := h.svc.Lifecycle

	r, err := lc.Create(ctx, september, types.ReportKindStandard)
	require.NoError(t, err)

	// COMPLETE is not reachable from QUEUED.
	err = lc.markComplete(ctx, r.ID)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictReportState))

	require.NoError(t, lc.MarkRunning(ctx, r.ID))
	require.NoError(t, lc.MarkRunning(ctx, r.ID), "repeated MarkRunning is a no-op")
	require.NoError(t, lc.markComplete(ctx, r.ID))
	require.NoError(t, lc.markComplete(ctx, r.ID), "repeated markComplete is a no-op")
	assert.Equal(t, 1, h.reports.completions)

	err = lc.MarkRunning(ctx, r.ID)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictReportState))
	assert.Equal(t, types.ReportStatusComplete, h.reports.status(r.ID))
}

func TestLifecycle_MarkRunningRearmsFailedReport(t *testing.T) {
	h := newHarness(0, Options{})
	ctx := context.Background()
	lc := h.svc.Lifecycle

	r, err := lc.Create(ctx, september, types.ReportKindStandard)
	require.NoError(t, err)
	require.NoError(t, lc.MarkRunning(ctx, r.ID))
	require.NoError(t, lc.MarkError(ctx, r.ID, "timeout"))

	require.NoError(t, lc.MarkRunning(ctx, r.ID))
	got, err := lc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusRunning, got.Status)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.EndTime)
	assert.NotNil(t, got.StartTime)
}

func TestLifecycle_MarkErrorFromAnyStatus(t *testing.T) {
	h := newHarness(0, Options{})
	ctx := context.Background()
	lc := h.svc.Lifecycle

	r, err := lc.Create(ctx, september, types.ReportKindStandard)
	require.NoError(t, err)
	require.NoError(t, lc.MarkRunning(ctx, r.ID))
	require.NoError(t, lc.markComplete(ctx, r.ID))

	require.NoError(t, lc.MarkError(ctx, r.ID, "manual abort"))
	got, err := lc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusError, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "manual abort", *got.Error)

	err = lc.MarkError(ctx, 404, "nope")
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundReport))
}
