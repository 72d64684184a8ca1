package moderation_test

import (
	"context"
	"testing"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario C: a second report while the first is open is rejected.
func TestCreateReport_OneOpenPerReporter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := storagetest.Character(t, f.store, "Reporter", 0, 0)
	a := storagetest.Character(t, f.store, "Suspect_A", 0, 0)
	b := storagetest.Character(t, f.store, "Suspect_B", 0, 0)

	_, err := f.engine.CreateReport(ctx, reporter.ID, a.ID, "deathmatch", "killed me at spawn")
	require.NoError(t, err)

	_, err = f.engine.CreateReport(ctx, reporter.ID, b.ID, "other", "")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "You already have an open report.", apperr.UserMessage(err))
}

func TestCreateReport_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := storagetest.Character(t, f.store, "Reporter", 0, 0)

	_, err := f.engine.CreateReport(ctx, reporter.ID, reporter.ID, "other", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.engine.CreateReport(ctx, reporter.ID, 999, "other", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.engine.CreateReport(ctx, reporter.ID, 999, "bad vibes", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestReportWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	helper := f.admin(t, "Helper", 1)
	other := f.admin(t, "Other_Helper", 1)
	reporter := storagetest.Character(t, f.store, "Reporter", 0, 0)
	suspect := storagetest.Character(t, f.store, "Suspect", 0, 0)

	r, err := f.engine.CreateReport(ctx, reporter.ID, suspect.ID, "cheating", "flying car")
	require.NoError(t, err)

	open, err := f.engine.ListOpenReports(helper.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	accepted, err := f.engine.AcceptReport(ctx, helper.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportInProgress, accepted.Status)

	_, err = f.engine.AcceptReport(ctx, other.ID, r.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.engine.CloseReport(ctx, other.ID, r.ID, "not mine")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	closed, err := f.engine.CloseReport(ctx, helper.ID, r.ID, "banned the suspect")
	require.NoError(t, err)
	assert.Equal(t, models.ReportClosed, closed.Status)

	_, err = f.engine.CloseReport(ctx, helper.ID, r.ID, "again")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.engine.CreateReport(ctx, reporter.ID, suspect.ID, "other", "")
	assert.NoError(t, err, "closed report no longer counts")
}

func TestCloseReport_SkipAcceptWithCloseAny(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	helper := f.admin(t, "Helper", 1)
	senior := f.admin(t, "Senior", 4)
	reporter := storagetest.Character(t, f.store, "Reporter", 0, 0)
	suspect := storagetest.Character(t, f.store, "Suspect", 0, 0)

	r, err := f.engine.CreateReport(ctx, reporter.ID, suspect.ID, "other", "")
	require.NoError(t, err)

	_, err = f.engine.CloseReport(ctx, helper.ID, r.ID, "nothing to do")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied, "unassigned report needs close_any_report")

	closed, err := f.engine.CloseReport(ctx, senior.ID, r.ID, "duplicate")
	require.NoError(t, err)
	require.NotNil(t, closed.AssignedAdmin)
	assert.Equal(t, senior.ID, *closed.AssignedAdmin)

	stored, err := f.store.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportClosed, stored.Status)
}
