package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

func TestUpdateFollowupSchedule_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateFollowupSchedule(ctx, "lead-1", utils.Now().Add(48*time.Hour), utils.Now())
	assert.NoError(t, err)
}

func TestMarkFollowupSent_MissingLeadIsNotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkFollowupSent(ctx, "lead-1", utils.Now())
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeferFollowup_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeferFollowup(ctx, "lead-1", utils.Now().Add(24*time.Hour))
	assert.NoError(t, err)
}

func TestClearFollowup_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ClearFollowup(ctx, "lead-1")
	assert.NoError(t, err)
}

func TestClearFollowup_MissingLeadIsNotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ClearFollowup(ctx, "lead-1")
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFindLeadsDueForFollowup_ReturnsDueLeads(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	now := utils.Now()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "workspace_id", "stage", "next_followup_at"}).
		AddRow("lead-1", storageTestTenantID, "ws-1", model.StageContacted, now.Add(-time.Minute))
	mock.ExpectQuery(`SELECT .* FROM "leads"`).
		WillReturnRows(rows)

	leads, err := repo.FindLeadsDueForFollowup(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead-1", leads[0].ID)
}
