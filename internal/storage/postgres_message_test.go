package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

func TestClaimInbound_FirstCallerWins(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimInbound(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimInbound_AlreadyClaimedReturnsFalse(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	// The conditional update matches zero rows once another worker moved the
	// message out of the received state.
	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimInbound(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaimInbound_MissingTenantContext(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	_, err := repo.ClaimInbound(context.Background(), "msg-1")
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestUpdateMessageStatus_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateMessageStatus(ctx, "msg-1", model.StatusInboundAIReplied)
	assert.NoError(t, err)
}

func TestUpdateMessageStatus_MissingRowIsNotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateMessageStatus(ctx, "msg-1", model.StatusInboundAIReplied)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFindPendingInboundIDs_ReturnsOldestFirst(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("msg-old").AddRow("msg-new")
	mock.ExpectQuery(`SELECT "id" FROM "messages"`).
		WillReturnRows(rows)

	ids, err := repo.FindPendingInboundIDs(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-old", "msg-new"}, ids)
}

func TestOutboundSinceLastInbound_CountsSinceLastReply(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	lastReply := utils.Now().Add(-2 * time.Hour)

	inboundRows := sqlmock.NewRows([]string{"id", "tenant_id", "lead_id", "direction", "created_at"}).
		AddRow("msg-in", storageTestTenantID, "lead-1", model.DirectionInbound, lastReply)
	mock.ExpectQuery(`SELECT .* FROM "messages"`).
		WillReturnRows(inboundRows)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, lastInboundAt, err := repo.OutboundSinceLastInbound(ctx, "lead-1", utils.Now().Add(-14*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NotNil(t, lastInboundAt)
	assert.WithinDuration(t, lastReply, *lastInboundAt, time.Second)
}

func TestOutboundSinceLastInbound_NeverRepliedUsesFallbackCutoff(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectQuery(`SELECT .* FROM "messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, lastInboundAt, err := repo.OutboundSinceLastInbound(ctx, "lead-1", utils.Now().Add(-14*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Nil(t, lastInboundAt)
}
