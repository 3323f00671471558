package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

func testQueueMessagePair() (*model.Message, *model.QueueItem) {
	msg := model.NewMessage(&model.Message{
		TenantID:       storageTestTenantID,
		Direction:      model.DirectionOutbound,
		DeliveryStatus: model.StatusOutboundQueued,
		TextContent:    "hello",
	})
	item := model.NewQueueItem(&model.QueueItem{
		TenantID:  storageTestTenantID,
		MessageID: msg.ID,
		Status:    model.QueueStatusQueued,
	})
	return msg, item
}

func TestCreateWithQueueItem_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	msg, item := testQueueMessagePair()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "messages"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "outbound_queue"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateWithQueueItem(ctx, msg, item)
	assert.NoError(t, err)
}

func TestCreateWithQueueItem_SecondInsertRollsBack(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	msg, item := testQueueMessagePair()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "messages"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "outbound_queue"`).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := repo.CreateWithQueueItem(ctx, msg, item)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}

func TestCreateWithQueueItem_TenantMismatch(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	msg, item := testQueueMessagePair()
	item.TenantID = "someone-else"

	err := repo.CreateWithQueueItem(ctx, msg, item)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreateWithQueueItem_DanglingMessageReference(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	msg, item := testQueueMessagePair()
	item.MessageID = "some-other-message"

	err := repo.CreateWithQueueItem(ctx, msg, item)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestClaimNextReady_ClaimsOldestReadyItem(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	now := utils.Now()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "message_id", "status", "retry_count", "next_attempt_at"}).
		AddRow("item-1", storageTestTenantID, "msg-1", model.QueueStatusQueued, 0, now.Add(-time.Minute))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "outbound_queue" .*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "outbound_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := repo.ClaimNextReady(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, model.QueueStatusDispatching, item.Status)
}

func TestClaimNextReady_EmptyQueueReturnsNil(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "outbound_queue" .*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	item, err := repo.ClaimNextReady(ctx, utils.Now())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestClaimNextReady_LostRaceReturnsNil(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	now := utils.Now()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "message_id", "status", "retry_count", "next_attempt_at"}).
		AddRow("item-1", storageTestTenantID, "msg-1", model.QueueStatusQueued, 0, now.Add(-time.Minute))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "outbound_queue" .*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(rows)
	// Another dispatcher moved the row between the lock and the update.
	mock.ExpectExec(`UPDATE "outbound_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	item, err := repo.ClaimNextReady(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestMarkQueueItemDelivered_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "outbound_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkQueueItemDelivered(ctx, "item-1", model.QueueStatusSent, "prov-1")
	assert.NoError(t, err)
}

func TestMarkQueueItemDelivered_NotDispatchingIsConflict(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "outbound_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkQueueItemDelivered(ctx, "item-1", model.QueueStatusSent, "prov-1")
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMarkQueueItemRetry_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "outbound_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkQueueItemRetry(ctx, "item-1", 2, utils.Now().Add(time.Minute), "provider 503")
	assert.NoError(t, err)
}

func TestMarkQueueItemFailed_NotDispatchingIsConflict(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "outbound_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkQueueItemFailed(ctx, "item-1", 3, "gave up")
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMarkQueueItemFailed_PersistsRetryCount(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "outbound_queue" SET .*"retry_count"=`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkQueueItemFailed(ctx, "item-1", 3, "gave up")
	assert.NoError(t, err)
}
