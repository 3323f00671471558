package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// CreateWithQueueItem inserts the outbound message and its queue item in one
// transaction. Either both rows exist afterwards or neither does.
func (r *PostgresRepo) CreateWithQueueItem(ctx context.Context, message *model.Message, item *model.QueueItem) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	if tenantID != message.TenantID || tenantID != item.TenantID {
		return fmt.Errorf("%w: message/item TenantID does not match tenant ID %s", apperrors.ErrBadRequest, tenantID)
	}
	if item.MessageID != message.ID {
		return fmt.Errorf("%w: queue item MessageID %s does not reference message %s", apperrors.ErrBadRequest, item.MessageID, message.ID)
	}

	now := utils.Now()
	message.UpdatedAt = now
	item.UpdatedAt = now

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		if result := tx.Create(message); result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}
		if result := tx.Create(item); result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateWithQueueItem Commit", operation)
	observer.ObserveDbOperationDuration("enqueue", "queue_item", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to enqueue outbound message after retries",
			zap.String("message_id", message.ID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// ClaimNextReady picks the oldest queued item whose next_attempt_at has
// passed and moves it to dispatching. Row locking with SKIP LOCKED keeps
// concurrent dispatchers off the same item; the status filter in the locking
// read plus the conditional update keep the claim exclusive.
func (r *PostgresRepo) ClaimNextReady(ctx context.Context, now time.Time) (*model.QueueItem, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var claimed *model.QueueItem
	operation := func() error {
		claimed = nil
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					loggerCtx.Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var item model.QueueItem
		result := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("tenant_id = ? AND status IN ? AND next_attempt_at <= ?",
				tenantID, []string{model.QueueStatusQueued, model.QueueStatusRetryScheduled}, now).
			Order("next_attempt_at ASC").
			First(&item)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				// Nothing ready; commit the empty transaction.
				if commitErr := tx.Commit().Error; commitErr != nil {
					txErr = checkConstraintViolation(commitErr)
					return txErr
				}
				return nil
			}
			txErr = fmt.Errorf("%w: failed to lock queue item: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		updateResult := tx.Model(&model.QueueItem{}).
			Where("id = ? AND status = ?", item.ID, item.Status).
			Updates(map[string]interface{}{
				"status":     model.QueueStatusDispatching,
				"updated_at": utils.Now(),
			})
		if updateResult.Error != nil {
			txErr = checkConstraintViolation(updateResult.Error)
			return txErr
		}
		if updateResult.RowsAffected == 0 {
			// Someone else moved the item under us; treat as nothing ready.
			if commitErr := tx.Commit().Error; commitErr != nil {
				txErr = checkConstraintViolation(commitErr)
				return txErr
			}
			return nil
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}

		item.Status = model.QueueStatusDispatching
		claimed = &item
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	opErr := retryableOperation(ctx, commitPolicy, "ClaimNextReady", operation)
	observer.ObserveDbOperationDuration("claim", "queue_item", tenantID, time.Since(startTime), opErr)

	if opErr != nil {
		loggerCtx.Error("Failed to claim queue item after retries", zap.Error(opErr))
		return nil, opErr
	}

	return claimed, nil
}

// MarkQueueItemDelivered records a successful dispatch. Status is accepted
// for ack-based channels, sent for fire-and-forget ones.
func (r *PostgresRepo) MarkQueueItemDelivered(ctx context.Context, itemID string, status string, providerMessageID string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		now := utils.Now()
		result := r.db.WithContext(ctx).Model(&model.QueueItem{}).
			Where("id = ? AND tenant_id = ? AND status = ?", itemID, tenantID, model.QueueStatusDispatching).
			Updates(map[string]interface{}{
				"status":              status,
				"provider_message_id": providerMessageID,
				"dispatched_at":       now,
				"updated_at":          now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: queue item not in dispatching state (ItemID: %s)", apperrors.ErrConflict, itemID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkQueueItemDelivered Commit", operation)
	observer.ObserveDbOperationDuration("update", "queue_item", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark queue item delivered after retries",
			zap.String("item_id", itemID),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// MarkQueueItemRetry schedules another attempt after a failed dispatch.
func (r *PostgresRepo) MarkQueueItemRetry(ctx context.Context, itemID string, retryCount int, nextAttemptAt time.Time, lastError string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.QueueItem{}).
			Where("id = ? AND tenant_id = ? AND status = ?", itemID, tenantID, model.QueueStatusDispatching).
			Updates(map[string]interface{}{
				"status":          model.QueueStatusRetryScheduled,
				"retry_count":     retryCount,
				"next_attempt_at": nextAttemptAt,
				"last_error":      lastError,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: queue item not in dispatching state (ItemID: %s)", apperrors.ErrConflict, itemID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkQueueItemRetry Commit", operation)
	observer.ObserveDbOperationDuration("update", "queue_item", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to schedule queue item retry after retries",
			zap.String("item_id", itemID),
			zap.Int("retry_count", retryCount),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// MarkQueueItemFailed terminally fails a queue item after the retry cap,
// recording the attempt count that exhausted it.
func (r *PostgresRepo) MarkQueueItemFailed(ctx context.Context, itemID string, retryCount int, lastError string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.QueueItem{}).
			Where("id = ? AND tenant_id = ? AND status = ?", itemID, tenantID, model.QueueStatusDispatching).
			Updates(map[string]interface{}{
				"status":      model.QueueStatusFailed,
				"retry_count": retryCount,
				"last_error":  lastError,
				"updated_at":  utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: queue item not in dispatching state (ItemID: %s)", apperrors.ErrConflict, itemID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkQueueItemFailed Commit", operation)
	observer.ObserveDbOperationDuration("update", "queue_item", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark queue item failed after retries",
			zap.String("item_id", itemID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindQueueItemByID finds a queue item by ID within the tenant context.
func (r *PostgresRepo) FindQueueItemByID(ctx context.Context, id string) (*model.QueueItem, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var item model.QueueItem
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&item)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindQueueItemByID", operation)
	observer.ObserveDbOperationDuration("find", "queue_item", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find queue item after retries",
			zap.String("item_id", id),
			zap.String("tenant_id", tenantID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &item, nil
}
