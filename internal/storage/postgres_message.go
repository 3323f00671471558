package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// SaveMessage stores a message in the database.
func (r *PostgresRepo) SaveMessage(ctx context.Context, message model.Message) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	if tenantID != message.TenantID {
		return fmt.Errorf("%w: message TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.TenantID, tenantID)
	}

	message.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save message after retries", zap.String("message_id", message.ID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindMessageByID finds a message by ID within the tenant context.
func (r *PostgresRepo) FindMessageByID(ctx context.Context, id string) (*model.Message, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByID", operation)
	observer.ObserveDbOperationDuration("find", "message", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find message after retries",
			zap.String("message_id", id),
			zap.String("tenant_id", tenantID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &message, nil
}

// UpdateMessageStatus sets the delivery status of a message.
func (r *PostgresRepo) UpdateMessageStatus(ctx context.Context, messageID string, status string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("id = ? AND tenant_id = ?", messageID, tenantID).
			Updates(map[string]interface{}{
				"delivery_status": status,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: message not found for status update (MessageID: %s)", apperrors.ErrNotFound, messageID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateMessageStatus Commit", operation)
	observer.ObserveDbOperationDuration("update", "message", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update message status after retries",
			zap.String("message_id", messageID),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// ClaimInbound atomically moves a received inbound message to
// inbound_processing. The conditional update is the exclusivity mechanism:
// exactly one caller sees rows-affected = 1, everyone else gets false.
func (r *PostgresRepo) ClaimInbound(ctx context.Context, messageID string) (bool, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var claimed bool
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("id = ? AND tenant_id = ? AND direction = ? AND delivery_status = ?",
				messageID, tenantID, model.DirectionInbound, model.StatusReceived).
			Updates(map[string]interface{}{
				"delivery_status": model.StatusInboundProcessing,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		claimed = result.RowsAffected == 1
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ClaimInbound Commit", operation)
	observer.ObserveDbOperationDuration("claim", "message", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to claim inbound message after retries",
			zap.String("message_id", messageID),
			zap.Error(commitErr))
		return false, commitErr
	}

	return claimed, nil
}

// FindPendingInboundIDs returns ids of inbound messages still in the
// received state, oldest first. Safety net for wake notifications that
// were missed.
func (r *PostgresRepo) FindPendingInboundIDs(ctx context.Context, limit int) ([]string, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var ids []string
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("tenant_id = ? AND direction = ? AND delivery_status = ?",
				tenantID, model.DirectionInbound, model.StatusReceived).
			Order("created_at ASC").
			Limit(limit).
			Pluck("id", &ids)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindPendingInboundIDs", operation)
	observer.ObserveDbOperationDuration("find_pending", "message", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to find pending inbound messages after retries", zap.Error(findErr))
		return nil, findErr
	}

	return ids, nil
}

// OutboundSinceLastInbound returns the number of outbound messages sent to a
// lead since their most recent inbound message, plus the inbound time itself.
// When the lead has never replied the inbound time is nil and the count runs
// from fallbackCutoff.
func (r *PostgresRepo) OutboundSinceLastInbound(ctx context.Context, leadID string, fallbackCutoff time.Time) (int, *time.Time, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var lastInboundAt *time.Time
	var count int64
	operation := func() error {
		var inbound model.Message
		result := r.db.WithContext(ctx).
			Where("tenant_id = ? AND lead_id = ? AND direction = ?", tenantID, leadID, model.DirectionInbound).
			Order("created_at DESC").
			Limit(1).
			Find(&inbound)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		if result.RowsAffected == 1 {
			ts := inbound.CreatedAt
			lastInboundAt = &ts
		} else {
			lastInboundAt = nil
		}

		countQuery := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("tenant_id = ? AND lead_id = ? AND direction = ?", tenantID, leadID, model.DirectionOutbound)
		if lastInboundAt != nil {
			countQuery = countQuery.Where("created_at > ?", *lastInboundAt)
		} else {
			countQuery = countQuery.Where("created_at > ?", fallbackCutoff)
		}
		if countErr := countQuery.Count(&count).Error; countErr != nil {
			return fmt.Errorf("%w: count failed: %w", apperrors.ErrDatabase, countErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "OutboundSinceLastInbound", operation)
	observer.ObserveDbOperationDuration("count_unanswered", "message", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to count unanswered outbound after retries",
			zap.String("lead_id", leadID),
			zap.Error(findErr))
		return 0, nil, findErr
	}

	return int(count), lastInboundAt, nil
}
