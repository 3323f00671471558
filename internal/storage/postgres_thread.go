package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// FindThreadByID finds a thread by ID within the tenant context.
func (r *PostgresRepo) FindThreadByID(ctx context.Context, id string) (*model.Thread, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var thread model.Thread
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&thread)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindThreadByID", operation)
	observer.ObserveDbOperationDuration("find", "thread", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find thread after retries",
			zap.String("thread_id", id),
			zap.String("tenant_id", tenantID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &thread, nil
}

// GetOrCreateActiveThread returns the active thread for a (lead, channel)
// pair, creating it lazily on first message. A unique partial index on
// (tenant_id, lead_id, channel) WHERE status = 'active' backs the at-most-one
// contract; a concurrent insert loses with a duplicate error and re-reads.
func (r *PostgresRepo) GetOrCreateActiveThread(ctx context.Context, leadID string, channel string) (*model.Thread, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var thread model.Thread
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("tenant_id = ? AND lead_id = ? AND channel = ? AND status = ?",
				tenantID, leadID, channel, model.ThreadStatusActive).
			First(&thread)
		if result.Error == nil {
			return nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return checkConstraintViolation(result.Error)
		}

		thread = model.Thread{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			LeadID:    leadID,
			Channel:   channel,
			Status:    model.ThreadStatusActive,
			CreatedAt: utils.Now(),
			UpdatedAt: utils.Now(),
		}
		createResult := r.db.WithContext(ctx).Create(&thread)
		if createResult.Error != nil {
			wrapped := checkConstraintViolation(createResult.Error)
			if errors.Is(wrapped, apperrors.ErrDuplicate) {
				// Lost the create race; the winner's row is the active thread.
				reread := r.db.WithContext(ctx).
					Where("tenant_id = ? AND lead_id = ? AND channel = ? AND status = ?",
						tenantID, leadID, channel, model.ThreadStatusActive).
					First(&thread)
				if reread.Error != nil {
					return checkConstraintViolation(reread.Error)
				}
				return nil
			}
			return wrapped
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	opErr := retryableOperation(ctx, commitPolicy, "GetOrCreateActiveThread", operation)
	observer.ObserveDbOperationDuration("get_or_create", "thread", tenantID, time.Since(startTime), opErr)

	if opErr != nil {
		loggerCtx.Error("Failed to get or create active thread after retries",
			zap.String("lead_id", leadID),
			zap.String("channel", channel),
			zap.Error(opErr))
		return nil, opErr
	}

	return &thread, nil
}
