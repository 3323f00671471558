package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// SaveWorkspace upserts a workspace row.
func (r *PostgresRepo) SaveWorkspace(ctx context.Context, ws model.Workspace) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	if tenantID != ws.TenantID {
		return fmt.Errorf("%w: workspace TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, ws.TenantID, tenantID)
	}

	ws.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "timezone", "followup_preset", "sensitive_terms", "updated_at"}),
		}).Create(&ws)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveWorkspace Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "workspace", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save workspace after retries", zap.String("workspace_id", ws.ID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindWorkspaceByID finds a workspace by ID within the tenant context.
func (r *PostgresRepo) FindWorkspaceByID(ctx context.Context, id string) (*model.Workspace, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var ws model.Workspace
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&ws)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindWorkspaceByID", operation)
	observer.ObserveDbOperationDuration("find", "workspace", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find workspace after retries",
			zap.String("workspace_id", id),
			zap.String("tenant_id", tenantID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &ws, nil
}
