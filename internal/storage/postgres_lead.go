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

// SaveLead upserts a lead row.
func (r *PostgresRepo) SaveLead(ctx context.Context, lead model.Lead) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	if tenantID != lead.TenantID {
		return fmt.Errorf("%w: lead TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, lead.TenantID, tenantID)
	}

	lead.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stage", "tags", "timezone", "last_followup_at", "next_followup_at", "last_followup_review_at", "updated_at"}),
		}).Create(&lead)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveLead Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save lead after retries", zap.String("lead_id", lead.ID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindLeadByID finds a lead by ID within the tenant context.
func (r *PostgresRepo) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var lead model.Lead
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&lead)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLeadByID", operation)
	observer.ObserveDbOperationDuration("find", "lead", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find lead after retries",
			zap.String("lead_id", id),
			zap.String("tenant_id", tenantID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &lead, nil
}

// UpdateLeadStage sets the lead's lifecycle stage.
func (r *PostgresRepo) UpdateLeadStage(ctx context.Context, leadID string, stage string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			Updates(map[string]interface{}{
				"stage":      stage,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead not found for stage update (LeadID: %s)", apperrors.ErrNotFound, leadID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateLeadStage Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update lead stage after retries",
			zap.String("lead_id", leadID),
			zap.String("stage", stage),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// AddLeadTag appends a tag to the lead's tag list, preserving order and
// skipping duplicates. Locks the row to avoid losing concurrent appends.
func (r *PostgresRepo) AddLeadTag(ctx context.Context, leadID string, tag string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

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

		var lead model.Lead
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			First(&lead)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: lead not found for tag update (LeadID: %s)", apperrors.ErrNotFound, leadID)
				return backoff.Permanent(txErr)
			}
			txErr = fmt.Errorf("%w: failed to lock lead row: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if lead.HasTag(tag) {
			if commitErr := tx.Commit().Error; commitErr != nil {
				txErr = checkConstraintViolation(commitErr)
				return txErr
			}
			return nil
		}

		lead.AddTag(tag)
		updateResult := tx.Model(&model.Lead{}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			Updates(map[string]interface{}{
				"tags":       lead.Tags,
				"updated_at": utils.Now(),
			})
		if updateResult.Error != nil {
			txErr = checkConstraintViolation(updateResult.Error)
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
	commitErr := retryableOperation(ctx, commitPolicy, "AddLeadTag Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to add lead tag after retries",
			zap.String("lead_id", leadID),
			zap.String("tag", tag),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// UpdateFollowupSchedule plans the next follow-up and stamps the review time.
func (r *PostgresRepo) UpdateFollowupSchedule(ctx context.Context, leadID string, nextFollowupAt time.Time, reviewedAt time.Time) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			Updates(map[string]interface{}{
				"next_followup_at":        nextFollowupAt,
				"last_followup_review_at": reviewedAt,
				"updated_at":              utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead not found for followup schedule (LeadID: %s)", apperrors.ErrNotFound, leadID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateFollowupSchedule Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update followup schedule after retries",
			zap.String("lead_id", leadID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// MarkFollowupSent records a completed follow-up send and clears the due time.
func (r *PostgresRepo) MarkFollowupSent(ctx context.Context, leadID string, sentAt time.Time) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			Updates(map[string]interface{}{
				"last_followup_at": sentAt,
				"next_followup_at": nil,
				"updated_at":       utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead not found for followup sent (LeadID: %s)", apperrors.ErrNotFound, leadID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkFollowupSent Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark followup sent after retries",
			zap.String("lead_id", leadID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// DeferFollowup pushes the lead's due time without stamping a review.
func (r *PostgresRepo) DeferFollowup(ctx context.Context, leadID string, until time.Time) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			Updates(map[string]interface{}{
				"next_followup_at": until,
				"updated_at":       utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead not found for followup deferral (LeadID: %s)", apperrors.ErrNotFound, leadID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeferFollowup Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to defer followup after retries",
			zap.String("lead_id", leadID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// ClearFollowup drops the lead's plan entirely. Used when a proactive turn is
// denied for a reason only a lifecycle change can lift.
func (r *PostgresRepo) ClearFollowup(ctx context.Context, leadID string) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND tenant_id = ?", leadID, tenantID).
			Updates(map[string]interface{}{
				"next_followup_at": nil,
				"updated_at":       utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead not found for followup clear (LeadID: %s)", apperrors.ErrNotFound, leadID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ClearFollowup Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to clear followup after retries",
			zap.String("lead_id", leadID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindLeadsForReview returns active-stage leads whose follow-up plan has not
// been reviewed since the cutoff.
func (r *PostgresRepo) FindLeadsForReview(ctx context.Context, reviewedBefore time.Time, limit int) ([]model.Lead, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var leads []model.Lead
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("tenant_id = ? AND stage IN ?", tenantID, model.ActiveStages()).
			Where("last_followup_review_at IS NULL OR last_followup_review_at < ?", reviewedBefore).
			Order("last_followup_review_at ASC NULLS FIRST").
			Limit(limit).
			Find(&leads)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLeadsForReview", operation)
	observer.ObserveDbOperationDuration("find_for_review", "lead", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to find leads for review after retries", zap.Error(findErr))
		return nil, findErr
	}

	return leads, nil
}

// FindLeadsDueForFollowup returns active-stage leads whose next_followup_at
// has passed.
func (r *PostgresRepo) FindLeadsDueForFollowup(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var leads []model.Lead
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("tenant_id = ? AND stage IN ?", tenantID, model.ActiveStages()).
			Where("next_followup_at IS NOT NULL AND next_followup_at <= ?", now).
			Order("next_followup_at ASC").
			Limit(limit).
			Find(&leads)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLeadsDueForFollowup", operation)
	observer.ObserveDbOperationDuration("find_due", "lead", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to find due leads after retries", zap.Error(findErr))
		return nil, findErr
	}

	return leads, nil
}
