package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// SavePolicyDecision appends a decision audit row. Decisions are never
// updated or deleted.
func (r *PostgresRepo) SavePolicyDecision(ctx context.Context, decision model.PolicyDecision) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	if tenantID != decision.TenantID {
		return fmt.Errorf("%w: decision TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, decision.TenantID, tenantID)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&decision)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SavePolicyDecision Commit", operation)
	observer.ObserveDbOperationDuration("insert", "policy_decision", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save policy decision after retries",
			zap.String("lead_id", decision.LeadID),
			zap.String("reason_code", decision.ReasonCode),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}
