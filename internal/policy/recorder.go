package policy

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// Recorder persists decision audit rows. Audit failures are logged and
// swallowed: a broken audit log must never turn an allowed send into a
// failure, or hide a deny.
type Recorder struct {
	decisionRepo storage.DecisionRepo
}

// NewRecorder builds a decision recorder.
func NewRecorder(decisionRepo storage.DecisionRepo) *Recorder {
	return &Recorder{decisionRepo: decisionRepo}
}

// Record appends the decision. Never returns an error to the caller.
func (r *Recorder) Record(ctx context.Context, decision model.PolicyDecision) {
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = utils.Now()
	}

	if err := r.decisionRepo.SavePolicyDecision(ctx, decision); err != nil {
		observer.IncPolicyRecordFailure(decision.TenantID)
		logger.FromContext(ctx).Error("Failed to record policy decision, continuing",
			zap.String("lead_id", decision.LeadID),
			zap.String("check_kind", decision.CheckKind),
			zap.String("reason_code", decision.ReasonCode),
			zap.Error(err))
	}
}
