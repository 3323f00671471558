// Package scheduler runs the proactive side of the pipeline: a review pass
// that plans next_followup_at for active leads, and a dispatch pass that runs
// a turn for every lead whose follow-up is due.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/config"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/orchestrator"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

const (
	jobReview   = "followup_review"
	jobDispatch = "followup_dispatch"

	// A lead's plan is revisited at most once per review interval.
	reviewInterval = 24 * time.Hour

	// Deferral applied when a proactive turn hits the rolling outbound cap.
	capDeferral = 24 * time.Hour
)

// TurnRunner executes one conversation turn for a lead.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.TurnRequest) (orchestrator.TurnResult, error)
}

// Scheduler owns the two cron entries driving proactive follow-ups.
type Scheduler struct {
	cfg           config.SchedulerConfig
	tenantID      string
	leadRepo      storage.LeadRepo
	workspaceRepo storage.WorkspaceRepo
	orch          TurnRunner
	cron          *cron.Cron
	baseLogger    *zap.Logger

	// rootCtx bounds job runs; set in Start.
	rootCtx context.Context
}

// NewScheduler creates the scheduling loop. Start registers the cron entries.
func NewScheduler(
	cfg config.SchedulerConfig,
	tenantID string,
	leadRepo storage.LeadRepo,
	workspaceRepo storage.WorkspaceRepo,
	orch TurnRunner,
	baseLogger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		tenantID:      tenantID,
		leadRepo:      leadRepo,
		workspaceRepo: workspaceRepo,
		orch:          orch,
		cron: cron.New(
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		baseLogger: baseLogger.Named("scheduler"),
	}
}

// Start registers both jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.rootCtx = ctx

	if _, err := s.cron.AddFunc(s.cfg.ReviewSpec, func() { s.RunReviewPass(s.rootCtx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.DispatchSpec, func() { s.RunDispatchPass(s.rootCtx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.baseLogger.Info("Scheduler started",
		zap.String("review_spec", s.cfg.ReviewSpec),
		zap.String("dispatch_spec", s.cfg.DispatchSpec))
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.baseLogger.Info("Scheduler stopped")
}

// RunReviewPass plans next_followup_at for active leads whose plan has not
// been reviewed within the review interval.
func (s *Scheduler) RunReviewPass(ctx context.Context) {
	log := s.baseLogger.With(zap.String("job", jobReview))
	observer.IncSchedulerRun(s.tenantID, jobReview)

	now := utils.Now()
	leads, err := s.leadRepo.FindLeadsForReview(ctx, now.Add(-reviewInterval), s.cfg.ReviewBatch)
	if err != nil {
		log.Error("Failed to load leads for review", zap.Error(err))
		return
	}
	if len(leads) == 0 {
		return
	}

	// Workspaces repeat heavily across one batch.
	workspaces := make(map[string]*model.Workspace)
	planned := 0

	for i := range leads {
		lead := &leads[i]
		if ctx.Err() != nil {
			return
		}

		ws, ok := workspaces[lead.WorkspaceID]
		if !ok {
			ws, err = s.workspaceRepo.FindWorkspaceByID(ctx, lead.WorkspaceID)
			if err != nil {
				log.Warn("Workspace lookup failed, skipping lead",
					zap.String("lead_id", lead.ID),
					zap.String("workspace_id", lead.WorkspaceID),
					zap.Error(err))
				continue
			}
			workspaces[lead.WorkspaceID] = ws
		}

		next := nextFollowupAt(lead, ws, now)
		if err := s.leadRepo.UpdateFollowupSchedule(ctx, lead.ID, next, now); err != nil {
			log.Warn("Failed to plan follow-up",
				zap.String("lead_id", lead.ID),
				zap.Error(err))
			continue
		}
		planned++
	}

	observer.AddSchedulerLeadsProcessed(s.tenantID, jobReview, planned)
	log.Info("Review pass finished",
		zap.Int("reviewed", len(leads)),
		zap.Int("planned", planned))
}

// RunDispatchPass runs a proactive turn for every lead whose follow-up is due.
func (s *Scheduler) RunDispatchPass(ctx context.Context) {
	log := s.baseLogger.With(zap.String("job", jobDispatch))
	observer.IncSchedulerRun(s.tenantID, jobDispatch)

	now := utils.Now()
	leads, err := s.leadRepo.FindLeadsDueForFollowup(ctx, now, s.cfg.DueBatch)
	if err != nil {
		log.Error("Failed to load due leads", zap.Error(err))
		return
	}
	if len(leads) == 0 {
		return
	}

	processed := 0
	for i := range leads {
		lead := &leads[i]
		if ctx.Err() != nil {
			return
		}
		s.runFollowup(ctx, log, lead)
		processed++
	}

	observer.AddSchedulerLeadsProcessed(s.tenantID, jobDispatch, processed)
	log.Info("Dispatch pass finished", zap.Int("processed", processed))
}

// runFollowup drives one proactive turn and reconciles the lead's plan with
// the outcome.
func (s *Scheduler) runFollowup(ctx context.Context, log *zap.Logger, lead *model.Lead) {
	log = log.With(zap.String("lead_id", lead.ID))

	result, err := s.orch.RunTurn(ctx, orchestrator.TurnRequest{
		LeadID:      lead.ID,
		WorkspaceID: lead.WorkspaceID,
		Channel:     s.cfg.DefaultChannel,
	})
	if err != nil {
		// Leave next_followup_at in place; the next dispatch pass retries.
		log.Warn("Proactive turn failed", zap.Error(err))
		return
	}

	switch result.Status {
	case orchestrator.StatusSent:
		// MarkFollowupSent inside the turn cleared next_followup_at; the next
		// review pass replans from last_followup_at.
		log.Info("Follow-up sent", zap.String("message_id", result.MessageID))
	case orchestrator.StatusBlocked:
		s.handleBlocked(ctx, log, lead, result.ReasonCode)
	}
}

// handleBlocked pushes the plan out when the rolling cap denied the turn, and
// clears it for terminal denials so suppressed leads stop re-surfacing.
func (s *Scheduler) handleBlocked(ctx context.Context, log *zap.Logger, lead *model.Lead, reasonCode string) {
	log = log.With(zap.String("reason_code", reasonCode))

	var until time.Time
	switch reasonCode {
	case model.ReasonOutboundCap24h:
		until = utils.Now().Add(capDeferral)
	case model.ReasonQuietHoursActive, model.ReasonSundayHold:
		// Short defer; the window reopens within hours.
		until = utils.Now().Add(time.Hour)
	default:
		// Suppression, takeover, and stop-rule denials need a lifecycle
		// change before another attempt makes sense. Drop the plan; the
		// review pass replans once the lead becomes eligible again.
		if err := s.leadRepo.ClearFollowup(ctx, lead.ID); err != nil {
			log.Warn("Failed to clear follow-up plan", zap.Error(err))
			return
		}
		log.Info("Follow-up blocked, plan cleared")
		return
	}

	if err := s.leadRepo.DeferFollowup(ctx, lead.ID, until); err != nil {
		log.Warn("Failed to defer follow-up", zap.Error(err))
		return
	}
	log.Info("Follow-up deferred", zap.Time("until", until))
}

// nextFollowupAt computes the plan for one lead: the workspace preset's base
// interval, halved for engaged leads.
func nextFollowupAt(lead *model.Lead, ws *model.Workspace, now time.Time) time.Time {
	hours := ws.FollowupBaseHours()
	if lead.Stage == model.StageEngaged {
		hours /= 2
	}
	return now.Add(time.Duration(hours) * time.Hour)
}
