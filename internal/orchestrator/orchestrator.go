// Package orchestrator runs one conversation turn end to end: policy
// pre-check, context assembly, generation, risk check, and the atomic
// persist-and-enqueue of the reply. It is the single integration point for
// both reactive (intake) and proactive (scheduler) sends.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/policy"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// Turn result statuses.
const (
	StatusSent    = "sent"
	StatusBlocked = "blocked"
	StatusFailed  = "failed"
)

// TurnRequest describes one requested turn.
type TurnRequest struct {
	LeadID      string
	WorkspaceID string
	Channel     string
	// UserMessage is the prepared prompt fragment for reactive turns; empty
	// for proactive follow-ups.
	UserMessage string
	// History is the prior conversation, oldest first.
	History []collab.HistoryMessage
}

// TurnResult is the outcome of RunTurn.
type TurnResult struct {
	Status     string
	ReasonCode string
	Content    string
	MessageID  string
	Usage      *collab.GenerateResult
}

// PolicyEvaluator is the safety gate consulted before and after generation.
// *policy.Evaluator is the production implementation.
type PolicyEvaluator interface {
	EvaluateOutbound(ctx context.Context, lead *model.Lead, ws *model.Workspace, now time.Time) policy.Decision
	ValidateRisk(ctx context.Context, lead *model.Lead, ws *model.Workspace, content string) policy.Decision
}

// DecisionRecorder persists policy decisions best-effort.
type DecisionRecorder interface {
	Record(ctx context.Context, decision model.PolicyDecision)
}

// Orchestrator composes the policy evaluator, external collaborators, and
// storage into single turns.
type Orchestrator struct {
	evaluator PolicyEvaluator
	recorder  DecisionRecorder
	assembler collab.ContextAssembler
	generator collab.Generator

	leadRepo      storage.LeadRepo
	workspaceRepo storage.WorkspaceRepo
	threadRepo    storage.ThreadRepo
	queueRepo     storage.QueueRepo

	// disablePolicy skips both policy passes. Reachable only from tests in
	// this package; no constructor or config path sets it.
	disablePolicy bool
}

// NewOrchestrator wires a turn orchestrator.
func NewOrchestrator(
	evaluator PolicyEvaluator,
	recorder DecisionRecorder,
	assembler collab.ContextAssembler,
	generator collab.Generator,
	leadRepo storage.LeadRepo,
	workspaceRepo storage.WorkspaceRepo,
	threadRepo storage.ThreadRepo,
	queueRepo storage.QueueRepo,
) *Orchestrator {
	return &Orchestrator{
		evaluator:     evaluator,
		recorder:      recorder,
		assembler:     assembler,
		generator:     generator,
		leadRepo:      leadRepo,
		workspaceRepo: workspaceRepo,
		threadRepo:    threadRepo,
		queueRepo:     queueRepo,
	}
}

// RunTurn executes one turn. Policy denials come back as blocked results,
// not errors; generation failures propagate as errors with a failed result
// and no outbound row written.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	loggerCtx := logger.FromContext(ctx)
	now := utils.Now()
	startTime := now

	lead, err := o.leadRepo.FindLeadByID(ctx, req.LeadID)
	if err != nil {
		return TurnResult{Status: StatusFailed},
			apperrors.NewPermanent(err, "lead lookup failed")
	}

	ws, err := o.workspaceRepo.FindWorkspaceByID(ctx, req.WorkspaceID)
	if err != nil {
		return TurnResult{Status: StatusFailed},
			apperrors.NewPermanent(err, "workspace lookup failed")
	}

	// Step 1: pre-send policy gate. A deny here means no generation call is
	// made at all.
	if !o.disablePolicy {
		decision := o.evaluator.EvaluateOutbound(ctx, lead, ws, now)
		o.recorder.Record(ctx, decision.ToModel(lead, model.CheckKindPreSend))
		if !decision.AllowSend {
			loggerCtx.Info("Turn blocked by pre-send policy",
				zap.String("lead_id", lead.ID),
				zap.String("reason_code", decision.ReasonCode))
			observer.IncTurn(lead.TenantID, StatusBlocked, decision.ReasonCode)
			observer.ObserveTurnDuration(lead.TenantID, StatusBlocked, time.Since(startTime))
			return TurnResult{Status: StatusBlocked, ReasonCode: decision.ReasonCode}, nil
		}
	}

	// Step 2: assemble retrieval context.
	turnContext, err := o.assembler.BuildContext(ctx, lead, ws, req.UserMessage)
	if err != nil {
		observer.IncTurn(lead.TenantID, StatusFailed, "context_assembly")
		return TurnResult{Status: StatusFailed},
			apperrors.NewTransient(err, "context assembly failed")
	}

	// Steps 3-4: generate. External failure propagates; nothing has been
	// persisted for this turn yet beyond the audit row.
	genResult, err := o.generator.Generate(ctx, collab.GenerateRequest{
		TenantID:    lead.TenantID,
		WorkspaceID: ws.ID,
		LeadID:      lead.ID,
		Prompt:      req.UserMessage,
		Context:     turnContext,
		History:     req.History,
	})
	if err != nil {
		observer.IncTurn(lead.TenantID, StatusFailed, "generation")
		if apperrors.IsPermanent(err) {
			return TurnResult{Status: StatusFailed}, err
		}
		return TurnResult{Status: StatusFailed},
			apperrors.NewTransient(err, "generation failed")
	}

	// Step 5: risk-check the generated text. A deny discards the reply.
	if !o.disablePolicy {
		riskDecision := o.evaluator.ValidateRisk(ctx, lead, ws, genResult.Text)
		o.recorder.Record(ctx, riskDecision.ToModel(lead, model.CheckKindRisk))
		if !riskDecision.AllowSend {
			loggerCtx.Warn("Generated reply blocked by risk check",
				zap.String("lead_id", lead.ID),
				zap.String("reason_code", riskDecision.ReasonCode))
			observer.IncTurn(lead.TenantID, StatusBlocked, riskDecision.ReasonCode)
			observer.ObserveTurnDuration(lead.TenantID, StatusBlocked, time.Since(startTime))
			return TurnResult{Status: StatusBlocked, ReasonCode: riskDecision.ReasonCode}, nil
		}
	}

	// Step 6: persist outbound message + queue item atomically, then update
	// the lead's follow-up state.
	thread, err := o.threadRepo.GetOrCreateActiveThread(ctx, lead.ID, req.Channel)
	if err != nil {
		observer.IncTurn(lead.TenantID, StatusFailed, "thread")
		return TurnResult{Status: StatusFailed},
			apperrors.NewTransient(err, "thread resolution failed")
	}

	sentAt := utils.Now()
	outbound := model.Message{
		ID:                  uuid.NewString(),
		TenantID:            lead.TenantID,
		LeadID:              lead.ID,
		ThreadID:            thread.ID,
		Channel:             req.Channel,
		Direction:           model.DirectionOutbound,
		MessageType:         model.MessageTypeText,
		TextContent:         genResult.Text,
		DeliveryStatus:      model.StatusOutboundQueued,
		LLMProvider:         genResult.Provider,
		LLMModel:            genResult.Model,
		LLMPromptTokens:     genResult.PromptTokens,
		LLMCompletionTokens: genResult.CompletionTokens,
		LLMTotalTokens:      genResult.TotalTokens,
		LLMEstimatedCostUSD: genResult.EstimatedCostUSD,
		CreatedAt:           sentAt,
	}
	item := model.QueueItem{
		ID:            uuid.NewString(),
		TenantID:      lead.TenantID,
		MessageID:     outbound.ID,
		Status:        model.QueueStatusQueued,
		NextAttemptAt: sentAt,
		CreatedAt:     sentAt,
	}

	if err := o.queueRepo.CreateWithQueueItem(ctx, &outbound, &item); err != nil {
		observer.IncTurn(lead.TenantID, StatusFailed, "enqueue")
		return TurnResult{Status: StatusFailed},
			apperrors.NewTransient(err, "failed to enqueue outbound message")
	}

	if err := o.leadRepo.MarkFollowupSent(ctx, lead.ID, sentAt); err != nil {
		// The reply is already queued; follow-up bookkeeping failure must not
		// fail the turn.
		loggerCtx.Warn("Failed to update lead followup state after send",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
	}

	if lead.Stage == model.StageNew {
		if err := o.leadRepo.UpdateLeadStage(ctx, lead.ID, model.StageContacted); err != nil {
			loggerCtx.Warn("Failed to advance lead stage after first outbound",
				zap.String("lead_id", lead.ID),
				zap.Error(err))
		}
	}

	observer.IncTurn(lead.TenantID, StatusSent, model.ReasonPolicyPassed)
	observer.ObserveTurnDuration(lead.TenantID, StatusSent, time.Since(startTime))
	loggerCtx.Info("Turn completed",
		zap.String("lead_id", lead.ID),
		zap.String("message_id", outbound.ID),
		zap.Int("total_tokens", genResult.TotalTokens))

	return TurnResult{
		Status:    StatusSent,
		Content:   genResult.Text,
		MessageID: outbound.ID,
		Usage:     genResult,
	}, nil
}
