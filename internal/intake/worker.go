// Package intake runs the inbound claim-and-process worker. Each inbound
// message moves received → inbound_processing → one of the three terminal
// inbound states; the claim is a conditional update, so multiple worker
// instances never process the same message twice.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/config"
	"github.com/aiworkforme/outreach-engine/internal/media"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/orchestrator"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

// TurnRunner executes one conversation turn for a lead.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.TurnRequest) (orchestrator.TurnResult, error)
}

// intakeTask is one claimed-or-claimable message handed to the pool.
type intakeTask struct {
	Ctx       context.Context
	MessageID string
}

// Worker consumes inbound messages via hybrid wake: NATS notifications
// drained first, with a periodic poll as the safety net.
type Worker struct {
	cfg         config.IntakeConfig
	tenantID    string
	messageRepo storage.MessageRepo
	leadRepo    storage.LeadRepo
	threadRepo  storage.ThreadRepo
	preparer    *media.Preparer
	orch        TurnRunner
	listener    *WakeListener // may be nil when no NATS is configured
	pool        *ants.PoolWithFunc
	baseLogger  *zap.Logger
}

// NewWorker creates the intake worker and its processing pool.
func NewWorker(
	cfg config.IntakeConfig,
	tenantID string,
	messageRepo storage.MessageRepo,
	leadRepo storage.LeadRepo,
	threadRepo storage.ThreadRepo,
	preparer *media.Preparer,
	orch TurnRunner,
	listener *WakeListener,
	baseLogger *zap.Logger,
) (*Worker, error) {
	w := &Worker{
		cfg:         cfg,
		tenantID:    tenantID,
		messageRepo: messageRepo,
		leadRepo:    leadRepo,
		threadRepo:  threadRepo,
		preparer:    preparer,
		orch:        orch,
		listener:    listener,
		baseLogger:  baseLogger.Named("intake_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(intakeTask)
		if !ok {
			w.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		w.processMessage(task.Ctx, task.MessageID)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			w.baseLogger.Error("Panic recovered in intake worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create intake worker pool: %w", err)
	}
	w.pool = pool

	w.baseLogger.Info("Intake worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("poll_interval", cfg.PollInterval))
	return w, nil
}

// Run drives the hybrid wake loop until the context is canceled. Wake
// notifications are drained first, up to the batch size per cycle; the
// ticker poll catches anything the listener missed.
func (w *Worker) Run(ctx context.Context) {
	if w.listener != nil {
		if err := w.listener.Start(); err != nil {
			w.baseLogger.Warn("Wake listener failed to start, relying on polling only", zap.Error(err))
		}
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var wake <-chan string
	if w.listener != nil {
		wake = w.listener.Wake()
	}

	for {
		select {
		case <-ctx.Done():
			w.baseLogger.Info("Intake worker stopping")
			return

		case id := <-wake:
			w.submit(ctx, id)
			w.drainWake(ctx, wake, w.cfg.BatchSize-1)
			observer.SetIntakeQueueLength(len(wake))

		case <-ticker.C:
			ids, err := w.messageRepo.FindPendingInboundIDs(ctx, w.cfg.BatchSize)
			if err != nil {
				w.baseLogger.Error("Failed to poll for pending inbound messages", zap.Error(err))
				continue
			}
			for _, id := range ids {
				w.submit(ctx, id)
			}
		}
	}
}

// drainWake pulls up to n already-buffered notifications without blocking.
func (w *Worker) drainWake(ctx context.Context, wake <-chan string, n int) {
	for i := 0; i < n; i++ {
		select {
		case id := <-wake:
			w.submit(ctx, id)
		default:
			return
		}
	}
}

// submit hands a message id to the pool.
func (w *Worker) submit(ctx context.Context, messageID string) {
	err := w.pool.Invoke(intakeTask{Ctx: ctx, MessageID: messageID})
	if err != nil {
		w.baseLogger.Warn("Failed to submit intake task to pool",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

// Stop releases the pool. In-flight tasks finish first.
func (w *Worker) Stop() {
	if w.listener != nil {
		w.listener.Close()
	}
	if w.pool != nil {
		w.pool.Release()
	}
	w.baseLogger.Info("Intake worker stopped")
}

// processMessage runs the full claim → prepare → turn cycle for one message.
// Every failure path lands in a terminal status; nothing here can kill the
// loop.
func (w *Worker) processMessage(ctx context.Context, messageID string) {
	log := logger.FromContextOr(ctx, w.baseLogger).With(zap.String("message_id", messageID))
	start := time.Now()

	claimed, err := w.messageRepo.ClaimInbound(ctx, messageID)
	if err != nil {
		log.Error("Claim attempt failed", zap.Error(err))
		return
	}
	observer.IncIntakeClaim(w.tenantID, claimed)
	if !claimed {
		log.Debug("Message already claimed by another worker")
		return
	}

	status := w.handleClaimed(ctx, log, messageID)

	observer.IncIntakeMessage(w.tenantID, status)
	observer.ObserveIntakeProcessingDuration(w.tenantID, time.Since(start))
}

// handleClaimed processes a message this worker owns and returns the
// terminal status it was marked with.
func (w *Worker) handleClaimed(ctx context.Context, log *zap.Logger, messageID string) string {
	msg, err := w.messageRepo.FindMessageByID(ctx, messageID)
	if err != nil {
		log.Error("Claimed message not loadable", zap.Error(err))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundError)
	}

	// Guard conditions short-circuit without invoking the orchestrator.
	if msg.ThreadID == "" {
		log.Warn("Inbound message has no thread assigned, routing to human takeover")
		return w.markTerminal(ctx, log, messageID, model.StatusInboundHumanTakeover)
	}
	thread, err := w.threadRepo.FindThreadByID(ctx, msg.ThreadID)
	if err != nil {
		log.Error("Thread lookup failed", zap.String("thread_id", msg.ThreadID), zap.Error(err))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundError)
	}
	if thread.AgentID == "" {
		log.Warn("No agent configured on thread, routing to human takeover",
			zap.String("thread_id", thread.ID))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundHumanTakeover)
	}

	lead, err := w.leadRepo.FindLeadByID(ctx, msg.LeadID)
	if err != nil {
		log.Error("Lead lookup failed", zap.String("lead_id", msg.LeadID), zap.Error(err))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundError)
	}

	prepared, err := w.preparer.Prepare(ctx, msg)
	if err != nil {
		log.Error("Media preparation failed", zap.Error(err))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundError)
	}
	if !prepared.ShouldRunTurn {
		log.Info("Message unprocessable, routing to human takeover",
			zap.String("skip_reason", prepared.SkipReason))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundHumanTakeover)
	}

	result, err := w.orch.RunTurn(ctx, orchestrator.TurnRequest{
		LeadID:      lead.ID,
		WorkspaceID: lead.WorkspaceID,
		Channel:     msg.Channel,
		UserMessage: prepared.PromptFragment,
	})
	if err != nil {
		log.Error("Turn failed", zap.Error(err))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundError)
	}

	switch result.Status {
	case orchestrator.StatusSent:
		return w.markTerminal(ctx, log, messageID, model.StatusInboundAIReplied)
	case orchestrator.StatusBlocked:
		log.Info("Turn blocked by policy, routing to human takeover",
			zap.String("reason_code", result.ReasonCode))
		return w.markTerminal(ctx, log, messageID, model.StatusInboundHumanTakeover)
	default:
		return w.markTerminal(ctx, log, messageID, model.StatusInboundError)
	}
}

// markTerminal finalizes the message status, best-effort, and returns the
// status for metrics.
func (w *Worker) markTerminal(ctx context.Context, log *zap.Logger, messageID string, status string) string {
	if err := w.messageRepo.UpdateMessageStatus(ctx, messageID, status); err != nil {
		log.Error("Failed to finalize message status",
			zap.String("target_status", status),
			zap.Error(err))
	}
	return status
}
