// Package dispatch drains the outbound queue. It is the only caller of the
// channel send adapter; every delivery attempt and its outcome is expressed
// through queue item state transitions.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/config"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// Worker claims ready queue items one at a time and delivers them.
type Worker struct {
	cfg         config.DispatchConfig
	tenantID    string
	queueRepo   storage.QueueRepo
	messageRepo storage.MessageRepo
	leadRepo    storage.LeadRepo
	sender      collab.ChannelSender
	baseLogger  *zap.Logger
}

// NewWorker creates a dispatch worker.
func NewWorker(
	cfg config.DispatchConfig,
	tenantID string,
	queueRepo storage.QueueRepo,
	messageRepo storage.MessageRepo,
	leadRepo storage.LeadRepo,
	sender collab.ChannelSender,
	baseLogger *zap.Logger,
) *Worker {
	return &Worker{
		cfg:         cfg,
		tenantID:    tenantID,
		queueRepo:   queueRepo,
		messageRepo: messageRepo,
		leadRepo:    leadRepo,
		sender:      sender,
		baseLogger:  baseLogger.Named("dispatch_worker"),
	}
}

// Run drains the queue until the context is canceled. When an item was
// claimed the loop immediately tries the next one; it sleeps only when the
// queue is empty.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		item, err := w.queueRepo.ClaimNextReady(ctx, utils.Now())
		if err != nil {
			w.baseLogger.Error("Failed to claim queue item", zap.Error(err))
		} else if item != nil {
			w.dispatch(ctx, item)
			continue
		}

		select {
		case <-ctx.Done():
			w.baseLogger.Info("Dispatch worker stopping")
			return
		case <-ticker.C:
		}
	}
}

// dispatch delivers one claimed item and commits its outcome.
func (w *Worker) dispatch(ctx context.Context, item *model.QueueItem) {
	log := logger.FromContextOr(ctx, w.baseLogger).With(
		zap.String("item_id", item.ID),
		zap.String("message_id", item.MessageID))

	msg, err := w.messageRepo.FindMessageByID(ctx, item.MessageID)
	if err != nil {
		// A queue item without its message cannot ever dispatch.
		log.Error("Queued message not loadable, failing item", zap.Error(err))
		w.failItem(ctx, log, item, item.RetryCount, "message lookup failed: "+err.Error(), false)
		return
	}

	lead, err := w.leadRepo.FindLeadByID(ctx, msg.LeadID)
	if err != nil {
		log.Error("Lead lookup failed for dispatch", zap.Error(err))
		w.retryOrFail(ctx, log, item, msg, "lead lookup failed: "+err.Error())
		return
	}

	start := time.Now()
	providerID, sendErr := w.sender.Send(ctx, collab.OutboundMessage{
		TenantID:   msg.TenantID,
		MessageID:  msg.ID,
		LeadID:     msg.LeadID,
		ExternalID: lead.ExternalID,
		Channel:    msg.Channel,
		Text:       msg.TextContent,
	})
	observer.ObserveDispatchDuration(w.tenantID, time.Since(start))

	if sendErr != nil {
		log.Warn("Channel send failed",
			zap.Int("retry_count", item.RetryCount),
			zap.Error(sendErr))
		w.retryOrFail(ctx, log, item, msg, sendErr.Error())
		return
	}

	// Ack-based channels confirm delivery asynchronously; fire-and-forget
	// channels are done.
	status := model.QueueStatusSent
	if w.sender.AckBased() {
		status = model.QueueStatusAccepted
	}

	if err := w.queueRepo.MarkQueueItemDelivered(ctx, item.ID, status, providerID); err != nil {
		log.Error("Failed to mark queue item delivered", zap.Error(err))
		return
	}
	if err := w.messageRepo.UpdateMessageStatus(ctx, msg.ID, model.StatusOutboundSent); err != nil {
		log.Error("Failed to mark message sent", zap.Error(err))
	}

	observer.IncDispatchAttempt(w.tenantID, status)
	log.Info("Outbound message dispatched",
		zap.String("status", status),
		zap.String("provider_message_id", providerID))
}

// retryOrFail increments the retry count and either schedules the next
// attempt or fails the item terminally at the cap.
func (w *Worker) retryOrFail(ctx context.Context, log *zap.Logger, item *model.QueueItem, msg *model.Message, lastError string) {
	retryCount := item.RetryCount + 1

	if retryCount < w.cfg.MaxRetries {
		nextAttempt := utils.Now().Add(backoffDelay(retryCount, w.cfg.BackoffBase))
		if err := w.queueRepo.MarkQueueItemRetry(ctx, item.ID, retryCount, nextAttempt, lastError); err != nil {
			log.Error("Failed to schedule retry", zap.Error(err))
			return
		}
		observer.IncDispatchRetry(w.tenantID)
		observer.IncDispatchAttempt(w.tenantID, model.QueueStatusRetryScheduled)
		log.Info("Dispatch retry scheduled",
			zap.Int("retry_count", retryCount),
			zap.Time("next_attempt_at", nextAttempt))
		return
	}

	w.failItem(ctx, log, item, retryCount, lastError, true)
}

// failItem terminally fails the queue item and, when markMessage is set,
// its message. retryCount is persisted on the failed row.
func (w *Worker) failItem(ctx context.Context, log *zap.Logger, item *model.QueueItem, retryCount int, lastError string, markMessage bool) {
	if err := w.queueRepo.MarkQueueItemFailed(ctx, item.ID, retryCount, lastError); err != nil {
		log.Error("Failed to mark queue item failed", zap.Error(err))
		return
	}
	if markMessage {
		if err := w.messageRepo.UpdateMessageStatus(ctx, item.MessageID, model.StatusOutboundFailed); err != nil {
			log.Error("Failed to mark message failed", zap.Error(err))
		}
	}
	observer.IncDispatchAttempt(w.tenantID, model.QueueStatusFailed)
	log.Warn("Queue item failed terminally", zap.String("last_error", lastError))
}

// backoffDelay doubles the base delay per retry: base, 2*base, 4*base, ...
func backoffDelay(retryCount int, base time.Duration) time.Duration {
	if retryCount <= 0 {
		return base
	}
	return base * time.Duration(1<<uint(retryCount-1))
}
