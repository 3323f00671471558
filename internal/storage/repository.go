package storage

import (
	"context"
	"time"

	"github.com/aiworkforme/outreach-engine/internal/model"
)

// WorkspaceRepo defines workspace storage operations
type WorkspaceRepo interface {
	SaveWorkspace(ctx context.Context, ws model.Workspace) error
	FindWorkspaceByID(ctx context.Context, id string) (*model.Workspace, error)
}

// LeadRepo defines lead storage operations
type LeadRepo interface {
	SaveLead(ctx context.Context, lead model.Lead) error
	FindLeadByID(ctx context.Context, id string) (*model.Lead, error)
	UpdateLeadStage(ctx context.Context, leadID string, stage string) error
	AddLeadTag(ctx context.Context, leadID string, tag string) error

	// Follow-up planning, owned by the scheduling loop.
	UpdateFollowupSchedule(ctx context.Context, leadID string, nextFollowupAt time.Time, reviewedAt time.Time) error
	MarkFollowupSent(ctx context.Context, leadID string, sentAt time.Time) error
	DeferFollowup(ctx context.Context, leadID string, until time.Time) error
	ClearFollowup(ctx context.Context, leadID string) error
	FindLeadsForReview(ctx context.Context, reviewedBefore time.Time, limit int) ([]model.Lead, error)
	FindLeadsDueForFollowup(ctx context.Context, now time.Time, limit int) ([]model.Lead, error)
}

// ThreadRepo defines thread storage operations
type ThreadRepo interface {
	FindThreadByID(ctx context.Context, id string) (*model.Thread, error)
	GetOrCreateActiveThread(ctx context.Context, leadID string, channel string) (*model.Thread, error)
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	SaveMessage(ctx context.Context, message model.Message) error
	FindMessageByID(ctx context.Context, id string) (*model.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status string) error

	// ClaimInbound atomically moves a received inbound message to
	// inbound_processing. Returns false when another worker already won.
	ClaimInbound(ctx context.Context, messageID string) (bool, error)
	FindPendingInboundIDs(ctx context.Context, limit int) ([]string, error)

	// Policy input. Counts outbound messages sent after the lead's most
	// recent inbound message; when the lead has never replied it counts from
	// fallbackCutoff instead.
	OutboundSinceLastInbound(ctx context.Context, leadID string, fallbackCutoff time.Time) (int, *time.Time, error)
}

// QueueRepo defines outbound queue storage operations
type QueueRepo interface {
	// CreateWithQueueItem inserts the outbound message and its queue item in
	// one transaction; either both rows exist or neither does.
	CreateWithQueueItem(ctx context.Context, message *model.Message, item *model.QueueItem) error

	// ClaimNextReady picks the oldest ready item and moves it to dispatching.
	// Returns nil when nothing is ready.
	ClaimNextReady(ctx context.Context, now time.Time) (*model.QueueItem, error)

	MarkQueueItemDelivered(ctx context.Context, itemID string, status string, providerMessageID string) error
	MarkQueueItemRetry(ctx context.Context, itemID string, retryCount int, nextAttemptAt time.Time, lastError string) error
	MarkQueueItemFailed(ctx context.Context, itemID string, retryCount int, lastError string) error
	FindQueueItemByID(ctx context.Context, id string) (*model.QueueItem, error)
}

// DecisionRepo defines policy decision storage operations. Append-only.
type DecisionRepo interface {
	SavePolicyDecision(ctx context.Context, decision model.PolicyDecision) error
}
