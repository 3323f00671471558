package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aiworkforme/outreach-engine/internal/model"
)

// --- WorkspaceRepo Mock ---

// WorkspaceRepoMock mocks the WorkspaceRepo interface
type WorkspaceRepoMock struct {
	mock.Mock
}

// SaveWorkspace mocks the SaveWorkspace method
func (m *WorkspaceRepoMock) SaveWorkspace(ctx context.Context, ws model.Workspace) error {
	args := m.Called(ctx, ws)
	return args.Error(0)
}

// FindWorkspaceByID mocks the FindWorkspaceByID method
func (m *WorkspaceRepoMock) FindWorkspaceByID(ctx context.Context, id string) (*model.Workspace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

// SaveLead mocks the SaveLead method
func (m *LeadRepoMock) SaveLead(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// FindLeadByID mocks the FindLeadByID method
func (m *LeadRepoMock) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// UpdateLeadStage mocks the UpdateLeadStage method
func (m *LeadRepoMock) UpdateLeadStage(ctx context.Context, leadID string, stage string) error {
	args := m.Called(ctx, leadID, stage)
	return args.Error(0)
}

// AddLeadTag mocks the AddLeadTag method
func (m *LeadRepoMock) AddLeadTag(ctx context.Context, leadID string, tag string) error {
	args := m.Called(ctx, leadID, tag)
	return args.Error(0)
}

// UpdateFollowupSchedule mocks the UpdateFollowupSchedule method
func (m *LeadRepoMock) UpdateFollowupSchedule(ctx context.Context, leadID string, nextFollowupAt time.Time, reviewedAt time.Time) error {
	args := m.Called(ctx, leadID, nextFollowupAt, reviewedAt)
	return args.Error(0)
}

// MarkFollowupSent mocks the MarkFollowupSent method
func (m *LeadRepoMock) MarkFollowupSent(ctx context.Context, leadID string, sentAt time.Time) error {
	args := m.Called(ctx, leadID, sentAt)
	return args.Error(0)
}

// DeferFollowup mocks the DeferFollowup method
func (m *LeadRepoMock) DeferFollowup(ctx context.Context, leadID string, until time.Time) error {
	args := m.Called(ctx, leadID, until)
	return args.Error(0)
}

// ClearFollowup mocks the ClearFollowup method
func (m *LeadRepoMock) ClearFollowup(ctx context.Context, leadID string) error {
	args := m.Called(ctx, leadID)
	return args.Error(0)
}

// FindLeadsForReview mocks the FindLeadsForReview method
func (m *LeadRepoMock) FindLeadsForReview(ctx context.Context, reviewedBefore time.Time, limit int) ([]model.Lead, error) {
	args := m.Called(ctx, reviewedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// FindLeadsDueForFollowup mocks the FindLeadsDueForFollowup method
func (m *LeadRepoMock) FindLeadsDueForFollowup(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// --- ThreadRepo Mock ---

// ThreadRepoMock mocks the ThreadRepo interface
type ThreadRepoMock struct {
	mock.Mock
}

// FindThreadByID mocks the FindThreadByID method
func (m *ThreadRepoMock) FindThreadByID(ctx context.Context, id string) (*model.Thread, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thread), args.Error(1)
}

// GetOrCreateActiveThread mocks the GetOrCreateActiveThread method
func (m *ThreadRepoMock) GetOrCreateActiveThread(ctx context.Context, leadID string, channel string) (*model.Thread, error) {
	args := m.Called(ctx, leadID, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thread), args.Error(1)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// SaveMessage mocks the SaveMessage method
func (m *MessageRepoMock) SaveMessage(ctx context.Context, message model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// FindMessageByID mocks the FindMessageByID method
func (m *MessageRepoMock) FindMessageByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// UpdateMessageStatus mocks the UpdateMessageStatus method
func (m *MessageRepoMock) UpdateMessageStatus(ctx context.Context, messageID string, status string) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

// ClaimInbound mocks the ClaimInbound method
func (m *MessageRepoMock) ClaimInbound(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

// FindPendingInboundIDs mocks the FindPendingInboundIDs method
func (m *MessageRepoMock) FindPendingInboundIDs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// OutboundSinceLastInbound mocks the OutboundSinceLastInbound method
func (m *MessageRepoMock) OutboundSinceLastInbound(ctx context.Context, leadID string, fallbackCutoff time.Time) (int, *time.Time, error) {
	args := m.Called(ctx, leadID, fallbackCutoff)
	var ts *time.Time
	if args.Get(1) != nil {
		ts = args.Get(1).(*time.Time)
	}
	return args.Int(0), ts, args.Error(2)
}

// --- QueueRepo Mock ---

// QueueRepoMock mocks the QueueRepo interface
type QueueRepoMock struct {
	mock.Mock
}

// CreateWithQueueItem mocks the CreateWithQueueItem method
func (m *QueueRepoMock) CreateWithQueueItem(ctx context.Context, message *model.Message, item *model.QueueItem) error {
	args := m.Called(ctx, message, item)
	return args.Error(0)
}

// ClaimNextReady mocks the ClaimNextReady method
func (m *QueueRepoMock) ClaimNextReady(ctx context.Context, now time.Time) (*model.QueueItem, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}

// MarkQueueItemDelivered mocks the MarkQueueItemDelivered method
func (m *QueueRepoMock) MarkQueueItemDelivered(ctx context.Context, itemID string, status string, providerMessageID string) error {
	args := m.Called(ctx, itemID, status, providerMessageID)
	return args.Error(0)
}

// MarkQueueItemRetry mocks the MarkQueueItemRetry method
func (m *QueueRepoMock) MarkQueueItemRetry(ctx context.Context, itemID string, retryCount int, nextAttemptAt time.Time, lastError string) error {
	args := m.Called(ctx, itemID, retryCount, nextAttemptAt, lastError)
	return args.Error(0)
}

// MarkQueueItemFailed mocks the MarkQueueItemFailed method
func (m *QueueRepoMock) MarkQueueItemFailed(ctx context.Context, itemID string, retryCount int, lastError string) error {
	args := m.Called(ctx, itemID, retryCount, lastError)
	return args.Error(0)
}

// FindQueueItemByID mocks the FindQueueItemByID method
func (m *QueueRepoMock) FindQueueItemByID(ctx context.Context, id string) (*model.QueueItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}

// --- DecisionRepo Mock ---

// DecisionRepoMock mocks the DecisionRepo interface
type DecisionRepoMock struct {
	mock.Mock
}

// SavePolicyDecision mocks the SavePolicyDecision method
func (m *DecisionRepoMock) SavePolicyDecision(ctx context.Context, decision model.PolicyDecision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}
