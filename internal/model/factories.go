package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// JSONBFromStrings encodes a string slice as a JSONB column value.
func JSONBFromStrings(items []string) datatypes.JSON {
	return datatypes.JSON(utils.MustMarshalJSON(items))
}

// JSONBFromMap encodes a map as a JSONB column value.
func JSONBFromMap(data map[string]interface{}) datatypes.JSON {
	return datatypes.JSON(utils.MustMarshalJSON(data))
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewLead creates a Lead with default fake data.
func NewLead(overrideDefaults ...*Lead) *Lead {
	base := &Lead{
		ID:          uuid.NewString(),
		TenantID:    "tenant_" + gofakeit.LetterN(10),
		WorkspaceID: uuid.NewString(),
		ExternalID:  gofakeit.Phone(),
		Stage:       gofakeit.RandomString(ActiveStages()),
		Timezone:    "Asia/Jakarta",
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.TenantID != "" {
			base.TenantID = ovr.TenantID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ExternalID != "" {
			base.ExternalID = ovr.ExternalID
		}
		if ovr.Stage != "" {
			base.Stage = ovr.Stage
		}
		if ovr.Timezone != "" {
			base.Timezone = ovr.Timezone
		}
		if len(ovr.Tags) > 0 {
			base.Tags = ovr.Tags
		}
		if ovr.LastFollowupAt != nil {
			base.LastFollowupAt = ovr.LastFollowupAt
		}
		if ovr.NextFollowupAt != nil {
			base.NextFollowupAt = ovr.NextFollowupAt
		}
		if ovr.LastFollowupReviewAt != nil {
			base.LastFollowupReviewAt = ovr.LastFollowupReviewAt
		}
	}
	return base
}

// NewThread creates a Thread with default fake data.
func NewThread(overrideDefaults ...*Thread) *Thread {
	base := &Thread{
		ID:        uuid.NewString(),
		TenantID:  "tenant_" + gofakeit.LetterN(10),
		LeadID:    uuid.NewString(),
		Channel:   "whatsapp",
		Status:    ThreadStatusActive,
		CreatedAt: utils.Now().Add(-time.Duration(gofakeit.Number(1, 48)) * time.Hour),
		UpdatedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.TenantID != "" {
			base.TenantID = ovr.TenantID
		}
		if ovr.LeadID != "" {
			base.LeadID = ovr.LeadID
		}
		if ovr.Channel != "" {
			base.Channel = ovr.Channel
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.AgentID != "" {
			base.AgentID = ovr.AgentID
		}
	}
	return base
}

// NewMessage creates a Message with default fake data (inbound text by default).
func NewMessage(overrideDefaults ...*Message) *Message {
	base := &Message{
		ID:             uuid.NewString(),
		TenantID:       "tenant_" + gofakeit.LetterN(10),
		LeadID:         uuid.NewString(),
		ThreadID:       uuid.NewString(),
		Channel:        "whatsapp",
		Direction:      DirectionInbound,
		MessageType:    MessageTypeText,
		TextContent:    gofakeit.Sentence(8),
		DeliveryStatus: StatusReceived,
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 60)) * time.Minute),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.TenantID != "" {
			base.TenantID = ovr.TenantID
		}
		if ovr.LeadID != "" {
			base.LeadID = ovr.LeadID
		}
		if ovr.ThreadID != "" {
			base.ThreadID = ovr.ThreadID
		}
		if ovr.Channel != "" {
			base.Channel = ovr.Channel
		}
		if ovr.Direction != "" {
			base.Direction = ovr.Direction
		}
		if ovr.MessageType != "" {
			base.MessageType = ovr.MessageType
		}
		if ovr.TextContent != "" {
			base.TextContent = ovr.TextContent
		}
		if ovr.MediaURL != "" {
			base.MediaURL = ovr.MediaURL
		}
		if ovr.MimeType != "" {
			base.MimeType = ovr.MimeType
		}
		if len(ovr.RawPayload) > 0 {
			base.RawPayload = ovr.RawPayload
		}
		if ovr.DeliveryStatus != "" {
			base.DeliveryStatus = ovr.DeliveryStatus
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
	}
	return base
}

// NewQueueItem creates a QueueItem with default fake data.
func NewQueueItem(overrideDefaults ...*QueueItem) *QueueItem {
	base := &QueueItem{
		ID:            uuid.NewString(),
		TenantID:      "tenant_" + gofakeit.LetterN(10),
		MessageID:     uuid.NewString(),
		Status:        QueueStatusQueued,
		RetryCount:    0,
		NextAttemptAt: utils.Now(),
		CreatedAt:     utils.Now(),
		UpdatedAt:     utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.TenantID != "" {
			base.TenantID = ovr.TenantID
		}
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.RetryCount != 0 {
			base.RetryCount = ovr.RetryCount
		}
		if !ovr.NextAttemptAt.IsZero() {
			base.NextAttemptAt = ovr.NextAttemptAt
		}
		if ovr.LastError != "" {
			base.LastError = ovr.LastError
		}
	}
	return base
}

// NewWorkspace creates a Workspace with default fake data.
func NewWorkspace(overrideDefaults ...*Workspace) *Workspace {
	base := &Workspace{
		ID:             uuid.NewString(),
		TenantID:       "tenant_" + gofakeit.LetterN(10),
		Name:           gofakeit.Company(),
		Timezone:       "Asia/Jakarta",
		FollowupPreset: PresetBalanced,
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 1000)) * time.Hour),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.TenantID != "" {
			base.TenantID = ovr.TenantID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Timezone != "" {
			base.Timezone = ovr.Timezone
		}
		if ovr.FollowupPreset != "" {
			base.FollowupPreset = ovr.FollowupPreset
		}
		if len(ovr.SensitiveTerms) > 0 {
			base.SensitiveTerms = ovr.SensitiveTerms
		}
	}
	return base
}
