package model

import (
	"time"
)

// Outbound queue item statuses. queued is the only claimable state;
// retry_scheduled items become claimable again once next_attempt_at passes.
const (
	QueueStatusQueued         = "queued"
	QueueStatusDispatching    = "dispatching"
	QueueStatusAccepted       = "accepted"
	QueueStatusSent           = "sent"
	QueueStatusRetryScheduled = "retry_scheduled"
	QueueStatusFailed         = "failed"
)

// QueueItem tracks delivery of exactly one outbound message. Created
// atomically with its message; only the dispatch queue mutates it.
type QueueItem struct {
	ID                string     `json:"id" gorm:"column:id;primaryKey"`
	TenantID          string     `json:"tenant_id" gorm:"column:tenant_id;index"`
	MessageID         string     `json:"message_id" gorm:"column:message_id;uniqueIndex"`
	Status            string     `json:"status" gorm:"column:status;index"`
	RetryCount        int        `json:"retry_count" gorm:"column:retry_count"`
	NextAttemptAt     time.Time  `json:"next_attempt_at" gorm:"column:next_attempt_at;index"`
	LastError         string     `json:"last_error,omitempty" gorm:"column:last_error"`
	ProviderMessageID string     `json:"provider_message_id,omitempty" gorm:"column:provider_message_id"`
	DispatchedAt      *time.Time `json:"dispatched_at,omitempty" gorm:"column:dispatched_at"`
	CreatedAt         time.Time  `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (QueueItem) TableName() string {
	return "outbound_queue"
}

// IsTerminalQueue reports whether the status ends the dispatch state machine.
func IsTerminalQueue(status string) bool {
	switch status {
	case QueueStatusAccepted, QueueStatusSent, QueueStatusFailed:
		return true
	}
	return false
}
