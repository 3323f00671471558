package model

import (
	"time"
)

// Thread statuses.
const (
	ThreadStatusActive   = "active"
	ThreadStatusArchived = "archived"
)

// Thread groups messages for one (lead, channel) pair. At most one active
// thread exists per pair; it is created lazily on first message.
type Thread struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"column:tenant_id;index"`
	LeadID    string    `json:"lead_id" gorm:"column:lead_id;index"`
	Channel   string    `json:"channel" gorm:"column:channel"`
	Status    string    `json:"status" gorm:"column:status"`
	AgentID   string    `json:"agent_id,omitempty" gorm:"column:agent_id"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Thread) TableName() string {
	return "threads"
}
