package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message types, classified from channel metadata.
const (
	MessageTypeText     = "text"
	MessageTypeDocument = "document"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeUnknown  = "unknown"
)

// Delivery statuses for inbound messages. received is the only claimable
// state; the three inbound_* outcomes are terminal for the intake worker.
const (
	StatusReceived             = "received"
	StatusInboundProcessing    = "inbound_processing"
	StatusInboundAIReplied     = "inbound_ai_replied"
	StatusInboundHumanTakeover = "inbound_human_takeover"
	StatusInboundError         = "inbound_error"
)

// Delivery statuses for outbound messages, mutated only by the dispatch queue.
const (
	StatusOutboundQueued = "outbound_queued"
	StatusOutboundSent   = "outbound_sent"
	StatusOutboundFailed = "outbound_failed"
)

// Message is a single unified inbound or outbound message on a thread.
// Inbound rows are mutated only by the worker that claimed them; outbound
// rows are mutated only by the dispatch queue.
type Message struct {
	ID                  string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID            string         `json:"tenant_id" gorm:"column:tenant_id;index"`
	LeadID              string         `json:"lead_id" gorm:"column:lead_id;index"`
	ThreadID            string         `json:"thread_id" gorm:"column:thread_id;index"`
	Channel             string         `json:"channel" gorm:"column:channel"`
	Direction           string         `json:"direction" gorm:"column:direction;index"`
	MessageType         string         `json:"message_type" gorm:"column:message_type"`
	TextContent         string         `json:"text_content,omitempty" gorm:"column:text_content"`
	MediaURL            string         `json:"media_url,omitempty" gorm:"column:media_url"`
	MimeType            string         `json:"mime_type,omitempty" gorm:"column:mime_type"`
	RawPayload          datatypes.JSON `json:"raw_payload,omitempty" gorm:"type:jsonb;column:raw_payload"`
	DeliveryStatus      string         `json:"delivery_status" gorm:"column:delivery_status;index"`
	LLMProvider         string         `json:"llm_provider,omitempty" gorm:"column:llm_provider"`
	LLMModel            string         `json:"llm_model,omitempty" gorm:"column:llm_model"`
	LLMPromptTokens     int            `json:"llm_prompt_tokens,omitempty" gorm:"column:llm_prompt_tokens"`
	LLMCompletionTokens int            `json:"llm_completion_tokens,omitempty" gorm:"column:llm_completion_tokens"`
	LLMTotalTokens      int            `json:"llm_total_tokens,omitempty" gorm:"column:llm_total_tokens"`
	LLMEstimatedCostUSD float64        `json:"llm_estimated_cost_usd,omitempty" gorm:"column:llm_estimated_cost_usd"`
	CreatedAt           time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// IsTerminalInbound reports whether the status ends the intake state machine.
func IsTerminalInbound(status string) bool {
	switch status {
	case StatusInboundAIReplied, StatusInboundHumanTakeover, StatusInboundError:
		return true
	}
	return false
}
