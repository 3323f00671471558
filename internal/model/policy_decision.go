package model

import (
	"time"

	"gorm.io/datatypes"
)

// Policy decision reason codes, in rule-chain order.
const (
	ReasonOptOutSuppression     = "OPT_OUT_SUPPRESSION"
	ReasonHumanTakeoverActive   = "HUMAN_TAKEOVER_ACTIVE"
	ReasonOutboundCap24h        = "OUTBOUND_CAP_24H"
	ReasonQuietHoursActive      = "QUIET_HOURS_ACTIVE"
	ReasonSundayHold            = "SUNDAY_HOLD"
	ReasonStopRuleMaxUnanswered = "STOP_RULE_MAX_UNANSWERED"
	ReasonPolicyPassed          = "POLICY_PASSED"
	ReasonRiskyContentBlock     = "RISKY_CONTENT_BLOCK"
	ReasonRiskCheckPassed       = "RISK_CHECK_PASSED"
)

// Policy check kinds.
const (
	CheckKindPreSend = "pre_send"
	CheckKindRisk    = "risk"
)

// PolicyDecision is an append-only audit record of one evaluator call.
// Never updated or deleted.
type PolicyDecision struct {
	ID          string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"column:tenant_id;index"`
	WorkspaceID string         `json:"workspace_id" gorm:"column:workspace_id;index"`
	LeadID      string         `json:"lead_id" gorm:"column:lead_id;index"`
	CheckKind   string         `json:"check_kind" gorm:"column:check_kind"`
	AllowSend   bool           `json:"allow_send" gorm:"column:allow_send"`
	ReasonCode  string         `json:"reason_code" gorm:"column:reason_code"`
	RuleTrace   datatypes.JSON `json:"rule_trace,omitempty" gorm:"type:jsonb;column:rule_trace"`
	CreatedAt   time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (PolicyDecision) TableName() string {
	return "policy_decisions"
}
