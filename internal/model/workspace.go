package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// Follow-up presets and their base intervals in hours.
const (
	PresetGentle     = "GENTLE"
	PresetBalanced   = "BALANCED"
	PresetAggressive = "AGGRESSIVE"
)

// Workspace carries the per-workspace settings the pipeline reads: timezone
// fallback for quiet hours, the active strategy's follow-up preset, and the
// sensitive-term list for the risk check.
type Workspace struct {
	ID             string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID       string         `json:"tenant_id" gorm:"column:tenant_id;index"`
	Name           string         `json:"name,omitempty" gorm:"column:name"`
	Timezone       string         `json:"timezone,omitempty" gorm:"column:timezone"`
	FollowupPreset string         `json:"followup_preset,omitempty" gorm:"column:followup_preset"`
	SensitiveTerms datatypes.JSON `json:"sensitive_terms,omitempty" gorm:"type:jsonb;column:sensitive_terms"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Workspace) TableName() string {
	return "workspaces"
}

// FollowupBaseHours maps the preset to its base follow-up interval.
// Unknown presets fall back to BALANCED.
func (w *Workspace) FollowupBaseHours() int {
	switch w.FollowupPreset {
	case PresetGentle:
		return 72
	case PresetAggressive:
		return 24
	default:
		return 48
	}
}

// SensitiveTermList decodes the JSONB sensitive_terms column.
func (w *Workspace) SensitiveTermList() []string {
	if len(w.SensitiveTerms) == 0 {
		return nil
	}
	var terms []string
	if err := utils.UnmarshalJSON(w.SensitiveTerms, &terms); err != nil {
		return nil
	}
	return terms
}
