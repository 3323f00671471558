package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// Lead lifecycle stages.
const (
	StageNew        = "NEW"
	StageContacted  = "CONTACTED"
	StageEngaged    = "ENGAGED"
	StageQualified  = "QUALIFIED"
	StageTakeOver   = "TAKE_OVER"
	StageSuppressed = "SUPPRESSED"
	StageClosedLost = "CLOSED_LOST"
	StageClosedWon  = "CLOSED_WON"
)

// Well-known lead tags.
const (
	TagDisconnect             = "DISCONNECT"
	TagStrategyReviewRequired = "STRATEGY_REVIEW_REQUIRED"
)

// Lead represents a contactable prospect tracked through a stage lifecycle.
// The scheduling loop owns the follow-up timing fields; the orchestrator
// writes stage and tags after a send.
type Lead struct {
	ID                   string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID             string         `json:"tenant_id" gorm:"column:tenant_id;index"`
	WorkspaceID          string         `json:"workspace_id" gorm:"column:workspace_id;index"`
	ExternalID           string         `json:"external_id" gorm:"column:external_id;index"`
	Stage                string         `json:"stage" gorm:"column:stage;index"`
	Tags                 datatypes.JSON `json:"tags,omitempty" gorm:"type:jsonb;column:tags"`
	Timezone             string         `json:"timezone,omitempty" gorm:"column:timezone"`
	LastFollowupAt       *time.Time     `json:"last_followup_at,omitempty" gorm:"column:last_followup_at"`
	NextFollowupAt       *time.Time     `json:"next_followup_at,omitempty" gorm:"column:next_followup_at;index"`
	LastFollowupReviewAt *time.Time     `json:"last_followup_review_at,omitempty" gorm:"column:last_followup_review_at"`
	CreatedAt            time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Lead) TableName() string {
	return "leads"
}

// ActiveStages are the pre-outcome stages eligible for follow-up planning.
func ActiveStages() []string {
	return []string{StageNew, StageContacted, StageEngaged, StageQualified}
}

// TagList decodes the JSONB tags column into an ordered string slice.
func (l *Lead) TagList() []string {
	if len(l.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := utils.UnmarshalJSON(l.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// HasTag reports whether the lead carries the given tag.
func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag, preserving order and skipping duplicates.
func (l *Lead) AddTag(tag string) {
	if l.HasTag(tag) {
		return
	}
	tags := append(l.TagList(), tag)
	l.Tags = datatypes.JSON(utils.MustMarshalJSON(tags))
}
