package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/model"
	storagemock "github.com/aiworkforme/outreach-engine/internal/storage/mock"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

func init() {
	// Initialize logger for tests
	logger.Log = zap.NewNop()
}

// Wednesday noon UTC: inside quiet hours for a UTC lead, not a Sunday.
var wednesdayNoon = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestEvaluator(t *testing.T) (*Evaluator, *storagemock.MessageRepoMock, *storagemock.LeadRepoMock) {
	t.Helper()
	messageRepo := new(storagemock.MessageRepoMock)
	leadRepo := new(storagemock.LeadRepoMock)
	return NewEvaluator(messageRepo, leadRepo, nil), messageRepo, leadRepo
}

func clearLead() *model.Lead {
	return model.NewLead(&model.Lead{
		Stage:    model.StageContacted,
		Timezone: "UTC",
	})
}

func TestEvaluateOutbound_AllClear(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := clearLead()
	messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).Return(0, nil, nil)

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.True(t, decision.AllowSend)
	assert.Equal(t, model.ReasonPolicyPassed, decision.ReasonCode)
	// Every rule contributed a pass entry plus the final default.
	assert.Len(t, decision.Trace, 7)
	for _, entry := range decision.Trace {
		assert.Equal(t, "pass", entry.Outcome)
	}
}

func TestEvaluateOutbound_SuppressedStage(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := model.NewLead(&model.Lead{Stage: model.StageSuppressed, Timezone: "UTC"})

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonOptOutSuppression, decision.ReasonCode)
	assert.Len(t, decision.Trace, 1)
	assert.Equal(t, "suppression", decision.Trace[0].Rule)
	messageRepo.AssertNotCalled(t, "OutboundSinceLastInbound", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluateOutbound_DisconnectTagBeatsTakeover(t *testing.T) {
	evaluator, _, _ := newTestEvaluator(t)
	lead := model.NewLead(&model.Lead{
		Stage:    model.StageTakeOver,
		Timezone: "UTC",
		Tags:     model.JSONBFromStrings([]string{model.TagDisconnect}),
	})

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonOptOutSuppression, decision.ReasonCode)
}

func TestEvaluateOutbound_TakeoverBeatsRollingCap(t *testing.T) {
	evaluator, _, _ := newTestEvaluator(t)
	lastFollowup := wednesdayNoon.Add(-1 * time.Hour)
	lead := model.NewLead(&model.Lead{
		Stage:          model.StageTakeOver,
		Timezone:       "UTC",
		LastFollowupAt: &lastFollowup,
	})

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonHumanTakeoverActive, decision.ReasonCode)
}

func TestEvaluateOutbound_RollingCapBoundaries(t *testing.T) {
	testCases := []struct {
		name      string
		sinceLast time.Duration
		allow     bool
	}{
		{name: "one minute inside the window", sinceLast: 24*time.Hour - time.Minute, allow: false},
		{name: "exactly at the window edge", sinceLast: 24 * time.Hour, allow: true},
		{name: "one minute past the window", sinceLast: 24*time.Hour + time.Minute, allow: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator, messageRepo, _ := newTestEvaluator(t)
			lastFollowup := wednesdayNoon.Add(-tc.sinceLast)
			lead := model.NewLead(&model.Lead{
				Stage:          model.StageContacted,
				Timezone:       "UTC",
				LastFollowupAt: &lastFollowup,
			})
			messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).Return(0, nil, nil)

			decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

			assert.Equal(t, tc.allow, decision.AllowSend)
			if !tc.allow {
				assert.Equal(t, model.ReasonOutboundCap24h, decision.ReasonCode)
				assert.Contains(t, decision.Trace[len(decision.Trace)-1].Detail, "next_allowed_at=")
			}
		})
	}
}

func TestEvaluateOutbound_QuietHoursBoundaries(t *testing.T) {
	testCases := []struct {
		name  string
		hour  int
		min   int
		sec   int
		allow bool
	}{
		{name: "start of window", hour: 9, min: 0, sec: 0, allow: true},
		{name: "one second before window", hour: 8, min: 59, sec: 59, allow: false},
		{name: "just before window", hour: 8, min: 59, sec: 0, allow: false},
		{name: "end of window", hour: 21, min: 0, sec: 0, allow: true},
		{name: "one second after window", hour: 21, min: 0, sec: 1, allow: false},
		{name: "just after window", hour: 21, min: 1, sec: 0, allow: false},
		{name: "middle of night", hour: 2, min: 30, sec: 0, allow: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator, messageRepo, _ := newTestEvaluator(t)
			lead := clearLead()
			messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).Return(0, nil, nil)
			now := time.Date(2025, 3, 5, tc.hour, tc.min, tc.sec, 0, time.UTC)

			decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, now)

			assert.Equal(t, tc.allow, decision.AllowSend)
			if !tc.allow {
				assert.Equal(t, model.ReasonQuietHoursActive, decision.ReasonCode)
			}
		})
	}
}

func TestEvaluateOutbound_QuietHoursUseLeadTimezone(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	// 12:00 UTC is 19:00 in Jakarta: allowed there, but would be denied for a
	// lead sitting at UTC-8.
	lead := model.NewLead(&model.Lead{Stage: model.StageContacted, Timezone: "Asia/Jakarta"})
	messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).Return(0, nil, nil)

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.True(t, decision.AllowSend)
}

func TestEvaluateOutbound_TimezoneFallsBackToWorkspace(t *testing.T) {
	evaluator, _, _ := newTestEvaluator(t)
	lead := model.NewLead(&model.Lead{Stage: model.StageContacted})
	lead.Timezone = ""
	// 12:00 UTC is 07:00 in New York, before the window opens.
	ws := model.NewWorkspace(&model.Workspace{Timezone: "America/New_York"})

	decision := evaluator.EvaluateOutbound(context.Background(), lead, ws, wednesdayNoon)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonQuietHoursActive, decision.ReasonCode)
	assert.Contains(t, decision.Trace[len(decision.Trace)-1].Detail, "tz_source=workspace")
}

func TestEvaluateOutbound_TimezoneFallsBackToUTC(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := model.NewLead(&model.Lead{Stage: model.StageContacted})
	lead.Timezone = "Not/AZone"
	messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).Return(0, nil, nil)

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.True(t, decision.AllowSend)
	found := false
	for _, entry := range decision.Trace {
		if entry.Rule == "quiet_hours" {
			assert.Contains(t, entry.Detail, "tz_source=fallback")
			found = true
		}
	}
	assert.True(t, found)
}

func TestEvaluateOutbound_SundayHoldUsesUTC(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := clearLead()
	sundayNoon := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, sundayNoon)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonSundayHold, decision.ReasonCode)
	// The chain stopped before the stop rule.
	messageRepo.AssertNotCalled(t, "OutboundSinceLastInbound", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluateOutbound_QuietHoursBeatSunday(t *testing.T) {
	evaluator, _, _ := newTestEvaluator(t)
	lead := clearLead()
	sundayNight := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, sundayNight)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonQuietHoursActive, decision.ReasonCode)
}

func TestEvaluateOutbound_StopRuleBoundary(t *testing.T) {
	testCases := []struct {
		name       string
		unanswered int
		allow      bool
	}{
		{name: "under the limit", unanswered: 4, allow: true},
		{name: "at the limit", unanswered: 5, allow: false},
		{name: "over the limit", unanswered: 9, allow: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator, messageRepo, _ := newTestEvaluator(t)
			lead := clearLead()
			messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).
				Return(tc.unanswered, nil, nil)

			decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

			assert.Equal(t, tc.allow, decision.AllowSend)
			if !tc.allow {
				assert.Equal(t, model.ReasonStopRuleMaxUnanswered, decision.ReasonCode)
			}
		})
	}
}

func TestEvaluateOutbound_StopRuleResetByInbound(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := clearLead()
	// Seven sends happened historically, but only two since the lead last
	// replied: the count the repo reports is the post-reply count.
	lastInbound := wednesdayNoon.Add(-2 * time.Hour)
	messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).
		Return(2, &lastInbound, nil)

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.True(t, decision.AllowSend)
}

func TestEvaluateOutbound_StopRuleFailsClosed(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := clearLead()
	messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).
		Return(0, nil, errors.New("connection reset"))

	decision := evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonStopRuleMaxUnanswered, decision.ReasonCode)
	assert.Contains(t, decision.Trace[len(decision.Trace)-1].Detail, "count unavailable")
}

func TestEvaluateOutbound_StopRuleFallbackCutoff(t *testing.T) {
	evaluator, messageRepo, _ := newTestEvaluator(t)
	lead := clearLead()
	var gotCutoff time.Time
	messageRepo.On("OutboundSinceLastInbound", mock.Anything, lead.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			gotCutoff = args.Get(2).(time.Time)
		}).
		Return(0, nil, nil)

	evaluator.EvaluateOutbound(context.Background(), lead, nil, wednesdayNoon)

	assert.Equal(t, wednesdayNoon.Add(-14*24*time.Hour), gotCutoff)
}

func TestValidateRisk_MatchDeniesAndTags(t *testing.T) {
	evaluator, _, leadRepo := newTestEvaluator(t)
	lead := clearLead()
	ws := model.NewWorkspace(&model.Workspace{
		SensitiveTerms: model.JSONBFromStrings([]string{"guarantee", "refund"}),
	})
	leadRepo.On("AddLeadTag", mock.Anything, lead.ID, model.TagStrategyReviewRequired).Return(nil)

	decision := evaluator.ValidateRisk(context.Background(), lead, ws, "We GUARANTEE you will love it")

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonRiskyContentBlock, decision.ReasonCode)
	assert.Contains(t, decision.Trace[0].Detail, "matched_term=guarantee")
	leadRepo.AssertCalled(t, "AddLeadTag", mock.Anything, lead.ID, model.TagStrategyReviewRequired)
}

func TestValidateRisk_TagFailureStillDenies(t *testing.T) {
	evaluator, _, leadRepo := newTestEvaluator(t)
	lead := clearLead()
	ws := model.NewWorkspace(&model.Workspace{
		SensitiveTerms: model.JSONBFromStrings([]string{"lawsuit"}),
	})
	leadRepo.On("AddLeadTag", mock.Anything, lead.ID, model.TagStrategyReviewRequired).
		Return(errors.New("db down"))

	decision := evaluator.ValidateRisk(context.Background(), lead, ws, "they filed a lawsuit")

	assert.False(t, decision.AllowSend)
	assert.Equal(t, model.ReasonRiskyContentBlock, decision.ReasonCode)
}

func TestValidateRisk_CleanContentPasses(t *testing.T) {
	evaluator, _, leadRepo := newTestEvaluator(t)
	lead := clearLead()
	ws := model.NewWorkspace(&model.Workspace{
		SensitiveTerms: model.JSONBFromStrings([]string{"guarantee"}),
	})

	decision := evaluator.ValidateRisk(context.Background(), lead, ws, "Happy to walk you through our pricing.")

	assert.True(t, decision.AllowSend)
	assert.Equal(t, model.ReasonRiskCheckPassed, decision.ReasonCode)
	leadRepo.AssertNotCalled(t, "AddLeadTag", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateRisk_FallsBackToDefaultTerms(t *testing.T) {
	evaluator, _, leadRepo := newTestEvaluator(t)
	lead := clearLead()
	// Workspace with no term list: the built-in list applies.
	ws := model.NewWorkspace()
	leadRepo.On("AddLeadTag", mock.Anything, lead.ID, model.TagStrategyReviewRequired).Return(nil)

	decision := evaluator.ValidateRisk(context.Background(), lead, ws, "just do a wire transfer")

	assert.False(t, decision.AllowSend)
}

func TestDecisionToModel(t *testing.T) {
	lead := clearLead()
	decision := Decision{
		AllowSend:  false,
		ReasonCode: model.ReasonQuietHoursActive,
		Trace:      []TraceEntry{{Rule: "quiet_hours", Outcome: "deny", Detail: "local_time=23:00"}},
	}

	row := decision.ToModel(lead, model.CheckKindPreSend)

	assert.Equal(t, lead.TenantID, row.TenantID)
	assert.Equal(t, lead.WorkspaceID, row.WorkspaceID)
	assert.Equal(t, lead.ID, row.LeadID)
	assert.Equal(t, model.CheckKindPreSend, row.CheckKind)
	assert.False(t, row.AllowSend)
	assert.Equal(t, model.ReasonQuietHoursActive, row.ReasonCode)
	assert.Contains(t, string(row.RuleTrace), "quiet_hours")
}
