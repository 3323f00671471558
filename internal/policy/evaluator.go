// Package policy implements the outbound safety floor: an ordered rule chain
// gating every send, plus a post-generation risk check. First matching deny
// wins; the order of the rules is a correctness contract.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

const (
	outboundCapWindow     = 24 * time.Hour
	quietHoursStartSec    = 9 * 3600  // 09:00:00 local, inclusive
	quietHoursEndSec      = 21 * 3600 // 21:00:00 local, inclusive
	stopRuleMaxUnanswered = 5
	stopRuleFallbackDays  = 14
)

// defaultSensitiveTerms is the built-in risk list used when the workspace has
// none configured and config supplies nothing.
var defaultSensitiveTerms = []string{
	"guarantee",
	"guaranteed results",
	"refund",
	"lawsuit",
	"legal action",
	"medical advice",
	"diagnosis",
	"investment advice",
	"wire transfer",
}

// TraceEntry is one rule's contribution to the audit trail. Appended whether
// the rule denied or passed.
type TraceEntry struct {
	Rule    string `json:"rule"`
	Outcome string `json:"outcome"` // "deny" or "pass"
	Detail  string `json:"detail,omitempty"`
}

// Decision is the outcome of one evaluator call.
type Decision struct {
	AllowSend  bool
	ReasonCode string
	Trace      []TraceEntry
}

// ToModel converts a decision into its append-only audit row.
func (d Decision) ToModel(lead *model.Lead, checkKind string) model.PolicyDecision {
	return model.PolicyDecision{
		TenantID:    lead.TenantID,
		WorkspaceID: lead.WorkspaceID,
		LeadID:      lead.ID,
		CheckKind:   checkKind,
		AllowSend:   d.AllowSend,
		ReasonCode:  d.ReasonCode,
		RuleTrace:   model.JSONBFromMap(map[string]interface{}{"entries": d.Trace}),
	}
}

// Evaluator runs the pre-send rule chain and the post-generation risk check.
type Evaluator struct {
	messageRepo    storage.MessageRepo
	leadRepo       storage.LeadRepo
	sensitiveTerms []string
}

// NewEvaluator builds an evaluator. configTerms overrides the built-in
// default risk list (workspace terms still take precedence per call).
func NewEvaluator(messageRepo storage.MessageRepo, leadRepo storage.LeadRepo, configTerms []string) *Evaluator {
	terms := defaultSensitiveTerms
	if len(configTerms) > 0 {
		terms = configTerms
	}
	return &Evaluator{
		messageRepo:    messageRepo,
		leadRepo:       leadRepo,
		sensitiveTerms: terms,
	}
}

// EvaluateOutbound runs the ordered rule chain for a prospective send.
// Rules after the first deny are not evaluated; their absence from the trace
// marks where the chain stopped.
func (e *Evaluator) EvaluateOutbound(ctx context.Context, lead *model.Lead, ws *model.Workspace, now time.Time) Decision {
	var trace []TraceEntry
	deny := func(rule, reason, detail string) Decision {
		trace = append(trace, TraceEntry{Rule: rule, Outcome: "deny", Detail: detail})
		observer.IncPolicyDecision(lead.TenantID, model.CheckKindPreSend, reason)
		return Decision{AllowSend: false, ReasonCode: reason, Trace: trace}
	}
	pass := func(rule, detail string) {
		trace = append(trace, TraceEntry{Rule: rule, Outcome: "pass", Detail: detail})
	}

	// 1. Suppression
	if lead.Stage == model.StageSuppressed || lead.HasTag(model.TagDisconnect) {
		return deny("suppression", model.ReasonOptOutSuppression,
			fmt.Sprintf("stage=%s disconnect_tag=%t", lead.Stage, lead.HasTag(model.TagDisconnect)))
	}
	pass("suppression", "")

	// 2. Human takeover
	if lead.Stage == model.StageTakeOver {
		return deny("human_takeover", model.ReasonHumanTakeoverActive, "stage=TAKE_OVER")
	}
	pass("human_takeover", "")

	// 3. Rolling 24h cap
	if lead.LastFollowupAt != nil && now.Sub(*lead.LastFollowupAt) < outboundCapWindow {
		nextAllowed := lead.LastFollowupAt.Add(outboundCapWindow)
		return deny("rolling_cap", model.ReasonOutboundCap24h,
			fmt.Sprintf("next_allowed_at=%s", utils.FormatISO8601(nextAllowed)))
	}
	pass("rolling_cap", "")

	// 4. Quiet hours
	loc, tzDetail := resolveTimezone(lead, ws)
	local := now.In(loc)
	// Second granularity: 21:00:00 is the last allowed instant, 21:00:01 is not.
	secondOfDay := local.Hour()*3600 + local.Minute()*60 + local.Second()
	if secondOfDay < quietHoursStartSec || secondOfDay > quietHoursEndSec {
		return deny("quiet_hours", model.ReasonQuietHoursActive,
			fmt.Sprintf("local_time=%s %s", local.Format("15:04:05"), tzDetail))
	}
	pass("quiet_hours", tzDetail)

	// 5. Sunday hold, checked in UTC
	if now.UTC().Weekday() == time.Sunday {
		return deny("sunday_hold", model.ReasonSundayHold, "utc_weekday=Sunday")
	}
	pass("sunday_hold", "")

	// 6. Stop rule
	fallbackCutoff := now.Add(-stopRuleFallbackDays * 24 * time.Hour)
	unanswered, lastInboundAt, err := e.messageRepo.OutboundSinceLastInbound(ctx, lead.ID, fallbackCutoff)
	if err != nil {
		// Fail closed: an unverifiable stop-rule window must not allow a send.
		logger.FromContext(ctx).Error("Stop rule count failed, denying send",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		return deny("stop_rule", model.ReasonStopRuleMaxUnanswered, "count unavailable: "+err.Error())
	}
	if unanswered >= stopRuleMaxUnanswered {
		detail := fmt.Sprintf("unanswered_outbound=%d", unanswered)
		if lastInboundAt != nil {
			detail += " since_last_inbound=" + utils.FormatISO8601(*lastInboundAt)
		} else {
			detail += " no_inbound_within_window"
		}
		return deny("stop_rule", model.ReasonStopRuleMaxUnanswered, detail)
	}
	pass("stop_rule", fmt.Sprintf("unanswered_outbound=%d", unanswered))

	// 7. All clear
	trace = append(trace, TraceEntry{Rule: "default", Outcome: "pass"})
	observer.IncPolicyDecision(lead.TenantID, model.CheckKindPreSend, model.ReasonPolicyPassed)
	return Decision{AllowSend: true, ReasonCode: model.ReasonPolicyPassed, Trace: trace}
}

// ValidateRisk scans generated text against the workspace's sensitive-term
// list (falling back to the configured defaults). A match denies the send and
// tags the lead for strategy review, best-effort.
func (e *Evaluator) ValidateRisk(ctx context.Context, lead *model.Lead, ws *model.Workspace, content string) Decision {
	terms := e.sensitiveTerms
	if ws != nil {
		if wsTerms := ws.SensitiveTermList(); len(wsTerms) > 0 {
			terms = wsTerms
		}
	}

	lowered := strings.ToLower(content)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(term)) {
			observer.IncPolicyDecision(lead.TenantID, model.CheckKindRisk, model.ReasonRiskyContentBlock)

			if err := e.leadRepo.AddLeadTag(ctx, lead.ID, model.TagStrategyReviewRequired); err != nil {
				logger.FromContext(ctx).Warn("Failed to tag lead for strategy review",
					zap.String("lead_id", lead.ID),
					zap.Error(err))
			}

			return Decision{
				AllowSend:  false,
				ReasonCode: model.ReasonRiskyContentBlock,
				Trace: []TraceEntry{{
					Rule:    "sensitive_terms",
					Outcome: "deny",
					Detail:  "matched_term=" + term,
				}},
			}
		}
	}

	observer.IncPolicyDecision(lead.TenantID, model.CheckKindRisk, model.ReasonRiskCheckPassed)
	return Decision{
		AllowSend:  true,
		ReasonCode: model.ReasonRiskCheckPassed,
		Trace: []TraceEntry{{
			Rule:    "sensitive_terms",
			Outcome: "pass",
			Detail:  fmt.Sprintf("terms_checked=%d", len(terms)),
		}},
	}
}

// resolveTimezone picks the lead timezone, else the workspace timezone, else
// UTC. The detail string lands in the rule trace.
func resolveTimezone(lead *model.Lead, ws *model.Workspace) (*time.Location, string) {
	if lead.Timezone != "" {
		if loc, err := time.LoadLocation(lead.Timezone); err == nil {
			return loc, "tz_source=lead tz=" + lead.Timezone
		}
	}
	if ws != nil && ws.Timezone != "" {
		if loc, err := time.LoadLocation(ws.Timezone); err == nil {
			return loc, "tz_source=workspace tz=" + ws.Timezone
		}
	}
	return time.UTC, "tz_source=fallback tz=UTC"
}
