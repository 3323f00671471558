package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for turn metrics
	turnLabels = []string{"tenant_id", "status", "reason_code"}
	// Labels for policy decision metrics
	policyLabels = []string{"tenant_id", "check_kind", "reason_code"}
	// Labels for intake claim metrics
	claimLabels = []string{"tenant_id", "outcome"}
	// Labels for intake terminal outcomes
	intakeOutcomeLabels = []string{"tenant_id", "status"}
	// Labels for dispatch metrics
	dispatchLabels = []string{"tenant_id", "status"}
	// Labels for media preparation metrics
	mediaLabels = []string{"tenant_id", "message_type", "outcome"}
	// Labels for scheduler job metrics
	schedulerLabels = []string{"tenant_id", "job"}

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_turns_total",
			Help: "Total number of conversation turns, labeled by result status and reason code.",
		},
		turnLabels,
	)
	TurnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_engine_turn_duration_seconds",
			Help:    "Histogram of end-to-end conversation turn durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"tenant_id", "status"},
	)

	PolicyDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_policy_decisions_total",
			Help: "Total number of policy evaluations, labeled by check kind and reason code.",
		},
		policyLabels,
	)
	PolicyRecordFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_policy_record_failures_total",
			Help: "Total number of decision audit writes that failed and were swallowed.",
		},
		[]string{"tenant_id"},
	)

	IntakeClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_intake_claims_total",
			Help: "Total number of inbound claim attempts, labeled by outcome (won/lost).",
		},
		claimLabels,
	)
	IntakeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_intake_messages_total",
			Help: "Total number of inbound messages reaching a terminal status.",
		},
		intakeOutcomeLabels,
	)
	IntakeProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_engine_intake_processing_duration_seconds",
			Help:    "Histogram of inbound message processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"tenant_id"},
	)
	IntakeQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_engine_intake_queue_length",
		Help: "Current number of wake notifications waiting in the intake channel.",
	})

	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_dispatch_attempts_total",
			Help: "Total number of dispatch attempts, labeled by resulting queue status.",
		},
		dispatchLabels,
	)
	DispatchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_dispatch_retries_total",
			Help: "Total number of dispatch retries scheduled.",
		},
		[]string{"tenant_id"},
	)
	DispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_engine_dispatch_duration_seconds",
			Help:    "Histogram of channel send durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant_id"},
	)

	MediaPreparationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_media_preparations_total",
			Help: "Total number of media preparation runs, labeled by message type and outcome.",
		},
		mediaLabels,
	)

	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_scheduler_runs_total",
			Help: "Total number of scheduler job executions.",
		},
		schedulerLabels,
	)
	SchedulerLeadsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_scheduler_leads_processed_total",
			Help: "Total number of leads handled by scheduler jobs.",
		},
		schedulerLabels,
	)
)

// Tool result cache metrics
var (
	ToolCacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engine_tool_cache_checks_total",
			Help: "Total number of tool cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "tenant_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_engine_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics toggles metric collection. Metrics are auto-registered via
// promauto; this only controls whether the helpers record anything.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

// IncTurn increments the turn counter.
func IncTurn(tenant, status, reasonCode string) {
	if !metricsEnabled {
		return
	}
	TurnsTotal.WithLabelValues(sanitizeTenant(tenant), status, reasonCode).Inc()
}

// ObserveTurnDuration records a conversation turn duration.
func ObserveTurnDuration(tenant, status string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	TurnDurationSeconds.WithLabelValues(sanitizeTenant(tenant), status).Observe(duration.Seconds())
}

// IncPolicyDecision increments the policy decision counter.
func IncPolicyDecision(tenant, checkKind, reasonCode string) {
	if !metricsEnabled {
		return
	}
	PolicyDecisionsTotal.WithLabelValues(sanitizeTenant(tenant), checkKind, reasonCode).Inc()
}

// IncPolicyRecordFailure increments the swallowed audit-write counter.
func IncPolicyRecordFailure(tenant string) {
	if !metricsEnabled {
		return
	}
	PolicyRecordFailuresTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
}

// IncIntakeClaim increments the claim counter with outcome won or lost.
func IncIntakeClaim(tenant string, won bool) {
	if !metricsEnabled {
		return
	}
	outcome := "won"
	if !won {
		outcome = "lost"
	}
	IntakeClaimsTotal.WithLabelValues(sanitizeTenant(tenant), outcome).Inc()
}

// IncIntakeMessage increments the terminal-status counter for inbound messages.
func IncIntakeMessage(tenant, status string) {
	if !metricsEnabled {
		return
	}
	IntakeMessagesTotal.WithLabelValues(sanitizeTenant(tenant), status).Inc()
}

// ObserveIntakeProcessingDuration records one inbound processing duration.
func ObserveIntakeProcessingDuration(tenant string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	IntakeProcessingDurationSeconds.WithLabelValues(sanitizeTenant(tenant)).Observe(duration.Seconds())
}

// SetIntakeQueueLength sets the current wake channel depth.
func SetIntakeQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	IntakeQueueLength.Set(float64(length))
}

// IncDispatchAttempt increments the dispatch attempt counter.
func IncDispatchAttempt(tenant, status string) {
	if !metricsEnabled {
		return
	}
	DispatchAttemptsTotal.WithLabelValues(sanitizeTenant(tenant), status).Inc()
}

// IncDispatchRetry increments the dispatch retry counter.
func IncDispatchRetry(tenant string) {
	if !metricsEnabled {
		return
	}
	DispatchRetriesTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
}

// ObserveDispatchDuration records one channel send duration.
func ObserveDispatchDuration(tenant string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	DispatchDurationSeconds.WithLabelValues(sanitizeTenant(tenant)).Observe(duration.Seconds())
}

// IncMediaPreparation increments the media preparation counter.
func IncMediaPreparation(tenant, messageType, outcome string) {
	if !metricsEnabled {
		return
	}
	MediaPreparationsTotal.WithLabelValues(sanitizeTenant(tenant), messageType, outcome).Inc()
}

// IncSchedulerRun increments the scheduler job counter.
func IncSchedulerRun(tenant, job string) {
	if !metricsEnabled {
		return
	}
	SchedulerRunsTotal.WithLabelValues(sanitizeTenant(tenant), job).Inc()
}

// AddSchedulerLeadsProcessed adds to the per-job lead counter.
func AddSchedulerLeadsProcessed(tenant, job string, n int) {
	if !metricsEnabled {
		return
	}
	SchedulerLeadsProcessedTotal.WithLabelValues(sanitizeTenant(tenant), job).Add(float64(n))
}

// IncToolCacheCheck increments the tool cache lookup counter. Outcomes are
// hit, miss, and stale.
func IncToolCacheCheck(outcome string) {
	if !metricsEnabled {
		return
	}
	ToolCacheChecksTotal.WithLabelValues(outcome).Inc()
}

// ObserveDbOperationDuration observes the duration of a database operation.
func ObserveDbOperationDuration(operation, entity, tenantID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(tenantID), status).Observe(duration.Seconds())
}
