package queue

import (
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
)

// OutcomeMessage describes how one task ended.
type OutcomeMessage struct {
	TaskID        string             `json:"task_id"`
	LeadID        string             `json:"lead_id"`
	RuleID        string             `json:"rule_id,omitempty"`
	DialingRuleID string             `json:"dialing_rule_id,omitempty"`
	Channel       domain.Channel     `json:"channel"`
	Status        domain.TaskStatus  `json:"status"`
	Reason        domain.Reason      `json:"reason,omitempty"`
	FailureType   domain.FailureType `json:"failure_type,omitempty"`
	Score         float64            `json:"score"`
	DurationMs    int64              `json:"duration_ms"`
	RetryAfter    *time.Time         `json:"retry_after,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

// PassMessage summarizes one scheduling pass.
type PassMessage struct {
	PassID       string    `json:"pass_id"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
	LeadsScanned int       `json:"leads_scanned"`
	Triggers     int       `json:"triggers"`
	SkippedRules int       `json:"skipped_rules"`
	Tasks        int       `json:"tasks"`
	Dispatched   int       `json:"dispatched"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Deferred     int       `json:"deferred"`
	Abandoned    int       `json:"abandoned"`
	Cancelled    int       `json:"cancelled"`
}

// NewPassMessage converts pass statistics to their wire form.
func NewPassMessage(s domain.PassStats) PassMessage {
	return PassMessage{
		PassID:       s.ID,
		StartedAt:    s.StartedAt,
		DurationMs:   s.Duration.Milliseconds(),
		LeadsScanned: s.LeadsScanned,
		Triggers:     s.Triggers,
		SkippedRules: s.SkippedRules,
		Tasks:        s.Tasks,
		Dispatched:   s.Dispatched,
		Completed:    s.Completed,
		Failed:       s.Failed,
		Deferred:     s.Deferred,
		Abandoned:    s.Abandoned,
		Cancelled:    s.Cancelled,
	}
}
