// Package eligibility decides which re-engagement rules fire for a lead.
package eligibility

import (
	"time"

	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// CandidateTrigger is one rule that fired for one lead.
type CandidateTrigger struct {
	LeadID       string                  `json:"leadId"`
	Rule         domain.ReengagementRule `json:"rule"`
	DaysInactive int                     `json:"daysInactive"`
}

// SkippedRule is an enabled rule that could not be evaluated.
type SkippedRule struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}

// Result is the outcome of evaluating one lead.
type Result struct {
	Triggers []CandidateTrigger `json:"triggers"`
	Skipped  []SkippedRule      `json:"skipped,omitempty"`
}

// FiringLookup returns when a rule last fired for a given lead.
type FiringLookup interface {
	LastFired(ruleID, leadID string) (time.Time, bool)
}

// Evaluator applies inactivity thresholds. It has no side effects.
type Evaluator struct {
	clock clock.Clock
	fired FiringLookup
	log   *logger.Logger
}

// NewEvaluator constructs an Evaluator. With a nil lookup the rule-level
// lastTriggeredAt is used for every lead.
func NewEvaluator(clk clock.Clock, fired FiringLookup, log *logger.Logger) *Evaluator {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Evaluator{clock: clk, fired: fired, log: log.Named("eligibility")}
}

// Evaluate returns every enabled rule whose inactivity threshold the lead has
// crossed and which has not fired yet in the lead's current inactivity episode.
func (e *Evaluator) Evaluate(lead domain.Lead, rules []domain.ReengagementRule) Result {
	now := e.clock.Now()
	days := lead.InactivityDays(now)
	episodeStart := lead.ContactReference()

	var res Result
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if reason := malformed(rule); reason != "" {
			res.Skipped = append(res.Skipped, SkippedRule{RuleID: rule.ID, Reason: reason})
			e.log.Warn("skipping malformed reengagement rule",
				zap.String("rule_id", rule.ID), zap.String("reason", reason))
			continue
		}
		if days < rule.InactivityDays {
			continue
		}
		if last, ok := e.lastFired(rule, lead.ID); ok && !last.Before(episodeStart) {
			continue
		}
		res.Triggers = append(res.Triggers, CandidateTrigger{
			LeadID:       lead.ID,
			Rule:         rule,
			DaysInactive: days,
		})
	}
	return res
}

func (e *Evaluator) lastFired(rule domain.ReengagementRule, leadID string) (time.Time, bool) {
	if e.fired != nil {
		return e.fired.LastFired(rule.ID, leadID)
	}
	if rule.LastTriggeredAt == nil {
		return time.Time{}, false
	}
	return *rule.LastTriggeredAt, true
}

func malformed(rule domain.ReengagementRule) string {
	if len(rule.Channels) == 0 {
		return "enabled without channels"
	}
	for _, c := range rule.Channels {
		if !c.Valid() {
			return "unknown channel " + string(c)
		}
	}
	if rule.InactivityDays < 0 {
		return "negative inactivity threshold"
	}
	return ""
}
