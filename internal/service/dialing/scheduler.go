// Package dialing decides whether a lead may be called now under a dialing
// rule and, when not, when it may be retried.
package dialing

import (
	"context"
	"fmt"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
)

// InFlightReader reports in-flight attempts per dialing rule.
type InFlightReader interface {
	InFlight(ctx context.Context, key string) (int, error)
}

// Scheduler evaluates dialing rules against a lead's attempt history.
type Scheduler struct {
	clock    clock.Clock
	inflight InFlightReader
}

// NewScheduler constructs a Scheduler. A nil reader disables the capacity check.
func NewScheduler(clk clock.Clock, inflight InFlightReader) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{clock: clk, inflight: inflight}
}

// NextEligibleAttempt decides whether lead may be attempted now.
func (s *Scheduler) NextEligibleAttempt(ctx context.Context, lead domain.Lead, rule domain.DialingRule, history []domain.AttemptRecord) (domain.Decision, error) {
	inFlight := 0
	if s.inflight != nil {
		n, err := s.inflight.InFlight(ctx, rule.ID)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("dialing: read in-flight for %s: %w", rule.ID, err)
		}
		inFlight = n
	}
	return Decide(s.clock.Now(), lead, rule, history, inFlight), nil
}

// Decide applies the dialing checks in order. Permanent rejections are
// returned before transient ones so callers can tell "never" from "later".
func Decide(now time.Time, lead domain.Lead, rule domain.DialingRule, history []domain.AttemptRecord, inFlight int) domain.Decision {
	if !rule.Enabled {
		return domain.RetryLater(domain.ReasonRuleDisabled, nil)
	}

	if d, ok := checkWindow(now, rule); !ok {
		return d
	}

	calls := voiceAttempts(history)
	if len(calls) >= rule.MaxAttemptsPerLead {
		return domain.Never(domain.ReasonMaxAttemptsLead)
	}

	if last, ok := lastAttempt(calls); ok && !last.Success {
		ri, configured := rule.RedialFor(last.FailureType)
		if !configured {
			if last.FailureType == domain.FailureInvalidNumber {
				return domain.Never(domain.ReasonFailureTypeTerminal)
			}
		} else {
			if ri.MaxAttempts == 0 {
				return domain.Never(domain.ReasonFailureTypeTerminal)
			}
			if countFailures(calls, last.FailureType) >= ri.MaxAttempts {
				return domain.Never(domain.ReasonMaxAttemptsFailureType)
			}
			// Cooldowns count whole minutes.
			lastMinute := last.AttemptedAt.Truncate(time.Minute)
			if cooldown := ri.Cooldown(); now.Truncate(time.Minute).Sub(lastMinute) < cooldown {
				retry := lastMinute.Add(cooldown)
				return domain.RetryLater(domain.ReasonCooldown, &retry)
			}
		}
	}

	if inFlight >= rule.SimultaneousChannels {
		retry := now.Add(rule.Gap())
		return domain.RetryLater(domain.ReasonCapacity, &retry)
	}

	return domain.Eligible(ChannelFor(lead, rule))
}

// ChannelFor is the lead's preferred channel, else the rule default, else voice.
func ChannelFor(lead domain.Lead, rule domain.DialingRule) domain.Channel {
	if lead.PreferredChannel.Valid() {
		return lead.PreferredChannel
	}
	if rule.DefaultChannel.Valid() {
		return rule.DefaultChannel
	}
	return domain.ChannelVoice
}

// InWindow reports whether now falls inside the rule's date window and calling hours.
func InWindow(now time.Time, rule domain.DialingRule) bool {
	_, ok := checkWindow(now, rule)
	return ok
}

func checkWindow(now time.Time, rule domain.DialingRule) (domain.Decision, bool) {
	start := rule.WindowStart()
	if now.Before(start) {
		return domain.RetryLater(domain.ReasonOutsideWindow, &start), false
	}
	end, bounded := rule.WindowEnd()
	if bounded && now.After(end) {
		return domain.RetryLater(domain.ReasonOutsideWindow, nil), false
	}
	if len(rule.CallingHours) > 0 && !withinCallingHours(now, rule) {
		next, found := nextCallingWindow(now, rule)
		if !found || (bounded && next.After(end)) {
			return domain.RetryLater(domain.ReasonOutsideWindow, nil), false
		}
		return domain.RetryLater(domain.ReasonOutsideWindow, &next), false
	}
	return domain.Decision{}, true
}

func voiceAttempts(history []domain.AttemptRecord) []domain.AttemptRecord {
	out := make([]domain.AttemptRecord, 0, len(history))
	for _, a := range history {
		if a.Channel == domain.ChannelVoice || a.Channel == "" {
			out = append(out, a)
		}
	}
	return out
}

func lastAttempt(history []domain.AttemptRecord) (domain.AttemptRecord, bool) {
	if len(history) == 0 {
		return domain.AttemptRecord{}, false
	}
	last := history[0]
	for _, a := range history[1:] {
		if !a.AttemptedAt.Before(last.AttemptedAt) {
			last = a
		}
	}
	return last, true
}

func countFailures(history []domain.AttemptRecord, ft domain.FailureType) int {
	n := 0
	for _, a := range history {
		if !a.Success && a.FailureType == ft {
			n++
		}
	}
	return n
}
