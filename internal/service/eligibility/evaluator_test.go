package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
)

var now = time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)

type ledger map[string]time.Time

func (l ledger) LastFired(ruleID, leadID string) (time.Time, bool) {
	at, ok := l[ruleID+"/"+leadID]
	return at, ok
}

func rule(id string, days int) domain.ReengagementRule {
	return domain.ReengagementRule{
		ID:             id,
		Label:          id,
		InactivityDays: days,
		Enabled:        true,
		Channels:       []domain.Channel{domain.ChannelMessage},
	}
}

func TestTenDaysInactiveFiresSevenDayRule(t *testing.T) {
	ev := NewEvaluator(clock.Fixed{T: now}, nil, nil)
	lead := domain.Lead{ID: "lead-1", LastContactAt: now.AddDate(0, 0, -10)}

	res := ev.Evaluate(lead, []domain.ReengagementRule{rule("r7", 7)})

	require.Len(t, res.Triggers, 1)
	assert.Equal(t, "lead-1", res.Triggers[0].LeadID)
	assert.Equal(t, "r7", res.Triggers[0].Rule.ID)
	assert.Equal(t, 10, res.Triggers[0].DaysInactive)
	assert.Empty(t, res.Skipped)
}

func TestThresholdUsesTruncatedWholeDays(t *testing.T) {
	ev := NewEvaluator(clock.Fixed{T: now}, nil, nil)
	almost := domain.Lead{ID: "l", LastContactAt: now.Add(-(7*24*time.Hour - time.Minute))}
	exact := domain.Lead{ID: "l", LastContactAt: now.Add(-7 * 24 * time.Hour)}

	assert.Empty(t, ev.Evaluate(almost, []domain.ReengagementRule{rule("r7", 7)}).Triggers)
	assert.Len(t, ev.Evaluate(exact, []domain.ReengagementRule{rule("r7", 7)}).Triggers, 1)
}

func TestAllMatchingRulesAreReturned(t *testing.T) {
	ev := NewEvaluator(clock.Fixed{T: now}, nil, nil)
	lead := domain.Lead{ID: "lead-1", LastContactAt: now.AddDate(0, 0, -30)}
	disabled := rule("off", 1)
	disabled.Enabled = false

	res := ev.Evaluate(lead, []domain.ReengagementRule{rule("r3", 3), rule("r14", 14), rule("r60", 60), disabled})

	require.Len(t, res.Triggers, 2)
	assert.Equal(t, "r3", res.Triggers[0].Rule.ID)
	assert.Equal(t, "r14", res.Triggers[1].Rule.ID)
}

func TestNoRefireWithinEpisode(t *testing.T) {
	contact := now.AddDate(0, 0, -10)
	lead := domain.Lead{ID: "lead-1", LastContactAt: contact}

	firedAfter := ledger{"r7/lead-1": contact.Add(time.Hour)}
	ev := NewEvaluator(clock.Fixed{T: now}, firedAfter, nil)
	assert.Empty(t, ev.Evaluate(lead, []domain.ReengagementRule{rule("r7", 7)}).Triggers)

	firedBefore := ledger{"r7/lead-1": contact.Add(-time.Hour)}
	ev = NewEvaluator(clock.Fixed{T: now}, firedBefore, nil)
	assert.Len(t, ev.Evaluate(lead, []domain.ReengagementRule{rule("r7", 7)}).Triggers, 1)

	otherLead := ledger{"r7/lead-2": contact.Add(time.Hour)}
	ev = NewEvaluator(clock.Fixed{T: now}, otherLead, nil)
	assert.Len(t, ev.Evaluate(lead, []domain.ReengagementRule{rule("r7", 7)}).Triggers, 1, "another lead's firing does not suppress this one")
}

func TestRuleLevelLastTriggeredWithoutLedger(t *testing.T) {
	contact := now.AddDate(0, 0, -10)
	lead := domain.Lead{ID: "lead-1", LastContactAt: contact}
	r := rule("r7", 7)
	triggered := contact.Add(time.Minute)
	r.LastTriggeredAt = &triggered

	ev := NewEvaluator(clock.Fixed{T: now}, nil, nil)
	assert.Empty(t, ev.Evaluate(lead, []domain.ReengagementRule{r}).Triggers)
}

func TestMalformedRuleIsSkippedNotFatal(t *testing.T) {
	ev := NewEvaluator(clock.Fixed{T: now}, nil, nil)
	lead := domain.Lead{ID: "lead-1", LastContactAt: now.AddDate(0, 0, -10)}
	broken := rule("broken", 1)
	broken.Channels = nil

	res := ev.Evaluate(lead, []domain.ReengagementRule{broken, rule("ok", 2)})

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "broken", res.Skipped[0].RuleID)
	require.Len(t, res.Triggers, 1)
	assert.Equal(t, "ok", res.Triggers[0].Rule.ID)
}

func TestNeverContactedLeadUsesCreation(t *testing.T) {
	ev := NewEvaluator(clock.Fixed{T: now}, nil, nil)
	lead := domain.Lead{ID: "fresh", CreatedAt: now.AddDate(0, 0, -2)}
	assert.Empty(t, ev.Evaluate(lead, []domain.ReengagementRule{rule("r7", 7)}).Triggers)
	assert.Len(t, ev.Evaluate(lead, []domain.ReengagementRule{rule("r0", 0)}).Triggers, 1)
}
