package dialing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
)

var day0 = time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC) // a Monday

func baseRule() domain.DialingRule {
	return domain.DialingRule{
		ID:                   "dial-1",
		Label:                "calls",
		Enabled:              true,
		SimultaneousChannels: 2,
		TimeBetweenCalls:     45,
		MaxAttemptsPerLead:   10,
		StartDate:            day0,
		StartTime:            8 * 60,
		RedialIntervals: []domain.RedialInterval{
			{FailureType: domain.FailureBusy, IntervalMinutes: 15, MaxAttempts: 4},
			{FailureType: domain.FailureNoAnswer, IntervalMinutes: 60, MaxAttempts: 2},
			{FailureType: domain.FailureVoicemail, IntervalMinutes: 0, MaxAttempts: 0},
		},
	}
}

func call(at time.Time, ft domain.FailureType) domain.AttemptRecord {
	return domain.AttemptRecord{LeadID: "lead", Channel: domain.ChannelVoice, FailureType: ft, AttemptedAt: at}
}

func TestMaxAttemptsPerLead(t *testing.T) {
	rule := baseRule()
	rule.MaxAttemptsPerLead = 3
	now := day0.Add(12 * time.Hour)
	history := []domain.AttemptRecord{
		call(now.Add(-5*time.Hour), domain.FailureBusy),
		call(now.Add(-4*time.Hour), domain.FailureBusy),
		call(now.Add(-3*time.Hour), domain.FailureNoAnswer),
	}

	d := Decide(now, domain.Lead{ID: "lead"}, rule, history, 0)

	assert.False(t, d.Eligible)
	assert.Equal(t, domain.ReasonMaxAttemptsLead, d.Reason)
	assert.True(t, d.Permanent)
	assert.Nil(t, d.RetryAfter)
}

func TestBusyCooldown(t *testing.T) {
	rule := baseRule()
	last := day0.Add(10 * time.Hour)
	now := last.Add(10 * time.Minute)

	d := Decide(now, domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(last, domain.FailureBusy)}, 0)

	assert.False(t, d.Eligible)
	assert.Equal(t, domain.ReasonCooldown, d.Reason)
	assert.False(t, d.Permanent)
	require.NotNil(t, d.RetryAfter)
	assert.True(t, d.RetryAfter.Equal(last.Add(15*time.Minute)))
}

func TestCooldownBoundaryIsInclusive(t *testing.T) {
	rule := baseRule()
	last := day0.Add(10 * time.Hour)

	d := Decide(last.Add(15*time.Minute), domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(last, domain.FailureBusy)}, 0)
	assert.True(t, d.Eligible)

	d = Decide(last.Add(15*time.Minute-time.Second), domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(last, domain.FailureBusy)}, 0)
	assert.Equal(t, domain.ReasonCooldown, d.Reason)

	// Seconds inside the attempt minute do not push the boundary out.
	late := last.Add(30 * time.Second)
	d = Decide(last.Add(15*time.Minute), domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(late, domain.FailureBusy)}, 0)
	assert.True(t, d.Eligible)

	d = Decide(last.Add(14*time.Minute+59*time.Second), domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(late, domain.FailureBusy)}, 0)
	assert.Equal(t, domain.ReasonCooldown, d.Reason)
	require.NotNil(t, d.RetryAfter)
	assert.True(t, d.RetryAfter.Equal(last.Add(15*time.Minute)))
}

func TestTerminalFailureTypeIsIdempotent(t *testing.T) {
	rule := baseRule()
	now := day0.Add(11 * time.Hour)
	history := []domain.AttemptRecord{call(now.Add(-time.Hour), domain.FailureVoicemail)}

	first := Decide(now, domain.Lead{ID: "lead"}, rule, history, 0)
	for i := 0; i < 5; i++ {
		again := Decide(now.Add(time.Duration(i)*24*time.Hour), domain.Lead{ID: "lead"}, rule, history, 0)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, domain.ReasonFailureTypeTerminal, first.Reason)
	assert.True(t, first.Permanent)
}

func TestFailureTypeCap(t *testing.T) {
	rule := baseRule()
	now := day0.Add(20 * time.Hour)
	history := []domain.AttemptRecord{
		call(now.Add(-10*time.Hour), domain.FailureNoAnswer),
		call(now.Add(-8*time.Hour), domain.FailureNoAnswer),
	}

	d := Decide(now, domain.Lead{ID: "lead"}, rule, history, 0)
	assert.Equal(t, domain.ReasonMaxAttemptsFailureType, d.Reason)
	assert.True(t, d.Permanent)
}

func TestUnconfiguredInvalidNumberIsTerminal(t *testing.T) {
	rule := baseRule()
	now := day0.Add(12 * time.Hour)

	d := Decide(now, domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(now.Add(-time.Hour), domain.FailureInvalidNumber)}, 0)
	assert.Equal(t, domain.ReasonFailureTypeTerminal, d.Reason)

	d = Decide(now, domain.Lead{ID: "lead"}, rule, []domain.AttemptRecord{call(now.Add(-time.Minute), domain.FailureError)}, 0)
	assert.True(t, d.Eligible, "unconfigured transient failure has no cooldown")
}

func TestPermanentBeforeTransient(t *testing.T) {
	rule := baseRule()
	rule.MaxAttemptsPerLead = 1
	now := day0.Add(12 * time.Hour)
	history := []domain.AttemptRecord{call(now.Add(-time.Minute), domain.FailureBusy)}

	d := Decide(now, domain.Lead{ID: "lead"}, rule, history, rule.SimultaneousChannels)
	assert.Equal(t, domain.ReasonMaxAttemptsLead, d.Reason, "cap wins over cooldown and capacity")
}

func TestCapacity(t *testing.T) {
	rule := baseRule()
	now := day0.Add(12 * time.Hour)

	d := Decide(now, domain.Lead{ID: "lead"}, rule, nil, 2)
	assert.Equal(t, domain.ReasonCapacity, d.Reason)
	require.NotNil(t, d.RetryAfter)
	assert.True(t, d.RetryAfter.Equal(now.Add(45*time.Second)))

	d = Decide(now, domain.Lead{ID: "lead"}, rule, nil, 1)
	assert.True(t, d.Eligible)
}

func TestDisabledAndWindow(t *testing.T) {
	rule := baseRule()
	rule.Enabled = false
	d := Decide(day0.Add(12*time.Hour), domain.Lead{}, rule, nil, 0)
	assert.Equal(t, domain.ReasonRuleDisabled, d.Reason)
	assert.False(t, d.Permanent)

	rule = baseRule()
	early := day0.Add(7 * time.Hour)
	d = Decide(early, domain.Lead{}, rule, nil, 0)
	assert.Equal(t, domain.ReasonOutsideWindow, d.Reason)
	require.NotNil(t, d.RetryAfter)
	assert.True(t, d.RetryAfter.Equal(day0.Add(8*time.Hour)))

	end := day0.AddDate(0, 0, 2)
	endTime := domain.TimeOfDay(18 * 60)
	rule.EndDate = &end
	rule.EndTime = &endTime
	d = Decide(end.Add(18*time.Hour+time.Minute), domain.Lead{}, rule, nil, 0)
	assert.Equal(t, domain.ReasonOutsideWindow, d.Reason)
	assert.Nil(t, d.RetryAfter)
	assert.True(t, Decide(end.Add(18*time.Hour), domain.Lead{}, rule, nil, 0).Eligible, "end boundary is inclusive")
	assert.True(t, Decide(end.Add(18*time.Hour+59*time.Second), domain.Lead{}, rule, nil, 0).Eligible, "the whole end minute is inclusive")
}

func TestOpenEndedDayWithoutEndTime(t *testing.T) {
	rule := baseRule()
	end := day0.AddDate(0, 0, 1)
	rule.EndDate = &end

	assert.True(t, Decide(end.Add(23*time.Hour+59*time.Minute), domain.Lead{}, rule, nil, 0).Eligible)
	assert.False(t, Decide(end.Add(24*time.Hour), domain.Lead{}, rule, nil, 0).Eligible)
}

func TestChannelSelection(t *testing.T) {
	rule := baseRule()
	now := day0.Add(12 * time.Hour)

	assert.Equal(t, domain.ChannelVoice, Decide(now, domain.Lead{}, rule, nil, 0).Channel)
	rule.DefaultChannel = domain.ChannelMessage
	assert.Equal(t, domain.ChannelMessage, Decide(now, domain.Lead{}, rule, nil, 0).Channel)
	assert.Equal(t, domain.ChannelEmail, Decide(now, domain.Lead{PreferredChannel: domain.ChannelEmail}, rule, nil, 0).Channel)
}

func TestOnlyVoiceAttemptsCount(t *testing.T) {
	rule := baseRule()
	rule.MaxAttemptsPerLead = 1
	now := day0.Add(12 * time.Hour)
	history := []domain.AttemptRecord{{LeadID: "lead", Channel: domain.ChannelEmail, Success: true, AttemptedAt: now.Add(-time.Hour)}}

	assert.True(t, Decide(now, domain.Lead{}, rule, history, 0).Eligible)
}

func TestCallingHours(t *testing.T) {
	rule := baseRule()
	rule.CallingHours = []domain.CallingWindow{{DayOfWeek: time.Monday, Start: 9 * 60, End: 17 * 60}}

	mondayMorning := day0.Add(10 * time.Hour)
	if !Decide(mondayMorning, domain.Lead{}, rule, nil, 0).Eligible {
		t.Fatalf("expected %v to be within calling hours", mondayMorning)
	}

	mondayNight := day0.Add(20 * time.Hour)
	d := Decide(mondayNight, domain.Lead{}, rule, nil, 0)
	if d.Reason != domain.ReasonOutsideWindow {
		t.Fatalf("expected %v to be outside calling hours, got %+v", mondayNight, d)
	}
	nextMonday := day0.AddDate(0, 0, 7).Add(9 * time.Hour)
	if d.RetryAfter == nil || !d.RetryAfter.Equal(nextMonday) {
		t.Fatalf("expected retry at %v, got %v", nextMonday, d.RetryAfter)
	}

	tuesdayMorning := day0.AddDate(0, 0, 1).Add(10 * time.Hour)
	if Decide(tuesdayMorning, domain.Lead{}, rule, nil, 0).Eligible {
		t.Fatalf("expected %v to be outside calling hours (wrong day)", tuesdayMorning)
	}
}

func TestCallingHoursSpanningMidnight(t *testing.T) {
	rule := baseRule()
	rule.StartTime = 0
	rule.CallingHours = []domain.CallingWindow{{DayOfWeek: time.Monday, Start: 22 * 60, End: 2 * 60}}

	night := day0.Add(23 * time.Hour)
	if !Decide(night, domain.Lead{}, rule, nil, 0).Eligible {
		t.Fatalf("expected %v to be within cross-midnight window", night)
	}
	earlyMorning := day0.AddDate(0, 0, 1).Add(time.Hour)
	if !Decide(earlyMorning, domain.Lead{}, rule, nil, 0).Eligible {
		t.Fatalf("expected %v to be within cross-midnight window", earlyMorning)
	}
}

func TestCallingHoursInRuleTimeZone(t *testing.T) {
	rule := baseRule()
	rule.StartTime = 0
	rule.TimeZone = "America/Sao_Paulo" // UTC-3
	rule.CallingHours = []domain.CallingWindow{{DayOfWeek: time.Monday, Start: 9 * 60, End: 12 * 60}}

	assert.True(t, InWindow(day0.Add(13*time.Hour), rule))
	assert.False(t, InWindow(day0.Add(10*time.Hour), rule))
}

type stubInFlight struct {
	n   int
	err error
}

func (s stubInFlight) InFlight(context.Context, string) (int, error) { return s.n, s.err }

func TestNextEligibleAttemptReadsGauge(t *testing.T) {
	now := day0.Add(12 * time.Hour)
	s := NewScheduler(clock.Fixed{T: now}, stubInFlight{n: 2})
	d, err := s.NextEligibleAttempt(context.Background(), domain.Lead{}, baseRule(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonCapacity, d.Reason)

	s = NewScheduler(clock.Fixed{T: now}, stubInFlight{err: errors.New("redis down")})
	_, err = s.NextEligibleAttempt(context.Background(), domain.Lead{}, baseRule(), nil)
	assert.Error(t, err)
}

func TestNeverEligibleOutsideWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("eligible implies inside the dialing window", prop.ForAll(
		func(startMin, spanDays, endMin, offsetMin int, withHours bool, winStart, winLen int) bool {
			rule := baseRule()
			rule.StartTime = domain.TimeOfDay(startMin)
			end := day0.AddDate(0, 0, spanDays)
			endTime := domain.TimeOfDay(endMin)
			rule.EndDate = &end
			rule.EndTime = &endTime
			if withHours {
				rule.CallingHours = []domain.CallingWindow{
					{DayOfWeek: time.Weekday(offsetMin % 7), Start: domain.TimeOfDay(winStart), End: domain.TimeOfDay((winStart + winLen) % 1440)},
				}
			}
			now := day0.Add(time.Duration(offsetMin) * time.Minute)

			d := Decide(now, domain.Lead{}, rule, nil, 0)
			if !d.Eligible {
				return true
			}
			windowEnd, _ := rule.WindowEnd()
			inDates := !now.Before(rule.WindowStart()) && !now.After(windowEnd)
			return inDates && withinCallingHours(now, rule)
		},
		gen.IntRange(0, 1439),
		gen.IntRange(0, 5),
		gen.IntRange(0, 1439),
		gen.IntRange(-2*1440, 8*1440),
		gen.Bool(),
		gen.IntRange(0, 1439),
		gen.IntRange(1, 600),
	))

	properties.TestingRun(t)
}

func TestZeroMaxAttemptsIsPermanentForAnyHistory(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("a terminal failure type stays terminal", prop.ForAll(
		func(minutesAgo int, evalOffset int) bool {
			rule := baseRule()
			now := day0.Add(12 * time.Hour)
			history := []domain.AttemptRecord{call(now.Add(-time.Duration(minutesAgo)*time.Minute), domain.FailureVoicemail)}
			at := now.Add(time.Duration(evalOffset) * time.Minute)
			d := Decide(at, domain.Lead{}, rule, history, 0)
			return !d.Eligible && d.Permanent && d.Reason == domain.ReasonFailureTypeTerminal
		},
		gen.IntRange(0, 600),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}
