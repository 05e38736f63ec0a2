package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EmotionalTone is the register a reengagement message is written in.
type EmotionalTone string

const (
	ToneUrgent   EmotionalTone = "urgent"
	ToneFriendly EmotionalTone = "friendly"
	ToneFormal   EmotionalTone = "formal"
	ToneNeutral  EmotionalTone = "neutral"
)

// FailureType classifies an unsuccessful call attempt.
type FailureType string

const (
	FailureVoicemail     FailureType = "voicemail"
	FailureNoAnswer      FailureType = "no-answer"
	FailureBusy          FailureType = "busy"
	FailureFailure       FailureType = "failure"
	FailureError         FailureType = "error"
	FailureInvalidNumber FailureType = "invalid-number"
)

// FailureTypes lists every failure type in display order.
func FailureTypes() []FailureType {
	return []FailureType{
		FailureVoicemail,
		FailureNoAnswer,
		FailureBusy,
		FailureFailure,
		FailureError,
		FailureInvalidNumber,
	}
}

// Valid reports whether f is a known failure type.
func (f FailureType) Valid() bool {
	for _, known := range FailureTypes() {
		if f == known {
			return true
		}
	}
	return false
}

// ReengagementRule schedules an outbound message once a lead has been
// inactive for InactivityDays.
type ReengagementRule struct {
	ID               string        `json:"id"`
	Label            string        `json:"label" validate:"required,max=120"`
	InactivityDays   int           `json:"inactivityDays" validate:"gte=0"`
	Enabled          bool          `json:"enabled"`
	Channels         []Channel     `json:"channels" validate:"dive,oneof=message email voice"`
	MessageTemplate  string        `json:"messageTemplate"`
	EmotionalTone    EmotionalTone `json:"emotionalTone" validate:"oneof=urgent friendly formal neutral"`
	AdvanceToStageID string        `json:"advanceToStageId,omitempty"`
	LastTriggeredAt  *time.Time    `json:"lastTriggeredAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// AllowsChannel reports whether c is one of the rule's channels.
func (r ReengagementRule) AllowsChannel(c Channel) bool {
	for _, ch := range r.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// DialingRule governs outbound call attempts.
type DialingRule struct {
	ID                   string           `json:"id"`
	Label                string           `json:"label" validate:"required,max=120"`
	Enabled              bool             `json:"enabled"`
	SimultaneousChannels int              `json:"simultaneousChannels" validate:"gte=1"`
	TimeBetweenCalls     int              `json:"timeBetweenCalls" validate:"gte=0"`
	MaxAttemptsPerLead   int              `json:"maxAttemptsPerLead" validate:"gte=0"`
	StartDate            time.Time        `json:"startDate"`
	StartTime            TimeOfDay        `json:"startTime" validate:"gte=0,lt=1440"`
	EndDate              *time.Time       `json:"endDate,omitempty"`
	EndTime              *TimeOfDay       `json:"endTime,omitempty" validate:"omitempty,gte=0,lt=1440"`
	TimeZone             string           `json:"timeZone,omitempty"`
	CallingHours         []CallingWindow  `json:"callingHours,omitempty" validate:"dive"`
	DefaultChannel       Channel          `json:"defaultChannel,omitempty" validate:"omitempty,oneof=message email voice"`
	RedialIntervals      []RedialInterval `json:"redialIntervals" validate:"dive"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// RedialInterval is the cooldown and cap applied after a given failure type.
type RedialInterval struct {
	FailureType     FailureType `json:"failureType" validate:"required,oneof=voicemail no-answer busy failure error invalid-number"`
	IntervalMinutes int         `json:"intervalMinutes" validate:"gte=0"`
	MaxAttempts     int         `json:"maxAttempts" validate:"gte=0"`
}

// Cooldown is IntervalMinutes as a duration.
func (ri RedialInterval) Cooldown() time.Duration {
	return time.Duration(ri.IntervalMinutes) * time.Minute
}

// CallingWindow is a daily calling window in the rule time zone.
// End before Start means the window spans midnight.
type CallingWindow struct {
	DayOfWeek time.Weekday `json:"dayOfWeek" validate:"gte=0,lte=6"`
	Start     TimeOfDay    `json:"start" validate:"gte=0,lt=1440"`
	End       TimeOfDay    `json:"end" validate:"gte=0,lt=1440"`
}

// RedialFor returns the interval configured for ft.
func (r DialingRule) RedialFor(ft FailureType) (RedialInterval, bool) {
	for _, ri := range r.RedialIntervals {
		if ri.FailureType == ft {
			return ri, true
		}
	}
	return RedialInterval{}, false
}

// Gap is TimeBetweenCalls as a duration.
func (r DialingRule) Gap() time.Duration {
	return time.Duration(r.TimeBetweenCalls) * time.Second
}

// Location resolves TimeZone, falling back to UTC.
func (r DialingRule) Location() *time.Location {
	if r.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WindowStart is StartDate combined with StartTime.
func (r DialingRule) WindowStart() time.Time {
	return r.StartTime.On(r.StartDate, r.Location())
}

// WindowEnd is the last instant of the window. The EndTime minute is included
// in full; without an EndTime the whole end day is. ok is false when the
// window is open-ended.
func (r DialingRule) WindowEnd() (end time.Time, ok bool) {
	if r.EndDate == nil {
		return time.Time{}, false
	}
	loc := r.Location()
	if r.EndTime == nil {
		day := TimeOfDay(0).On(*r.EndDate, loc)
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), true
	}
	return r.EndTime.On(*r.EndDate, loc).Add(time.Minute - time.Nanosecond), true
}

// PriorizationRule is a weighted-factor formula used to rank pending tasks.
type PriorizationRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=120"`
	IsActive  bool      `json:"isActive"`
	Weight    int       `json:"weight" validate:"min=1,max=10"`
	AppliesTo AppliesTo `json:"appliesTo"`
	Factors   []Factor  `json:"factors" validate:"dive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AppliesTo restricts a priorization rule to one funnel stage. Empty means all stages.
type AppliesTo struct {
	StageID string `json:"stageId,omitempty"`
}

// Factor is one weighted entry of a priorization rule.
type Factor struct {
	FactorID FactorID `json:"factorId" validate:"required,factor"`
	Weight   int      `json:"weight" validate:"min=1,max=5"`
}

// AppliesToStage reports whether the rule covers stageID.
func (r PriorizationRule) AppliesToStage(stageID string) bool {
	return r.AppliesTo.StageID == "" || r.AppliesTo.StageID == stageID
}

// TimeOfDay is a wall-clock time expressed as minutes past midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places t on the calendar day of date, in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// also accept raw minutes
		n, nerr := strconv.Atoi(string(data))
		if nerr != nil {
			return fmt.Errorf("time of day: %w", err)
		}
		*t = TimeOfDay(n)
		return nil
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
