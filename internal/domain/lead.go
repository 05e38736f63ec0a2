package domain

import (
	"strings"
	"time"
)

// Channel is an outbound contact channel.
type Channel string

const (
	ChannelMessage Channel = "message"
	ChannelEmail   Channel = "email"
	ChannelVoice   Channel = "voice"
)

var knownChannels = map[Channel]struct{}{
	ChannelMessage: {},
	ChannelEmail:   {},
	ChannelVoice:   {},
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	_, ok := knownChannels[c]
	return ok
}

// Lead is a prospective enrollee as read from the Lead Directory.
type Lead struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Phone              string            `json:"phone,omitempty"`
	Email              string            `json:"email,omitempty"`
	StageID            string            `json:"stageId"`
	StageEnteredAt     time.Time         `json:"stageEnteredAt"`
	LastContactAt      time.Time         `json:"lastContactAt"`
	PreferredChannel   Channel           `json:"preferredChannel,omitempty"`
	DialingRuleID      string            `json:"dialingRuleId,omitempty"`
	Score              int               `json:"score"`
	InteractionCount   int               `json:"interactionCount"`
	EnrollmentDeadline *time.Time        `json:"enrollmentDeadline,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// ContactReference is the instant inactivity is measured from: the last
// contact, or the creation time for a lead that was never contacted.
func (l Lead) ContactReference() time.Time {
	if !l.LastContactAt.IsZero() {
		return l.LastContactAt
	}
	return l.CreatedAt
}

// InactivityDays is the number of whole days since the lead was last contacted.
func (l Lead) InactivityDays(now time.Time) int {
	return WholeDays(l.ContactReference(), now)
}

// FirstName returns the first word of the lead name.
func (l Lead) FirstName() string {
	fields := strings.Fields(l.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// WholeDays counts full 24h periods between from and to, truncated and never negative.
func WholeDays(from, to time.Time) int {
	if from.IsZero() || !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}
