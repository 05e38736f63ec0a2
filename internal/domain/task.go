package domain

import "time"

// AttemptRecord is one immutable entry in a lead's contact history.
type AttemptRecord struct {
	ID            string        `json:"id"`
	LeadID        string        `json:"leadId"`
	TaskID        string        `json:"taskId,omitempty"`
	RuleID        string        `json:"ruleId,omitempty"`
	DialingRuleID string        `json:"dialingRuleId,omitempty"`
	Channel       Channel       `json:"channel"`
	Success       bool          `json:"success"`
	FailureType   FailureType   `json:"failureType,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	AttemptedAt   time.Time     `json:"attemptedAt"`
	Duration      time.Duration `json:"duration"`
}

// TaskStatus is the lifecycle state of a contact task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskDispatched TaskStatus = "dispatched"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskAbandoned  TaskStatus = "abandoned"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is possible within a pass.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskAbandoned, TaskCancelled:
		return true
	}
	return false
}

// Task is one scheduled, not yet resolved contact attempt. Tasks live for a
// single scheduling pass.
type Task struct {
	ID                 string        `json:"id"`
	LeadID             string        `json:"leadId"`
	TriggeringRuleID   string        `json:"triggeringRuleId,omitempty"`
	DialingRuleID      string        `json:"dialingRuleId,omitempty"`
	Channel            Channel       `json:"channel"`
	Score              float64       `json:"score"`
	MatchedRules       int           `json:"matchedRules"`
	EarliestEligibleAt time.Time     `json:"earliestEligibleAt"`
	Status             TaskStatus    `json:"status"`
	Reason             Reason        `json:"reason,omitempty"`
	Message            string        `json:"message,omitempty"`
	Tone               EmotionalTone `json:"tone,omitempty"`
	AdvanceToStageID   string        `json:"advanceToStageId,omitempty"`
	PriorAttempts      int           `json:"priorAttempts"`
	LeadContactAt      time.Time     `json:"leadContactAt"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// Reason explains why an attempt is not eligible.
type Reason string

const (
	ReasonRuleDisabled           Reason = "rule-disabled"
	ReasonOutsideWindow          Reason = "outside-window"
	ReasonMaxAttemptsLead        Reason = "max-attempts-lead"
	ReasonFailureTypeTerminal    Reason = "failure-type-terminal"
	ReasonMaxAttemptsFailureType Reason = "max-attempts-failure-type"
	ReasonCooldown               Reason = "cooldown"
	ReasonCapacity               Reason = "capacity"
	ReasonRateLimited            Reason = "rate-limited"
	ReasonNoDialingRule          Reason = "no-dialing-rule"
	ReasonContactedElsewhere     Reason = "contacted-elsewhere"
	ReasonSuperseded             Reason = "superseded"
	ReasonLeadMissing            Reason = "lead-missing"
)

// Decision is the answer to "may this lead be attempted now?".
type Decision struct {
	Eligible   bool       `json:"eligible"`
	Channel    Channel    `json:"channel,omitempty"`
	Reason     Reason     `json:"reason,omitempty"`
	RetryAfter *time.Time `json:"retryAfter,omitempty"`
	Permanent  bool       `json:"permanent"`
}

// Eligible accepts an attempt on channel.
func Eligible(channel Channel) Decision {
	return Decision{Eligible: true, Channel: channel}
}

// RetryLater rejects an attempt until retryAfter. A nil retryAfter means the next pass.
func RetryLater(reason Reason, retryAfter *time.Time) Decision {
	return Decision{Reason: reason, RetryAfter: retryAfter}
}

// Never rejects an attempt permanently.
func Never(reason Reason) Decision {
	return Decision{Reason: reason, Permanent: true}
}

// PassStats aggregates the outcome of one scheduling pass.
type PassStats struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	LeadsScanned int           `json:"leadsScanned"`
	Triggers     int           `json:"triggers"`
	SkippedRules int           `json:"skippedRules"`
	Tasks        int           `json:"tasks"`
	Dispatched   int           `json:"dispatched"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	Deferred     int           `json:"deferred"`
	Abandoned    int           `json:"abandoned"`
	Cancelled    int           `json:"cancelled"`
}
