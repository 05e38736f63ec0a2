package priority

import (
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
)

// Ceilings cap the raw value of unbounded factors before normalization.
type Ceilings struct {
	DaysWithoutContact int `mapstructure:"days_without_contact"`
	StageDwellDays     int `mapstructure:"stage_dwell_days"`
	UnansweredAttempts int `mapstructure:"unanswered_attempts"`
	Interactions       int `mapstructure:"interactions"`
	LeadScore          int `mapstructure:"lead_score"`
	LeadAgeDays        int `mapstructure:"lead_age_days"`
	DeadlineDays       int `mapstructure:"deadline_days"`
}

// DefaultCeilings are used for any ceiling left at zero.
func DefaultCeilings() Ceilings {
	return Ceilings{
		DaysWithoutContact: 30,
		StageDwellDays:     30,
		UnansweredAttempts: 5,
		Interactions:       20,
		LeadScore:          100,
		LeadAgeDays:        90,
		DeadlineDays:       30,
	}
}

func (c Ceilings) withDefaults() Ceilings {
	d := DefaultCeilings()
	if c.DaysWithoutContact <= 0 {
		c.DaysWithoutContact = d.DaysWithoutContact
	}
	if c.StageDwellDays <= 0 {
		c.StageDwellDays = d.StageDwellDays
	}
	if c.UnansweredAttempts <= 0 {
		c.UnansweredAttempts = d.UnansweredAttempts
	}
	if c.Interactions <= 0 {
		c.Interactions = d.Interactions
	}
	if c.LeadScore <= 0 {
		c.LeadScore = d.LeadScore
	}
	if c.LeadAgeDays <= 0 {
		c.LeadAgeDays = d.LeadAgeDays
	}
	if c.DeadlineDays <= 0 {
		c.DeadlineDays = d.DeadlineDays
	}
	return c
}

// normalizer maps a lead and its task onto [0,1].
type normalizer func(c *Calculator, lead domain.Lead, task domain.Task, now time.Time) float64

var normalizers = map[domain.FactorID]normalizer{
	domain.FactorStagePosition: func(c *Calculator, lead domain.Lead, _ domain.Task, _ time.Time) float64 {
		idx, ok := c.stageIndex[lead.StageID]
		if !ok {
			return 0
		}
		if len(c.stageIndex) == 1 {
			return 1
		}
		return float64(idx) / float64(len(c.stageIndex)-1)
	},
	domain.FactorStageDwell: func(c *Calculator, lead domain.Lead, _ domain.Task, now time.Time) float64 {
		return ratio(domain.WholeDays(lead.StageEnteredAt, now), c.ceilings.StageDwellDays)
	},
	domain.FactorDaysWithoutContact: func(c *Calculator, lead domain.Lead, _ domain.Task, now time.Time) float64 {
		return ratio(lead.InactivityDays(now), c.ceilings.DaysWithoutContact)
	},
	domain.FactorUnansweredAttempts: func(c *Calculator, _ domain.Lead, task domain.Task, _ time.Time) float64 {
		return ratio(task.PriorAttempts, c.ceilings.UnansweredAttempts)
	},
	domain.FactorEngagement: func(c *Calculator, lead domain.Lead, _ domain.Task, _ time.Time) float64 {
		return ratio(lead.InteractionCount, c.ceilings.Interactions)
	},
	domain.FactorLeadScore: func(c *Calculator, lead domain.Lead, _ domain.Task, _ time.Time) float64 {
		return ratio(lead.Score, c.ceilings.LeadScore)
	},
	domain.FactorContactability: func(_ *Calculator, lead domain.Lead, _ domain.Task, _ time.Time) float64 {
		reachable := 0
		if lead.Phone != "" {
			reachable++
		}
		if lead.Email != "" {
			reachable++
		}
		return float64(reachable) / 2
	},
	domain.FactorLeadAge: func(c *Calculator, lead domain.Lead, _ domain.Task, now time.Time) float64 {
		return ratio(domain.WholeDays(lead.CreatedAt, now), c.ceilings.LeadAgeDays)
	},
	domain.FactorDeadlineProximity: func(c *Calculator, lead domain.Lead, _ domain.Task, now time.Time) float64 {
		if lead.EnrollmentDeadline == nil || lead.EnrollmentDeadline.Before(now) {
			return 0
		}
		left := domain.WholeDays(now, *lead.EnrollmentDeadline)
		return 1 - ratio(left, c.ceilings.DeadlineDays)
	},
}

func ratio(v, ceiling int) float64 {
	if v <= 0 || ceiling <= 0 {
		return 0
	}
	if v >= ceiling {
		return 1
	}
	return float64(v) / float64(ceiling)
}
