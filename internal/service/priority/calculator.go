// Package priority scores contact tasks from weighted catalog factors and
// orders them for dispatch.
package priority

import (
	"sort"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
)

// Config tunes factor normalization.
type Config struct {
	StageOrder []string `mapstructure:"stage_order"`
	Ceilings   Ceilings `mapstructure:"ceilings"`
}

// Calculator computes task scores.
type Calculator struct {
	clock      clock.Clock
	ceilings   Ceilings
	stageIndex map[string]int
}

// NewCalculator constructs a Calculator.
func NewCalculator(cfg Config, clk clock.Clock) *Calculator {
	if clk == nil {
		clk = clock.Real{}
	}
	idx := make(map[string]int, len(cfg.StageOrder))
	for i, stage := range cfg.StageOrder {
		if _, dup := idx[stage]; !dup {
			idx[stage] = i
		}
	}
	return &Calculator{clock: clk, ceilings: cfg.Ceilings.withDefaults(), stageIndex: idx}
}

// FactorValue returns the normalized value of factor id for lead, in [0,1].
func (c *Calculator) FactorValue(id domain.FactorID, lead domain.Lead, task domain.Task) float64 {
	fn, ok := normalizers[id]
	if !ok {
		return 0
	}
	return clamp(fn(c, lead, task, c.clock.Now()))
}

// Score sums the contributions of every active rule that applies to the
// lead's stage. matched is the number of such rules.
func (c *Calculator) Score(lead domain.Lead, task domain.Task, rules []domain.PriorizationRule) (score float64, matched int) {
	return combine(lead.StageID, rules, func(id domain.FactorID) float64 {
		return c.FactorValue(id, lead, task)
	})
}

func combine(stageID string, rules []domain.PriorizationRule, value func(domain.FactorID) float64) (score float64, matched int) {
	for _, rule := range rules {
		if !rule.IsActive || !rule.AppliesToStage(stageID) {
			continue
		}
		matched++
		var sum float64
		for _, f := range rule.Factors {
			sum += float64(f.Weight) * value(f.FactorID)
		}
		score += sum * float64(rule.Weight)
	}
	return score, matched
}

// Rank orders tasks for dispatch: tasks matched by at least one rule first,
// then by descending score, then by oldest last contact.
func Rank(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if (a.MatchedRules == 0) != (b.MatchedRules == 0) {
			return a.MatchedRules > 0
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LeadContactAt.Equal(b.LeadContactAt) {
			return a.LeadContactAt.Before(b.LeadContactAt)
		}
		return a.LeadID < b.LeadID
	})
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
