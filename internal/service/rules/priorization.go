package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-contact-engine/internal/domain"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

// AddPriorizationRule stores a new priorization rule.
func (s *Store) AddPriorizationRule(ctx context.Context, rule domain.PriorizationRule) (domain.PriorizationRule, error) {
	var out domain.PriorizationRule
	err := s.mutate(ctx, "add priorization rule", func(next *state, now time.Time) error {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if _, exists := next.priorization[rule.ID]; exists {
			return fmt.Errorf("%w: priorization rule %s already exists", apperrors.ErrConflict, rule.ID)
		}
		rule = normalizePriorization(rule)
		rule.CreatedAt = now
		rule.UpdatedAt = now
		if err := s.checkPriorization(rule); err != nil {
			return err
		}
		next.priorization[rule.ID] = clonePriorization(rule)
		out = clonePriorization(rule)
		return nil
	})
	return out, err
}

// GetPriorizationRule returns the priorization rule with id.
func (s *Store) GetPriorizationRule(id string) (domain.PriorizationRule, error) {
	rule, ok := s.state().priorization[id]
	if !ok {
		return domain.PriorizationRule{}, fmt.Errorf("%w: priorization rule %s", apperrors.ErrNotFound, id)
	}
	return clonePriorization(rule), nil
}

// ListPriorizationRules returns every priorization rule ordered by creation time.
func (s *Store) ListPriorizationRules() []domain.PriorizationRule {
	return s.Snapshot().Priorization
}

// UpdatePriorizationRule replaces an existing priorization rule, keeping CreatedAt.
func (s *Store) UpdatePriorizationRule(ctx context.Context, rule domain.PriorizationRule) (domain.PriorizationRule, error) {
	var out domain.PriorizationRule
	err := s.mutate(ctx, "update priorization rule", func(next *state, now time.Time) error {
		existing, ok := next.priorization[rule.ID]
		if !ok {
			return fmt.Errorf("%w: priorization rule %s", apperrors.ErrNotFound, rule.ID)
		}
		rule = normalizePriorization(rule)
		rule.CreatedAt = existing.CreatedAt
		rule.UpdatedAt = now
		if err := s.checkPriorization(rule); err != nil {
			return err
		}
		next.priorization[rule.ID] = clonePriorization(rule)
		out = clonePriorization(rule)
		return nil
	})
	return out, err
}

// DeletePriorizationRule removes a priorization rule.
func (s *Store) DeletePriorizationRule(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete priorization rule", func(next *state, _ time.Time) error {
		if _, ok := next.priorization[id]; !ok {
			return fmt.Errorf("%w: priorization rule %s", apperrors.ErrNotFound, id)
		}
		delete(next.priorization, id)
		return nil
	})
}

// TogglePriorizationRule flips isActive.
func (s *Store) TogglePriorizationRule(ctx context.Context, id string) (domain.PriorizationRule, error) {
	return s.editPriorization(ctx, "toggle priorization rule", id, func(rule *domain.PriorizationRule) error {
		rule.IsActive = !rule.IsActive
		return nil
	})
}

// AddFactor appends a factor. A factor id may appear once per rule.
func (s *Store) AddFactor(ctx context.Context, ruleID string, f domain.Factor) (domain.PriorizationRule, error) {
	return s.editPriorization(ctx, "add factor", ruleID, func(rule *domain.PriorizationRule) error {
		for _, existing := range rule.Factors {
			if existing.FactorID == f.FactorID {
				return fmt.Errorf("%w: factor %s already on priorization rule %s", apperrors.ErrConflict, f.FactorID, ruleID)
			}
		}
		rule.Factors = append(rule.Factors, f)
		return nil
	})
}

// UpdateFactorWeight changes the weight of an existing factor.
func (s *Store) UpdateFactorWeight(ctx context.Context, ruleID string, id domain.FactorID, weight int) (domain.PriorizationRule, error) {
	return s.editPriorization(ctx, "update factor weight", ruleID, func(rule *domain.PriorizationRule) error {
		for i := range rule.Factors {
			if rule.Factors[i].FactorID == id {
				rule.Factors[i].Weight = weight
				return nil
			}
		}
		return fmt.Errorf("%w: factor %s on priorization rule %s", apperrors.ErrNotFound, id, ruleID)
	})
}

// RemoveFactor deletes a factor from a rule.
func (s *Store) RemoveFactor(ctx context.Context, ruleID string, id domain.FactorID) (domain.PriorizationRule, error) {
	return s.editPriorization(ctx, "remove factor", ruleID, func(rule *domain.PriorizationRule) error {
		factors := make([]domain.Factor, 0, len(rule.Factors))
		for _, f := range rule.Factors {
			if f.FactorID != id {
				factors = append(factors, f)
			}
		}
		if len(factors) == len(rule.Factors) {
			return fmt.Errorf("%w: factor %s on priorization rule %s", apperrors.ErrNotFound, id, ruleID)
		}
		rule.Factors = factors
		return nil
	})
}

func (s *Store) editPriorization(ctx context.Context, op, id string, edit func(*domain.PriorizationRule) error) (domain.PriorizationRule, error) {
	var out domain.PriorizationRule
	err := s.mutate(ctx, op, func(next *state, now time.Time) error {
		existing, ok := next.priorization[id]
		if !ok {
			return fmt.Errorf("%w: priorization rule %s", apperrors.ErrNotFound, id)
		}
		rule := clonePriorization(existing)
		if err := edit(&rule); err != nil {
			return err
		}
		rule.UpdatedAt = now
		if err := s.checkPriorization(rule); err != nil {
			return err
		}
		next.priorization[id] = rule
		out = clonePriorization(rule)
		return nil
	})
	return out, err
}

func normalizePriorization(r domain.PriorizationRule) domain.PriorizationRule {
	if r.Weight == 0 {
		r.Weight = 1
	}
	return r
}

func clonePriorization(r domain.PriorizationRule) domain.PriorizationRule {
	if r.Factors != nil {
		r.Factors = append([]domain.Factor(nil), r.Factors...)
	}
	return r
}
