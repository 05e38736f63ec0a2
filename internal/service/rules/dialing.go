package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-contact-engine/internal/domain"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

// AddDialingRule stores a new dialing rule.
func (s *Store) AddDialingRule(ctx context.Context, rule domain.DialingRule) (domain.DialingRule, error) {
	var out domain.DialingRule
	err := s.mutate(ctx, "add dialing rule", func(next *state, now time.Time) error {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if _, exists := next.dialing[rule.ID]; exists {
			return fmt.Errorf("%w: dialing rule %s already exists", apperrors.ErrConflict, rule.ID)
		}
		rule = normalizeDialing(rule)
		rule.CreatedAt = now
		rule.UpdatedAt = now
		if err := s.checkDialing(rule); err != nil {
			return err
		}
		next.dialing[rule.ID] = cloneDialing(rule)
		out = cloneDialing(rule)
		return nil
	})
	return out, err
}

// GetDialingRule returns the dialing rule with id.
func (s *Store) GetDialingRule(id string) (domain.DialingRule, error) {
	rule, ok := s.state().dialing[id]
	if !ok {
		return domain.DialingRule{}, fmt.Errorf("%w: dialing rule %s", apperrors.ErrNotFound, id)
	}
	return cloneDialing(rule), nil
}

// ListDialingRules returns every dialing rule ordered by creation time.
func (s *Store) ListDialingRules() []domain.DialingRule {
	return s.Snapshot().Dialing
}

// UpdateDialingRule replaces an existing dialing rule, keeping CreatedAt.
func (s *Store) UpdateDialingRule(ctx context.Context, rule domain.DialingRule) (domain.DialingRule, error) {
	var out domain.DialingRule
	err := s.mutate(ctx, "update dialing rule", func(next *state, now time.Time) error {
		existing, ok := next.dialing[rule.ID]
		if !ok {
			return fmt.Errorf("%w: dialing rule %s", apperrors.ErrNotFound, rule.ID)
		}
		rule = normalizeDialing(rule)
		rule.CreatedAt = existing.CreatedAt
		rule.UpdatedAt = now
		if err := s.checkDialing(rule); err != nil {
			return err
		}
		next.dialing[rule.ID] = cloneDialing(rule)
		out = cloneDialing(rule)
		return nil
	})
	return out, err
}

// DeleteDialingRule removes a dialing rule.
func (s *Store) DeleteDialingRule(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete dialing rule", func(next *state, _ time.Time) error {
		if _, ok := next.dialing[id]; !ok {
			return fmt.Errorf("%w: dialing rule %s", apperrors.ErrNotFound, id)
		}
		delete(next.dialing, id)
		return nil
	})
}

// ToggleDialingRule flips the enabled flag.
func (s *Store) ToggleDialingRule(ctx context.Context, id string) (domain.DialingRule, error) {
	return s.editDialing(ctx, "toggle dialing rule", id, func(rule *domain.DialingRule) error {
		rule.Enabled = !rule.Enabled
		return nil
	})
}

// SetRedialInterval inserts or replaces the interval for its failure type.
func (s *Store) SetRedialInterval(ctx context.Context, ruleID string, ri domain.RedialInterval) (domain.DialingRule, error) {
	return s.editDialing(ctx, "set redial interval", ruleID, func(rule *domain.DialingRule) error {
		intervals := make([]domain.RedialInterval, 0, len(rule.RedialIntervals)+1)
		replaced := false
		for _, existing := range rule.RedialIntervals {
			if existing.FailureType == ri.FailureType {
				intervals = append(intervals, ri)
				replaced = true
				continue
			}
			intervals = append(intervals, existing)
		}
		if !replaced {
			intervals = append(intervals, ri)
		}
		rule.RedialIntervals = intervals
		return nil
	})
}

// RemoveRedialInterval deletes the interval for ft.
func (s *Store) RemoveRedialInterval(ctx context.Context, ruleID string, ft domain.FailureType) (domain.DialingRule, error) {
	return s.editDialing(ctx, "remove redial interval", ruleID, func(rule *domain.DialingRule) error {
		intervals := make([]domain.RedialInterval, 0, len(rule.RedialIntervals))
		for _, existing := range rule.RedialIntervals {
			if existing.FailureType != ft {
				intervals = append(intervals, existing)
			}
		}
		if len(intervals) == len(rule.RedialIntervals) {
			return fmt.Errorf("%w: redial interval %s on dialing rule %s", apperrors.ErrNotFound, ft, ruleID)
		}
		rule.RedialIntervals = intervals
		return nil
	})
}

func (s *Store) editDialing(ctx context.Context, op, id string, edit func(*domain.DialingRule) error) (domain.DialingRule, error) {
	var out domain.DialingRule
	err := s.mutate(ctx, op, func(next *state, now time.Time) error {
		existing, ok := next.dialing[id]
		if !ok {
			return fmt.Errorf("%w: dialing rule %s", apperrors.ErrNotFound, id)
		}
		rule := cloneDialing(existing)
		if err := edit(&rule); err != nil {
			return err
		}
		rule.UpdatedAt = now
		if err := s.checkDialing(rule); err != nil {
			return err
		}
		next.dialing[id] = rule
		out = cloneDialing(rule)
		return nil
	})
	return out, err
}

func normalizeDialing(r domain.DialingRule) domain.DialingRule {
	if r.SimultaneousChannels == 0 {
		r.SimultaneousChannels = 1
	}
	return r
}

func cloneDialing(r domain.DialingRule) domain.DialingRule {
	if r.RedialIntervals != nil {
		r.RedialIntervals = append([]domain.RedialInterval(nil), r.RedialIntervals...)
	}
	if r.CallingHours != nil {
		r.CallingHours = append([]domain.CallingWindow(nil), r.CallingHours...)
	}
	if r.EndDate != nil {
		end := *r.EndDate
		r.EndDate = &end
	}
	if r.EndTime != nil {
		end := *r.EndTime
		r.EndTime = &end
	}
	return r
}
