package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-contact-engine/internal/domain"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

// AddReengagement stores a new re-engagement rule and returns it with id and timestamps set.
func (s *Store) AddReengagement(ctx context.Context, rule domain.ReengagementRule) (domain.ReengagementRule, error) {
	var out domain.ReengagementRule
	err := s.mutate(ctx, "add reengagement rule", func(next *state, now time.Time) error {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if _, exists := next.reengagement[rule.ID]; exists {
			return fmt.Errorf("%w: reengagement rule %s already exists", apperrors.ErrConflict, rule.ID)
		}
		rule = normalizeReengagement(rule)
		rule.CreatedAt = now
		rule.UpdatedAt = now
		if err := s.checkReengagement(rule); err != nil {
			return err
		}
		next.reengagement[rule.ID] = cloneReengagement(rule)
		out = cloneReengagement(rule)
		return nil
	})
	return out, err
}

// GetReengagement returns the rule with id.
func (s *Store) GetReengagement(id string) (domain.ReengagementRule, error) {
	rule, ok := s.state().reengagement[id]
	if !ok {
		return domain.ReengagementRule{}, fmt.Errorf("%w: reengagement rule %s", apperrors.ErrNotFound, id)
	}
	return cloneReengagement(rule), nil
}

// ListReengagement returns every re-engagement rule ordered by creation time.
func (s *Store) ListReengagement() []domain.ReengagementRule {
	return s.Snapshot().Reengagement
}

// UpdateReengagement replaces the editable fields of an existing rule.
// CreatedAt and LastTriggeredAt are preserved.
func (s *Store) UpdateReengagement(ctx context.Context, rule domain.ReengagementRule) (domain.ReengagementRule, error) {
	var out domain.ReengagementRule
	err := s.mutate(ctx, "update reengagement rule", func(next *state, now time.Time) error {
		existing, ok := next.reengagement[rule.ID]
		if !ok {
			return fmt.Errorf("%w: reengagement rule %s", apperrors.ErrNotFound, rule.ID)
		}
		rule = normalizeReengagement(rule)
		rule.CreatedAt = existing.CreatedAt
		rule.LastTriggeredAt = existing.LastTriggeredAt
		rule.UpdatedAt = now
		if err := s.checkReengagement(rule); err != nil {
			return err
		}
		next.reengagement[rule.ID] = cloneReengagement(rule)
		out = cloneReengagement(rule)
		return nil
	})
	return out, err
}

// DeleteReengagement removes a rule and its firing ledger.
func (s *Store) DeleteReengagement(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete reengagement rule", func(next *state, _ time.Time) error {
		if _, ok := next.reengagement[id]; !ok {
			return fmt.Errorf("%w: reengagement rule %s", apperrors.ErrNotFound, id)
		}
		delete(next.reengagement, id)
		delete(next.lastFired, id)
		return nil
	})
}

// ToggleReengagement flips the enabled flag. Enabling a rule without
// channels fails validation.
func (s *Store) ToggleReengagement(ctx context.Context, id string) (domain.ReengagementRule, error) {
	var out domain.ReengagementRule
	err := s.mutate(ctx, "toggle reengagement rule", func(next *state, now time.Time) error {
		rule, ok := next.reengagement[id]
		if !ok {
			return fmt.Errorf("%w: reengagement rule %s", apperrors.ErrNotFound, id)
		}
		rule.Enabled = !rule.Enabled
		rule.UpdatedAt = now
		if err := s.checkReengagement(rule); err != nil {
			return err
		}
		next.reengagement[id] = rule
		out = cloneReengagement(rule)
		return nil
	})
	return out, err
}

func normalizeReengagement(r domain.ReengagementRule) domain.ReengagementRule {
	if r.EmotionalTone == "" {
		r.EmotionalTone = domain.ToneNeutral
	}
	return r
}

func cloneReengagement(r domain.ReengagementRule) domain.ReengagementRule {
	if r.Channels != nil {
		r.Channels = append([]domain.Channel(nil), r.Channels...)
	}
	if r.LastTriggeredAt != nil {
		at := *r.LastTriggeredAt
		r.LastTriggeredAt = &at
	}
	return r
}
