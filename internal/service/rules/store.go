// Package rules owns the engine's rule configuration: re-engagement, dialing
// and priorization rules plus the per-lead firing ledger.
//
// Every mutation works on a copy of the current state, validates it,
// persists the full rule set and only then publishes the copy. A failed
// mutation leaves the store exactly as it was.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// Snapshot is the full rule set as persisted at rest.
type Snapshot struct {
	Reengagement []domain.ReengagementRule       `json:"reengagementRules"`
	Dialing      []domain.DialingRule            `json:"dialingRules"`
	Priorization []domain.PriorizationRule       `json:"priorizationRules"`
	LastFired    map[string]map[string]time.Time `json:"lastFired,omitempty"`
}

// Persister stores a full rule snapshot. Save must be all-or-nothing.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Store holds the rule set.
type Store struct {
	writeMu sync.Mutex

	mu  sync.RWMutex
	cur *state

	persister Persister
	clock     clock.Clock
	validate  *validator.Validate
	log       *logger.Logger
}

type state struct {
	reengagement map[string]domain.ReengagementRule
	dialing      map[string]domain.DialingRule
	priorization map[string]domain.PriorizationRule
	lastFired    map[string]map[string]time.Time
}

// NewStore constructs an empty store. A nil persister keeps rules in memory only.
func NewStore(persister Persister, clk clock.Clock, log *logger.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{
		cur:       emptyState(),
		persister: persister,
		clock:     clk,
		validate:  newValidator(),
		log:       log.Named("rules"),
	}
}

func emptyState() *state {
	return &state{
		reengagement: map[string]domain.ReengagementRule{},
		dialing:      map[string]domain.DialingRule{},
		priorization: map[string]domain.PriorizationRule{},
		lastFired:    map[string]map[string]time.Time{},
	}
}

// Load replaces the current rule set with snap without persisting it. Every
// rule is validated; an invalid snapshot is rejected as a whole.
func (s *Store) Load(snap Snapshot) error {
	next := emptyState()
	var issues []string
	for _, r := range snap.Reengagement {
		r = normalizeReengagement(r)
		if err := s.checkReengagement(r); err != nil {
			issues = append(issues, err.Error())
			continue
		}
		next.reengagement[r.ID] = cloneReengagement(r)
	}
	for _, r := range snap.Dialing {
		r = normalizeDialing(r)
		if err := s.checkDialing(r); err != nil {
			issues = append(issues, err.Error())
			continue
		}
		next.dialing[r.ID] = cloneDialing(r)
	}
	for _, r := range snap.Priorization {
		r = normalizePriorization(r)
		if err := s.checkPriorization(r); err != nil {
			issues = append(issues, err.Error())
			continue
		}
		next.priorization[r.ID] = clonePriorization(r)
	}
	if err := apperrors.NewValidationError("rule set", issues); err != nil {
		return err
	}
	for ruleID, leads := range snap.LastFired {
		m := make(map[string]time.Time, len(leads))
		for leadID, at := range leads {
			m[leadID] = at
		}
		next.lastFired[ruleID] = m
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.publish(next)
	s.log.Info("rule set loaded",
		zap.Int("reengagement", len(next.reengagement)),
		zap.Int("dialing", len(next.dialing)),
		zap.Int("priorization", len(next.priorization)))
	return nil
}

// Snapshot returns a deep copy of the rule set, each kind ordered by creation time.
func (s *Store) Snapshot() Snapshot {
	return s.state().snapshot()
}

func (s *Store) state() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) publish(next *state) {
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}

// mutate applies fn to a copy of the state, persists it and publishes it.
func (s *Store) mutate(ctx context.Context, op string, fn func(next *state, now time.Time) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.state().clone()
	if err := fn(next, s.clock.Now()); err != nil {
		return err
	}
	if s.persister != nil {
		if err := s.persister.Save(ctx, next.snapshot()); err != nil {
			s.log.WithContext(ctx).Error("persist rule set failed", zap.String("op", op), zap.Error(err))
			return fmt.Errorf("rules store: %s: %w", op, err)
		}
	}
	s.publish(next)
	return nil
}

func (st *state) clone() *state {
	next := &state{
		reengagement: make(map[string]domain.ReengagementRule, len(st.reengagement)),
		dialing:      make(map[string]domain.DialingRule, len(st.dialing)),
		priorization: make(map[string]domain.PriorizationRule, len(st.priorization)),
		lastFired:    make(map[string]map[string]time.Time, len(st.lastFired)),
	}
	for id, r := range st.reengagement {
		next.reengagement[id] = r
	}
	for id, r := range st.dialing {
		next.dialing[id] = r
	}
	for id, r := range st.priorization {
		next.priorization[id] = r
	}
	for id, leads := range st.lastFired {
		next.lastFired[id] = leads
	}
	return next
}

func (st *state) snapshot() Snapshot {
	snap := Snapshot{
		Reengagement: make([]domain.ReengagementRule, 0, len(st.reengagement)),
		Dialing:      make([]domain.DialingRule, 0, len(st.dialing)),
		Priorization: make([]domain.PriorizationRule, 0, len(st.priorization)),
		LastFired:    make(map[string]map[string]time.Time, len(st.lastFired)),
	}
	for _, r := range st.reengagement {
		snap.Reengagement = append(snap.Reengagement, cloneReengagement(r))
	}
	for _, r := range st.dialing {
		snap.Dialing = append(snap.Dialing, cloneDialing(r))
	}
	for _, r := range st.priorization {
		snap.Priorization = append(snap.Priorization, clonePriorization(r))
	}
	for id, leads := range st.lastFired {
		m := make(map[string]time.Time, len(leads))
		for leadID, at := range leads {
			m[leadID] = at
		}
		snap.LastFired[id] = m
	}
	sort.Slice(snap.Reengagement, func(i, j int) bool {
		return byCreation(snap.Reengagement[i].CreatedAt, snap.Reengagement[i].ID, snap.Reengagement[j].CreatedAt, snap.Reengagement[j].ID)
	})
	sort.Slice(snap.Dialing, func(i, j int) bool {
		return byCreation(snap.Dialing[i].CreatedAt, snap.Dialing[i].ID, snap.Dialing[j].CreatedAt, snap.Dialing[j].ID)
	})
	sort.Slice(snap.Priorization, func(i, j int) bool {
		return byCreation(snap.Priorization[i].CreatedAt, snap.Priorization[i].ID, snap.Priorization[j].CreatedAt, snap.Priorization[j].ID)
	})
	return snap
}

func byCreation(ti time.Time, idi string, tj time.Time, idj string) bool {
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return idi < idj
}

// MarkTriggered records that ruleID fired for leadID at at. It updates both
// the rule-level lastTriggered and the per-lead ledger.
func (s *Store) MarkTriggered(ctx context.Context, ruleID, leadID string, at time.Time) error {
	return s.mutate(ctx, "mark triggered", func(next *state, _ time.Time) error {
		rule, ok := next.reengagement[ruleID]
		if !ok {
			return fmt.Errorf("%w: reengagement rule %s", apperrors.ErrNotFound, ruleID)
		}
		stamp := at
		rule.LastTriggeredAt = &stamp
		next.reengagement[ruleID] = rule

		leads := make(map[string]time.Time, len(next.lastFired[ruleID])+1)
		for id, t := range next.lastFired[ruleID] {
			leads[id] = t
		}
		leads[leadID] = at
		next.lastFired[ruleID] = leads
		return nil
	})
}

// PruneFired drops ledger entries that predate the lead's contact reference
// in refs, keyed by lead id. Such entries can no longer suppress a trigger.
// Leads missing from refs are left alone. It persists only when something
// was dropped and returns the number of entries removed.
func (s *Store) PruneFired(ctx context.Context, refs map[string]time.Time) (int, error) {
	if len(refs) == 0 || staleFired(s.state().lastFired, refs) == 0 {
		return 0, nil
	}
	var pruned int
	err := s.mutate(ctx, "prune fired", func(next *state, _ time.Time) error {
		pruned = 0
		for ruleID, leads := range next.lastFired {
			stale := staleFired(map[string]map[string]time.Time{ruleID: leads}, refs)
			if stale == 0 {
				continue
			}
			kept := make(map[string]time.Time, len(leads)-stale)
			for leadID, at := range leads {
				if ref, ok := refs[leadID]; ok && at.Before(ref) {
					continue
				}
				kept[leadID] = at
			}
			if len(kept) == 0 {
				delete(next.lastFired, ruleID)
			} else {
				next.lastFired[ruleID] = kept
			}
			pruned += stale
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

func staleFired(ledger map[string]map[string]time.Time, refs map[string]time.Time) int {
	n := 0
	for _, leads := range ledger {
		for leadID, at := range leads {
			if ref, ok := refs[leadID]; ok && at.Before(ref) {
				n++
			}
		}
	}
	return n
}

// LastFired returns when ruleID last fired for leadID.
func (s *Store) LastFired(ruleID, leadID string) (time.Time, bool) {
	st := s.state()
	at, ok := st.lastFired[ruleID][leadID]
	return at, ok
}
