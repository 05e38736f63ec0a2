// Package memory provides single-node repository implementations used when no
// database is configured and in tests.
package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/repository"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

// LeadDirectory holds leads in a map.
type LeadDirectory struct {
	mu    sync.RWMutex
	leads map[string]domain.Lead
}

// NewLeadDirectory seeds a directory with leads.
func NewLeadDirectory(leads ...domain.Lead) *LeadDirectory {
	d := &LeadDirectory{leads: make(map[string]domain.Lead, len(leads))}
	for _, l := range leads {
		d.leads[l.ID] = l
	}
	return d
}

// Put inserts or replaces a lead.
func (d *LeadDirectory) Put(lead domain.Lead) {
	d.mu.Lock()
	d.leads[lead.ID] = lead
	d.mu.Unlock()
}

// ListActive returns up to limit leads ordered by last contact, oldest first.
func (d *LeadDirectory) ListActive(_ context.Context, limit int) ([]domain.Lead, error) {
	d.mu.RLock()
	out := make([]domain.Lead, 0, len(d.leads))
	for _, l := range d.leads {
		out = append(out, l)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ContactReference(), out[j].ContactReference()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the lead with id.
func (d *LeadDirectory) Get(_ context.Context, id string) (domain.Lead, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.leads[id]
	if !ok {
		return domain.Lead{}, fmt.Errorf("%w: lead %s", repository.ErrNotFound, id)
	}
	return l, nil
}

// RecordContact updates last contact and optionally the stage.
func (d *LeadDirectory) RecordContact(_ context.Context, id string, at time.Time, stageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.leads[id]
	if !ok {
		return fmt.Errorf("%w: lead %s", repository.ErrNotFound, id)
	}
	if at.After(l.LastContactAt) {
		l.LastContactAt = at
	}
	if stageID != "" && stageID != l.StageID {
		l.StageID = stageID
		l.StageEnteredAt = at
	}
	d.leads[id] = l
	return nil
}

// AttemptStore keeps attempt history per lead in insertion order.
type AttemptStore struct {
	mu     sync.RWMutex
	byLead map[string][]domain.AttemptRecord
}

// NewAttemptStore constructs an empty AttemptStore.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{byLead: map[string][]domain.AttemptRecord{}}
}

// Append adds a record.
func (s *AttemptStore) Append(_ context.Context, record domain.AttemptRecord) error {
	s.mu.Lock()
	s.byLead[record.LeadID] = append(s.byLead[record.LeadID], record)
	s.mu.Unlock()
	return nil
}

// History returns every record for leadID, oldest first.
func (s *AttemptStore) History(_ context.Context, leadID string) ([]domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AttemptRecord(nil), s.byLead[leadID]...), nil
}

// Page returns records newest first. The paging state is the offset of the next page.
func (s *AttemptStore) Page(_ context.Context, leadID string, limit int, pagingState []byte) ([]domain.AttemptRecord, []byte, error) {
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if len(pagingState) > 0 {
		if len(pagingState) != 8 {
			return nil, nil, fmt.Errorf("%w: malformed paging state", apperrors.ErrValidation)
		}
		offset = int(binary.BigEndian.Uint64(pagingState))
	}

	s.mu.RLock()
	all := s.byLead[leadID]
	newest := make([]domain.AttemptRecord, len(all))
	for i, r := range all {
		newest[len(all)-1-i] = r
	}
	s.mu.RUnlock()

	if offset >= len(newest) {
		return []domain.AttemptRecord{}, nil, nil
	}
	end := offset + limit
	var next []byte
	if end < len(newest) {
		next = make([]byte, 8)
		binary.BigEndian.PutUint64(next, uint64(end))
	} else {
		end = len(newest)
	}
	return newest[offset:end], next, nil
}

// PassStatsRepository remembers the most recent pass statistics.
type PassStatsRepository struct {
	mu     sync.RWMutex
	latest *domain.PassStats
}

// NewPassStatsRepository constructs an empty repository.
func NewPassStatsRepository() *PassStatsRepository {
	return &PassStatsRepository{}
}

// Record stores stats when they are newer than the current latest.
func (r *PassStatsRepository) Record(_ context.Context, stats domain.PassStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil || !stats.StartedAt.Before(r.latest.StartedAt) {
		s := stats
		r.latest = &s
	}
	return nil
}

// Latest returns the most recent stats.
func (r *PassStatsRepository) Latest(_ context.Context) (domain.PassStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return domain.PassStats{}, fmt.Errorf("%w: no pass recorded", repository.ErrNotFound)
	}
	return *r.latest, nil
}

var (
	_ repository.LeadDirectory       = (*LeadDirectory)(nil)
	_ repository.AttemptStore        = (*AttemptStore)(nil)
	_ repository.PassStatsRepository = (*PassStatsRepository)(nil)
)
