package repository

import (
	"context"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// LeadDirectory is the engine's view of the CRM lead records.
type LeadDirectory interface {
	ListActive(ctx context.Context, limit int) ([]domain.Lead, error)
	Get(ctx context.Context, id string) (domain.Lead, error)
	// RecordContact sets the last-contact timestamp and, when stageID is not
	// empty, moves the lead to that stage.
	RecordContact(ctx context.Context, id string, at time.Time, stageID string) error
}

// AttemptStore is the append-only contact history.
type AttemptStore interface {
	Append(ctx context.Context, record domain.AttemptRecord) error
	History(ctx context.Context, leadID string) ([]domain.AttemptRecord, error)
	Page(ctx context.Context, leadID string, limit int, pagingState []byte) ([]domain.AttemptRecord, []byte, error)
}

// PassStatsRepository keeps the statistics of finished scheduling passes.
type PassStatsRepository interface {
	Record(ctx context.Context, stats domain.PassStats) error
	Latest(ctx context.Context) (domain.PassStats, error)
}
