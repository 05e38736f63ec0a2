package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/repository"
)

// PassStatsRepository implements repository.PassStatsRepository.
type PassStatsRepository struct {
	db *sqlx.DB
}

// NewPassStatsRepository builds the repository.
func NewPassStatsRepository(db *sqlx.DB) *PassStatsRepository {
	return &PassStatsRepository{db: db}
}

// Record inserts the statistics of one pass.
func (r *PassStatsRepository) Record(ctx context.Context, stats domain.PassStats) error {
	q := `INSERT INTO pass_statistics (
		id, started_at, duration_ms, leads_scanned, triggers, skipped_rules, tasks,
		dispatched, completed, failed, deferred, abandoned, cancelled
	) VALUES (
		:id, :started_at, :duration_ms, :leads_scanned, :triggers, :skipped_rules, :tasks,
		:dispatched, :completed, :failed, :deferred, :abandoned, :cancelled
	) ON CONFLICT (id) DO NOTHING`

	params := map[string]any{
		"id":            stats.ID,
		"started_at":    stats.StartedAt,
		"duration_ms":   stats.Duration.Milliseconds(),
		"leads_scanned": stats.LeadsScanned,
		"triggers":      stats.Triggers,
		"skipped_rules": stats.SkippedRules,
		"tasks":         stats.Tasks,
		"dispatched":    stats.Dispatched,
		"completed":     stats.Completed,
		"failed":        stats.Failed,
		"deferred":      stats.Deferred,
		"abandoned":     stats.Abandoned,
		"cancelled":     stats.Cancelled,
	}
	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("pass stats: insert: %w", err)
	}
	return nil
}

// Latest returns the most recent pass statistics.
func (r *PassStatsRepository) Latest(ctx context.Context) (domain.PassStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT id, started_at, duration_ms, leads_scanned, triggers, skipped_rules, tasks,
		dispatched, completed, failed, deferred, abandoned, cancelled
		FROM pass_statistics ORDER BY started_at DESC LIMIT 1`)

	var rec passStatsRecord
	if err := row.StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PassStats{}, fmt.Errorf("%w: no pass recorded", repository.ErrNotFound)
		}
		return domain.PassStats{}, fmt.Errorf("pass stats: latest: %w", err)
	}
	return rec.toDomain(), nil
}

type passStatsRecord struct {
	ID           string    `db:"id"`
	StartedAt    time.Time `db:"started_at"`
	DurationMs   int64     `db:"duration_ms"`
	LeadsScanned int       `db:"leads_scanned"`
	Triggers     int       `db:"triggers"`
	SkippedRules int       `db:"skipped_rules"`
	Tasks        int       `db:"tasks"`
	Dispatched   int       `db:"dispatched"`
	Completed    int       `db:"completed"`
	Failed       int       `db:"failed"`
	Deferred     int       `db:"deferred"`
	Abandoned    int       `db:"abandoned"`
	Cancelled    int       `db:"cancelled"`
}

func (r passStatsRecord) toDomain() domain.PassStats {
	return domain.PassStats{
		ID:           r.ID,
		StartedAt:    r.StartedAt,
		Duration:     time.Duration(r.DurationMs) * time.Millisecond,
		LeadsScanned: r.LeadsScanned,
		Triggers:     r.Triggers,
		SkippedRules: r.SkippedRules,
		Tasks:        r.Tasks,
		Dispatched:   r.Dispatched,
		Completed:    r.Completed,
		Failed:       r.Failed,
		Deferred:     r.Deferred,
		Abandoned:    r.Abandoned,
		Cancelled:    r.Cancelled,
	}
}

var _ repository.PassStatsRepository = (*PassStatsRepository)(nil)
