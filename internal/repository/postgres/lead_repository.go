package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/repository"
)

const leadColumns = `id, name, phone, email, stage_id, stage_entered_at, last_contact_at,
	preferred_channel, dialing_rule_id, score, interaction_count, enrollment_deadline,
	attributes, created_at`

// LeadRepository implements repository.LeadDirectory on the CRM leads table.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// ListActive returns active leads, least recently contacted first.
func (r *LeadRepository) ListActive(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT `+leadColumns+`
		FROM leads
		WHERE active
		ORDER BY COALESCE(last_contact_at, created_at) ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("lead repo: list active: %w", err)
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		var rec leadRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("lead repo: scan: %w", err)
		}
		lead, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}
	return leads, nil
}

// Get fetches a lead by id.
func (r *LeadRepository) Get(ctx context.Context, id string) (domain.Lead, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	var rec leadRecord
	if err := row.StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lead{}, fmt.Errorf("%w: lead %s", repository.ErrNotFound, id)
		}
		return domain.Lead{}, fmt.Errorf("lead repo: get: %w", err)
	}
	return rec.toDomain()
}

// RecordContact stamps the last contact and applies a stage transition in one transaction.
func (r *LeadRepository) RecordContact(ctx context.Context, id string, at time.Time, stageID string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current string
		if err := tx.QueryRowxContext(ctx, `SELECT stage_id FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: lead %s", repository.ErrNotFound, id)
			}
			return fmt.Errorf("lead repo: lock lead: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE leads
			SET last_contact_at = GREATEST(COALESCE(last_contact_at, $2), $2), updated_at = NOW()
			WHERE id = $1`, id, at); err != nil {
			return fmt.Errorf("lead repo: update last contact: %w", err)
		}

		if stageID == "" || stageID == current {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE leads SET stage_id = $2, stage_entered_at = $3 WHERE id = $1`,
			id, stageID, at); err != nil {
			return fmt.Errorf("lead repo: update stage: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO lead_stage_transitions (lead_id, from_stage, to_stage, transitioned_at)
			VALUES ($1, $2, $3, $4)`, id, current, stageID, at); err != nil {
			return fmt.Errorf("lead repo: record stage transition: %w", err)
		}
		return nil
	})
}

type leadRecord struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Phone              sql.NullString `db:"phone"`
	Email              sql.NullString `db:"email"`
	StageID            string         `db:"stage_id"`
	StageEnteredAt     sql.NullTime   `db:"stage_entered_at"`
	LastContactAt      sql.NullTime   `db:"last_contact_at"`
	PreferredChannel   sql.NullString `db:"preferred_channel"`
	DialingRuleID      sql.NullString `db:"dialing_rule_id"`
	Score              int            `db:"score"`
	InteractionCount   int            `db:"interaction_count"`
	EnrollmentDeadline sql.NullTime   `db:"enrollment_deadline"`
	Attributes         []byte         `db:"attributes"`
	CreatedAt          time.Time      `db:"created_at"`
}

func (r leadRecord) toDomain() (domain.Lead, error) {
	lead := domain.Lead{
		ID:               r.ID,
		Name:             r.Name,
		Phone:            r.Phone.String,
		Email:            r.Email.String,
		StageID:          r.StageID,
		StageEnteredAt:   r.StageEnteredAt.Time,
		LastContactAt:    r.LastContactAt.Time,
		PreferredChannel: domain.Channel(r.PreferredChannel.String),
		DialingRuleID:    r.DialingRuleID.String,
		Score:            r.Score,
		InteractionCount: r.InteractionCount,
		CreatedAt:        r.CreatedAt,
	}
	if r.EnrollmentDeadline.Valid {
		t := r.EnrollmentDeadline.Time
		lead.EnrollmentDeadline = &t
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &lead.Attributes); err != nil {
			return domain.Lead{}, fmt.Errorf("lead repo: decode attributes of %s: %w", r.ID, err)
		}
	}
	return lead, nil
}

var _ repository.LeadDirectory = (*LeadRepository)(nil)
