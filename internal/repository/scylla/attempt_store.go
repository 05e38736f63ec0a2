package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/repository"
)

const attemptColumns = `attempt_id, task_id, rule_id, dialing_rule_id, channel, success, failure_type, detail, attempted_at, duration_ms`

// AttemptStore persists the append-only attempt history in Scylla, one
// partition per lead clustered by attempted_at descending.
type AttemptStore struct {
	session *gocql.Session
}

// NewAttemptStore creates a new attempt store.
func NewAttemptStore(session *gocql.Session) *AttemptStore {
	return &AttemptStore{session: session}
}

// Append inserts an attempt record.
func (s *AttemptStore) Append(ctx context.Context, record domain.AttemptRecord) error {
	if err := s.session.Query(`INSERT INTO attempts_by_lead (lead_id, `+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.LeadID, record.ID, record.TaskID, record.RuleID, record.DialingRuleID,
		string(record.Channel), record.Success, string(record.FailureType), record.Detail,
		record.AttemptedAt, record.Duration.Milliseconds(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: insert attempts_by_lead: %w", err)
	}
	return nil
}

// History returns every attempt for leadID, oldest first.
func (s *AttemptStore) History(ctx context.Context, leadID string) ([]domain.AttemptRecord, error) {
	iter := s.session.Query(`SELECT `+attemptColumns+` FROM attempts_by_lead WHERE lead_id = ?`, leadID).
		WithContext(ctx).Iter()

	records := scanAttempts(iter, leadID, 0)
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt store: history: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Page lists attempts for leadID newest first using Scylla paging state.
func (s *AttemptStore) Page(ctx context.Context, leadID string, limit int, pagingState []byte) ([]domain.AttemptRecord, []byte, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.session.Query(`SELECT `+attemptColumns+` FROM attempts_by_lead WHERE lead_id = ?`, leadID).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	records := scanAttempts(iter, leadID, limit)
	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("attempt store: iter close: %w", err)
	}
	if len(nextState) == 0 {
		nextState = nil
	}
	return records, nextState, nil
}

// scanAttempts reads rows from iter. A positive max stops after that many
// rows so a page never triggers a fetch of the next one.
func scanAttempts(iter *gocql.Iter, leadID string, max int) []domain.AttemptRecord {
	records := make([]domain.AttemptRecord, 0, iter.NumRows())

	var (
		id, taskID, ruleID, dialingRuleID string
		channel, failureType, detail      string
		success                           bool
		attemptedAt                       time.Time
		durationMs                        int64
	)
	for (max <= 0 || len(records) < max) &&
		iter.Scan(&id, &taskID, &ruleID, &dialingRuleID, &channel, &success, &failureType, &detail, &attemptedAt, &durationMs) {
		records = append(records, domain.AttemptRecord{
			ID:            id,
			LeadID:        leadID,
			TaskID:        taskID,
			RuleID:        ruleID,
			DialingRuleID: dialingRuleID,
			Channel:       domain.Channel(channel),
			Success:       success,
			FailureType:   domain.FailureType(failureType),
			Detail:        detail,
			AttemptedAt:   attemptedAt,
			Duration:      time.Duration(durationMs) * time.Millisecond,
		})
	}
	return records
}

var _ repository.AttemptStore = (*AttemptStore)(nil)
