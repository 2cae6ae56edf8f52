package repository

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides aggregate data access for the live proctoring
// dashboard.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAttemptStatuses returns the status and live warning count for every
// attempt on the form, keyed by candidate email.
func (r *MonitorRepository) GetAttemptStatuses(ctx context.Context, formID uuid.UUID) (map[string]model.AttemptStatusRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT email, status, warnings, started_at, finished_at
		 FROM form_attempts
		 WHERE form_id = $1`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]model.AttemptStatusRow)
	for rows.Next() {
		var row model.AttemptStatusRow
		if err := rows.Scan(&row.Email, &row.Status, &row.Warnings, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, err
		}
		result[row.Email] = row
	}
	return result, rows.Err()
}

// GetViolationCounts returns the number of persisted proctoring events per
// candidate on the form. Events still queued for persistence are not counted;
// the warnings column on the attempt row is the authoritative live figure.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, formID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT email, COUNT(*)
		 FROM proctor_events
		 WHERE form_id = $1
		 GROUP BY email`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var email string
		var count int64
		if err := rows.Scan(&email, &count); err != nil {
			return nil, err
		}
		counts[email] = count
	}
	return counts, rows.Err()
}

// GetEventBreakdown returns per-event-type counts for one candidate, for the
// drill-down view.
func (r *MonitorRepository) GetEventBreakdown(ctx context.Context, formID uuid.UUID, email string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_type, COUNT(*)
		 FROM proctor_events
		 WHERE form_id = $1 AND email = $2
		 GROUP BY event_type`, formID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}
