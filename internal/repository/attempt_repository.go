package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository handles candidate attempt data access. The warning
// increment and finalization are single atomic UPDATE statements guarded on
// status so racing writers (forced auto-submit vs manual submit, duplicate
// visibility events) cannot lose updates or double-fire.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `form_id, email, response_id, answers, draft_answers, started_at,
	 finished_at, duration_ms, status, terms_accepted, warnings, late, remarks, score`

func scanAttempt(row pgx.Row) (*model.CandidateAttempt, error) {
	a := &model.CandidateAttempt{}
	err := row.Scan(&a.FormID, &a.Email, &a.ResponseID, &a.Answers, &a.DraftAnswers,
		&a.StartedAt, &a.FinishedAt, &a.DurationMs, &a.Status, &a.TermsAccepted,
		&a.Warnings, &a.Late, &a.Remarks, &a.Score)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByFormAndEmail retrieves an attempt for a specific form-candidate pair.
func (r *AttemptRepository) GetByFormAndEmail(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM form_attempts
		 WHERE form_id = $1 AND email = $2`, formID, email))
}

// GetByResponseID retrieves an attempt by its client-generated response ID.
// Used for resume-after-refresh.
func (r *AttemptRepository) GetByResponseID(ctx context.Context, formID, responseID uuid.UUID) (*model.CandidateAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM form_attempts
		 WHERE form_id = $1 AND response_id = $2`, formID, responseID))
}

// Create inserts a new attempt at terms acceptance; the server records the
// start timestamp. ON CONFLICT DO NOTHING + RETURNING yields pgx.ErrNoRows
// when the attempt already exists, which callers treat as "fetch existing".
func (r *AttemptRepository) Create(ctx context.Context, a *model.CandidateAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO form_attempts (form_id, email, response_id, status, terms_accepted)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (form_id, email) DO NOTHING
		 RETURNING started_at`,
		a.FormID, a.Email, a.ResponseID, model.AttemptStatusNotSubmitted, a.TermsAccepted,
	).Scan(&a.StartedAt)
}

// IncrementWarnings bumps the warning counter by exactly one in a single
// atomic statement, only while the attempt is still open. Returns the new
// count; pgx.ErrNoRows when the attempt is missing or already terminal.
func (r *AttemptRepository) IncrementWarnings(ctx context.Context, formID uuid.UUID, email string) (int, error) {
	var warnings int
	err := r.pool.QueryRow(ctx,
		`UPDATE form_attempts
		 SET warnings = warnings + 1
		 WHERE form_id = $1 AND email = $2 AND status = $3
		 RETURNING warnings`,
		formID, email, model.AttemptStatusNotSubmitted,
	).Scan(&warnings)
	if err != nil {
		return 0, err
	}
	return warnings, nil
}

// Finalize transitions an attempt to SUBMITTED with its final payload. The
// status guard makes SUBMITTED terminal: a second finalize matches zero
// rows, which the service resolves into an idempotent no-op. Returns
// whether this call performed the write.
func (r *AttemptRepository) Finalize(ctx context.Context, formID uuid.UUID, email string, answers json.RawMessage, finishedAt time.Time, durationMs int64, late bool) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE form_attempts
		 SET status = $1, answers = $2, finished_at = $3, duration_ms = $4, late = $5
		 WHERE form_id = $6 AND email = $7 AND status = $8`,
		model.AttemptStatusSubmitted, answers, finishedAt, durationMs, late,
		formID, email, model.AttemptStatusNotSubmitted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateDraft upserts the autosaved in-progress payload for an open attempt.
func (r *AttemptRepository) UpdateDraft(ctx context.Context, formID uuid.UUID, email string, draft json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE form_attempts
		 SET draft_answers = $1
		 WHERE form_id = $2 AND email = $3 AND status = $4`,
		draft, formID, email, model.AttemptStatusNotSubmitted)
	return err
}

// Review sets a manager's score and remarks on an attempt.
func (r *AttemptRepository) Review(ctx context.Context, formID uuid.UUID, email string, score *float64, remarks *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE form_attempts SET score = $1, remarks = $2
		 WHERE form_id = $3 AND email = $4`,
		score, remarks, formID, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListByForm retrieves attempts for a form joined with roster identity,
// newest first, with pagination.
func (r *AttemptRepository) ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]model.CandidateAttempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM form_attempts WHERE form_id = $1`, formID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM form_attempts
		 WHERE form_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, formID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.CandidateAttempt
	for rows.Next() {
		var a model.CandidateAttempt
		if err := rows.Scan(&a.FormID, &a.Email, &a.ResponseID, &a.Answers, &a.DraftAnswers,
			&a.StartedAt, &a.FinishedAt, &a.DurationMs, &a.Status, &a.TermsAccepted,
			&a.Warnings, &a.Late, &a.Remarks, &a.Score); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}
