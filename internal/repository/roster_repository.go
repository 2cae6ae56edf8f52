package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRosterHasAttempt is returned when removing a candidate who already
// started an attempt.
var ErrRosterHasAttempt = errors.New("candidate already has an attempt")

// RosterRepository handles per-form roster data access.
type RosterRepository struct {
	pool *pgxpool.Pool
}

// NewRosterRepository creates a new RosterRepository.
func NewRosterRepository(pool *pgxpool.Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// GetByFormAndEmail retrieves a roster entry for a candidate on one form.
func (r *RosterRepository) GetByFormAndEmail(ctx context.Context, formID uuid.UUID, email string) (*model.RosterEntry, error) {
	e := &model.RosterEntry{}
	err := r.pool.QueryRow(ctx,
		`SELECT form_id, name, email, mobile, institution, major, graduation_year, created_at
		 FROM form_roster
		 WHERE form_id = $1 AND email = $2`, formID, email,
	).Scan(&e.FormID, &e.Name, &e.Email, &e.Mobile, &e.Institution, &e.Major, &e.GraduationYear, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SelectCandidates adds candidates to a form's roster. Duplicate email or
// mobile rows are skipped via ON CONFLICT DO NOTHING rather than surfaced
// as errors; returns the number actually inserted.
func (r *RosterRepository) SelectCandidates(ctx context.Context, formID uuid.UUID, candidates []model.RosterCandidateInput) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, c := range candidates {
		tag, err := tx.Exec(ctx,
			`INSERT INTO form_roster (form_id, name, email, mobile, institution, major, graduation_year)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT DO NOTHING`,
			formID, c.Name, c.Email, c.Mobile, c.Institution, c.Major, c.GraduationYear)
		if err != nil {
			return 0, fmt.Errorf("insert roster entry %s: %w", c.Email, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByForm retrieves a form's roster ordered by name.
func (r *RosterRepository) ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]model.RosterEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM form_roster WHERE form_id = $1`, formID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT form_id, name, email, mobile, institution, major, graduation_year, created_at
		 FROM form_roster
		 WHERE form_id = $1
		 ORDER BY name
		 LIMIT $2 OFFSET $3`, formID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.RosterEntry
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.FormID, &e.Name, &e.Email, &e.Mobile, &e.Institution,
			&e.Major, &e.GraduationYear, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Remove deletes a roster entry. Rejected if the candidate already started
// an attempt (the FK on form_attempts is intentionally absent — the guard
// is explicit here so the error is meaningful).
func (r *RosterRepository) Remove(ctx context.Context, formID uuid.UUID, email string) error {
	var hasAttempt bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM form_attempts WHERE form_id = $1 AND email = $2)`,
		formID, email,
	).Scan(&hasAttempt)
	if err != nil {
		return err
	}
	if hasAttempt {
		return ErrRosterHasAttempt
	}

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM form_roster WHERE form_id = $1 AND email = $2`, formID, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
