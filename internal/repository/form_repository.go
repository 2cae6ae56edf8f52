package repository

import (
	"context"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FormRepository handles assessment form data access, including the
// transactional create+provision and delete+drop lifecycles.
type FormRepository struct {
	pool *pgxpool.Pool
}

// NewFormRepository creates a new FormRepository.
func NewFormRepository(pool *pgxpool.Pool) *FormRepository {
	return &FormRepository{pool: pool}
}

const formColumns = `id, label, duration_minutes, start_note, end_note, status, manager_id, created_at, updated_at`

func scanForm(row pgx.Row) (*model.AssessmentForm, error) {
	f := &model.AssessmentForm{}
	err := row.Scan(&f.ID, &f.Label, &f.DurationMinutes, &f.StartNote, &f.EndNote,
		&f.Status, &f.ManagerID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetByID retrieves a form by its UUID.
func (r *FormRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentForm, error) {
	return scanForm(r.pool.QueryRow(ctx,
		`SELECT `+formColumns+` FROM assessment_forms WHERE id = $1`, id))
}

// Create inserts a form and provisions its partitions in one transaction.
// A provisioning failure rolls the form-definition insert back with it.
func (r *FormRepository) Create(ctx context.Context, f *model.AssessmentForm) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO assessment_forms (label, duration_minutes, start_note, end_note, status, manager_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		f.Label, f.DurationMinutes, f.StartNote, f.EndNote, f.Status, f.ManagerID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}

	if err := ProvisionForm(ctx, tx, f.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Clone copies a form definition and its fields under a fresh identifier
// and provisions new partitions, all in one transaction. The clone starts
// with an empty roster and no attempts.
func (r *FormRepository) Clone(ctx context.Context, sourceID uuid.UUID, label string) (*model.AssessmentForm, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	clone, err := scanForm(tx.QueryRow(ctx,
		`INSERT INTO assessment_forms (label, duration_minutes, start_note, end_note, status, manager_id)
		 SELECT $2, duration_minutes, start_note, end_note, status, manager_id
		 FROM assessment_forms WHERE id = $1
		 RETURNING `+formColumns,
		sourceID, label))
	if err != nil {
		return nil, fmt.Errorf("clone form: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO form_fields (form_id, field_type, label, placeholder, options, content, sub_questions, position)
		 SELECT $2, field_type, label, placeholder, options, content, sub_questions, position
		 FROM form_fields WHERE form_id = $1`,
		sourceID, clone.ID)
	if err != nil {
		return nil, fmt.Errorf("clone fields: %w", err)
	}

	if err := ProvisionForm(ctx, tx, clone.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return clone, nil
}

// ListByManagerPaginated retrieves forms owned by a manager with pagination.
func (r *FormRepository) ListByManagerPaginated(ctx context.Context, managerID, limit, offset int) ([]model.AssessmentForm, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assessment_forms WHERE manager_id = $1`, managerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+formColumns+` FROM assessment_forms
		 WHERE manager_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, managerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var forms []model.AssessmentForm
	for rows.Next() {
		var f model.AssessmentForm
		if err := rows.Scan(&f.ID, &f.Label, &f.DurationMinutes, &f.StartNote, &f.EndNote,
			&f.Status, &f.ManagerID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, 0, err
		}
		forms = append(forms, f)
	}
	return forms, total, rows.Err()
}

// Update modifies a form's label, duration and instructional content.
func (r *FormRepository) Update(ctx context.Context, f *model.AssessmentForm) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessment_forms
		 SET label = $1, duration_minutes = $2, start_note = $3, end_note = $4, updated_at = NOW()
		 WHERE id = $5`,
		f.Label, f.DurationMinutes, f.StartNote, f.EndNote, f.ID)
	return err
}

// UpdateStatus flips a form between ACTIVE and INACTIVE. Deactivation is a
// soft delete: it blocks new logins but not in-flight finalization.
func (r *FormRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.FormStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessment_forms SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// Delete removes a form, its fields (FK cascade) and its partitions in one
// transaction.
func (r *FormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := DropFormPartitions(ctx, tx, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM assessment_forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}

// HasAttempts reports whether any candidate has started an attempt on the
// form. Guards duration/content immutability after attempts begin.
func (r *FormRepository) HasAttempts(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM form_attempts WHERE form_id = $1)`, id,
	).Scan(&exists)
	return exists, err
}
