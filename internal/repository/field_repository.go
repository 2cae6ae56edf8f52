package repository

import (
	"context"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FieldRepository handles form field-definition data access.
type FieldRepository struct {
	pool *pgxpool.Pool
}

// NewFieldRepository creates a new FieldRepository.
func NewFieldRepository(pool *pgxpool.Pool) *FieldRepository {
	return &FieldRepository{pool: pool}
}

// ListByForm retrieves a form's field definitions in render order.
func (r *FieldRepository) ListByForm(ctx context.Context, formID uuid.UUID) ([]model.FieldDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, form_id, field_type, label, placeholder, options, content, sub_questions, position
		 FROM form_fields
		 WHERE form_id = $1
		 ORDER BY position`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []model.FieldDefinition
	for rows.Next() {
		var f model.FieldDefinition
		if err := rows.Scan(&f.ID, &f.FormID, &f.Type, &f.Label, &f.Placeholder,
			&f.Options, &f.Content, &f.SubQuestions, &f.Position); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// ReplaceAll swaps a form's entire field list in one transaction: delete
// then insert in request order, so a mid-operation failure leaves the
// previous list intact. Existing field IDs are preserved when the client
// sends them back, keeping stored answer keys valid.
func (r *FieldRepository) ReplaceAll(ctx context.Context, formID uuid.UUID, inputs []model.FieldInput) ([]model.FieldDefinition, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM form_fields WHERE form_id = $1`, formID); err != nil {
		return nil, fmt.Errorf("clear fields: %w", err)
	}

	fields := make([]model.FieldDefinition, 0, len(inputs))
	for pos, in := range inputs {
		id := uuid.New()
		if in.ID != nil {
			id = *in.ID
		}

		f := model.FieldDefinition{
			ID:           id,
			FormID:       formID,
			Type:         in.Type,
			Label:        in.Label,
			Placeholder:  in.Placeholder,
			Options:      in.Options,
			Content:      in.Content,
			SubQuestions: in.SubQuestions,
			Position:     pos,
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO form_fields (id, form_id, field_type, label, placeholder, options, content, sub_questions, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			f.ID, f.FormID, f.Type, f.Label, f.Placeholder, f.Options, f.Content, f.SubQuestions, f.Position)
		if err != nil {
			return nil, fmt.Errorf("insert field %d: %w", pos, err)
		}
		fields = append(fields, f)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return fields, nil
}
