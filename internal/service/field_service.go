package service

import (
	"context"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FieldService handles form field-definition business logic.
type FieldService struct {
	fields *repository.FieldRepository
	forms  *repository.FormRepository
	log    zerolog.Logger
}

// NewFieldService creates a new FieldService.
func NewFieldService(fields *repository.FieldRepository, forms *repository.FormRepository, log zerolog.Logger) *FieldService {
	return &FieldService{
		fields: fields,
		forms:  forms,
		log:    log.With().Str("component", "field_service").Logger(),
	}
}

// ListByForm retrieves a form's fields in render order.
func (s *FieldService) ListByForm(ctx context.Context, formID uuid.UUID) ([]model.FieldDefinition, error) {
	fields, err := s.fields.ListByForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []model.FieldDefinition{}
	}
	return fields, nil
}

// ReplaceAll replaces a form's field list transactionally. Locked once
// attempts exist: stored answers are keyed by field ID, and a field swap
// under live candidates would orphan them.
func (s *FieldService) ReplaceAll(ctx context.Context, formID uuid.UUID, managerID int, req model.ReplaceFieldsRequest) ([]model.FieldDefinition, error) {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.ManagerID != managerID {
		return nil, ErrNotFormOwner
	}

	hasAttempts, err := s.forms.HasAttempts(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("check attempts: %w", err)
	}
	if hasAttempts {
		return nil, ErrFormHasAttempts
	}

	fields, err := s.fields.ReplaceAll(ctx, formID, req.Fields)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("form_id", formID.String()).
		Int("fields", len(fields)).
		Msg("form fields replaced")
	return fields, nil
}
