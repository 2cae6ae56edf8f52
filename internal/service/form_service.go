package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Form lifecycle errors.
var (
	ErrNotFormOwner    = errors.New("not the owner of this form")
	ErrFormHasAttempts = errors.New("form already has attempts")
	ErrDurationLocked  = errors.New("duration is locked once attempts exist")
)

// FormLifecycleStore is the persistence surface FormService needs.
type FormLifecycleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentForm, error)
	Create(ctx context.Context, f *model.AssessmentForm) error
	Clone(ctx context.Context, sourceID uuid.UUID, label string) (*model.AssessmentForm, error)
	ListByManagerPaginated(ctx context.Context, managerID, limit, offset int) ([]model.AssessmentForm, int, error)
	Update(ctx context.Context, f *model.AssessmentForm) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.FormStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasAttempts(ctx context.Context, id uuid.UUID) (bool, error)
}

// SubmissionStore is the attempt surface FormService needs for review.
type SubmissionStore interface {
	ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]model.CandidateAttempt, int, error)
	Review(ctx context.Context, formID uuid.UUID, email string, score *float64, remarks *string) error
}

// FormService handles assessment form business logic: lifecycle, cloning,
// and submission review.
type FormService struct {
	forms    FormLifecycleStore
	attempts SubmissionStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewFormService creates a new FormService.
func NewFormService(forms FormLifecycleStore, attempts SubmissionStore, rdb *redis.Client, log zerolog.Logger) *FormService {
	return &FormService{
		forms:    forms,
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "form_service").Logger(),
	}
}

// Get retrieves a form without an ownership check. Used on candidate paths,
// where access is governed by the roster instead.
func (s *FormService) Get(ctx context.Context, id uuid.UUID) (*model.AssessmentForm, error) {
	return s.forms.GetByID(ctx, id)
}

// GetOwned retrieves a form and verifies ownership.
func (s *FormService) GetOwned(ctx context.Context, id uuid.UUID, managerID int) (*model.AssessmentForm, error) {
	form, err := s.forms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.ManagerID != managerID {
		return nil, ErrNotFormOwner
	}
	return form, nil
}

// List retrieves a manager's forms with clamped pagination.
func (s *FormService) List(ctx context.Context, managerID, page, perPage int) ([]model.AssessmentForm, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	forms, total, err := s.forms.ListByManagerPaginated(ctx, managerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if forms == nil {
		forms = []model.AssessmentForm{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return forms, pagination, nil
}

// Create inserts a new form as INACTIVE and provisions its storage.
func (s *FormService) Create(ctx context.Context, managerID int, req model.CreateFormRequest) (*model.AssessmentForm, error) {
	form := &model.AssessmentForm{
		Label:           req.Label,
		DurationMinutes: req.DurationMinutes,
		StartNote:       req.StartNote,
		EndNote:         req.EndNote,
		Status:          model.FormStatusInactive,
		ManagerID:       managerID,
	}
	if err := s.forms.Create(ctx, form); err != nil {
		return nil, err
	}

	s.log.Info().Str("form_id", form.ID.String()).Int("manager_id", managerID).Msg("form created")
	return form, nil
}

// Clone copies a form definition and its fields under a new label. The clone
// gets fresh storage, an empty roster and INACTIVE status via the copied row.
func (s *FormService) Clone(ctx context.Context, sourceID uuid.UUID, managerID int, label string) (*model.AssessmentForm, error) {
	if _, err := s.GetOwned(ctx, sourceID, managerID); err != nil {
		return nil, err
	}

	clone, err := s.forms.Clone(ctx, sourceID, label)
	if err != nil {
		return nil, err
	}
	if clone.Status != model.FormStatusInactive {
		if err := s.forms.UpdateStatus(ctx, clone.ID, model.FormStatusInactive); err != nil {
			return nil, err
		}
		clone.Status = model.FormStatusInactive
	}

	s.log.Info().
		Str("source_id", sourceID.String()).
		Str("clone_id", clone.ID.String()).
		Msg("form cloned")
	return clone, nil
}

// Update modifies a form's label, notes and (while no attempts exist)
// duration. Duration is immutable once any candidate has started: the
// timing arithmetic for open attempts must not shift under them.
func (s *FormService) Update(ctx context.Context, id uuid.UUID, managerID int, req model.UpdateFormRequest) (*model.AssessmentForm, error) {
	form, err := s.GetOwned(ctx, id, managerID)
	if err != nil {
		return nil, err
	}

	if req.DurationMinutes != nil && *req.DurationMinutes != form.DurationMinutes {
		hasAttempts, err := s.forms.HasAttempts(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check attempts: %w", err)
		}
		if hasAttempts {
			return nil, ErrDurationLocked
		}
		form.DurationMinutes = *req.DurationMinutes
	}

	if req.Label != "" {
		form.Label = req.Label
	}
	if req.StartNote != nil {
		form.StartNote = *req.StartNote
	}
	if req.EndNote != nil {
		form.EndNote = *req.EndNote
	}

	if err := s.forms.Update(ctx, form); err != nil {
		return nil, err
	}

	// Keep the cached duration in sync for open state lookups.
	_ = s.rdb.Set(ctx, config.CacheKey.FormDurationKey(id.String()), form.DurationMinutes, 0)
	return form, nil
}

// Activate opens a form for candidate logins and warms the duration cache.
func (s *FormService) Activate(ctx context.Context, id uuid.UUID, managerID int) error {
	form, err := s.GetOwned(ctx, id, managerID)
	if err != nil {
		return err
	}

	if err := s.forms.UpdateStatus(ctx, id, model.FormStatusActive); err != nil {
		return err
	}
	_ = s.rdb.Set(ctx, config.CacheKey.FormDurationKey(id.String()), form.DurationMinutes, 0)

	s.log.Info().Str("form_id", id.String()).Msg("form activated")
	return nil
}

// Deactivate blocks new candidate logins. Soft: in-flight attempts keep
// running and can still finalize.
func (s *FormService) Deactivate(ctx context.Context, id uuid.UUID, managerID int) error {
	if _, err := s.GetOwned(ctx, id, managerID); err != nil {
		return err
	}

	if err := s.forms.UpdateStatus(ctx, id, model.FormStatusInactive); err != nil {
		return err
	}

	s.log.Info().Str("form_id", id.String()).Msg("form deactivated")
	return nil
}

// Delete removes a form and cascades to its entire storage: fields, roster
// and attempts go with the definition. Deactivation is the reversible
// alternative when the data should survive.
func (s *FormService) Delete(ctx context.Context, id uuid.UUID, managerID int) error {
	if _, err := s.GetOwned(ctx, id, managerID); err != nil {
		return err
	}

	if err := s.forms.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.rdb.Del(ctx, config.CacheKey.FormDurationKey(id.String()))

	s.log.Info().Str("form_id", id.String()).Msg("form deleted")
	return nil
}

// ListSubmissions retrieves a form's attempts for manager review.
func (s *FormService) ListSubmissions(ctx context.Context, formID uuid.UUID, managerID, page, perPage int) ([]model.CandidateAttempt, *response.Pagination, error) {
	if _, err := s.GetOwned(ctx, formID, managerID); err != nil {
		return nil, nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attempts.ListByForm(ctx, formID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.CandidateAttempt{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return attempts, pagination, nil
}

// Review records a manager's score and remarks on a submission.
func (s *FormService) Review(ctx context.Context, formID uuid.UUID, managerID int, email string, req model.ReviewRequest) error {
	if _, err := s.GetOwned(ctx, formID, managerID); err != nil {
		return err
	}
	return s.attempts.Review(ctx, formID, email, req.Score, req.Remarks)
}
