package service

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RosterService handles per-form candidate selection.
type RosterService struct {
	roster *repository.RosterRepository
	forms  *repository.FormRepository
	log    zerolog.Logger
}

// NewRosterService creates a new RosterService.
func NewRosterService(roster *repository.RosterRepository, forms *repository.FormRepository, log zerolog.Logger) *RosterService {
	return &RosterService{
		roster: roster,
		forms:  forms,
		log:    log.With().Str("component", "roster_service").Logger(),
	}
}

// SelectCandidates adds candidates to a form's roster, skipping duplicates.
// Returns how many were actually added.
func (s *RosterService) SelectCandidates(ctx context.Context, formID uuid.UUID, managerID int, req model.SelectCandidatesRequest) (int, error) {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return 0, err
	}
	if form.ManagerID != managerID {
		return 0, ErrNotFormOwner
	}

	added, err := s.roster.SelectCandidates(ctx, formID, req.Candidates)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("form_id", formID.String()).
		Int("requested", len(req.Candidates)).
		Int("added", added).
		Msg("candidates selected")
	return added, nil
}

// List retrieves a form's roster with clamped pagination.
func (s *RosterService) List(ctx context.Context, formID uuid.UUID, managerID, page, perPage int) ([]model.RosterEntry, *response.Pagination, error) {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, nil, err
	}
	if form.ManagerID != managerID {
		return nil, nil, ErrNotFormOwner
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

	entries, total, err := s.roster.ListByForm(ctx, formID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if entries == nil {
		entries = []model.RosterEntry{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return entries, pagination, nil
}

// Remove deletes one candidate from a form's roster.
func (s *RosterService) Remove(ctx context.Context, formID uuid.UUID, managerID int, email string) error {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return err
	}
	if form.ManagerID != managerID {
		return ErrNotFormOwner
	}
	return s.roster.Remove(ctx, formID, email)
}

// GetForLogin fetches the roster entry backing a candidate login.
func (s *RosterService) GetForLogin(ctx context.Context, formID uuid.UUID, email string) (*model.RosterEntry, error) {
	return s.roster.GetByFormAndEmail(ctx, formID, email)
}
