package service

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
)

// ManagerService handles manager account business logic.
type ManagerService struct {
	managers *repository.ManagerRepository
}

// NewManagerService creates a new ManagerService.
func NewManagerService(managers *repository.ManagerRepository) *ManagerService {
	return &ManagerService{managers: managers}
}

// GetByID retrieves a manager by ID.
func (s *ManagerService) GetByID(ctx context.Context, id int) (*model.Manager, error) {
	return s.managers.GetByID(ctx, id)
}

// GetByEmail retrieves a manager by email.
func (s *ManagerService) GetByEmail(ctx context.Context, email string) (*model.Manager, error) {
	return s.managers.GetByEmail(ctx, email)
}

// Create inserts a new manager with an already-hashed password.
func (s *ManagerService) Create(ctx context.Context, m *model.Manager) error {
	return s.managers.Create(ctx, m)
}
