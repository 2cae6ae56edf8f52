package repository

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ManagerRepository handles manager account data access.
type ManagerRepository struct {
	pool *pgxpool.Pool
}

// NewManagerRepository creates a new ManagerRepository.
func NewManagerRepository(pool *pgxpool.Pool) *ManagerRepository {
	return &ManagerRepository{pool: pool}
}

// GetByID retrieves a manager by ID.
func (r *ManagerRepository) GetByID(ctx context.Context, id int) (*model.Manager, error) {
	m := &model.Manager{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM managers WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByEmail retrieves a manager by their unique email.
func (r *ManagerRepository) GetByEmail(ctx context.Context, email string) (*model.Manager, error) {
	m := &model.Manager{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM managers WHERE email = $1`, email,
	).Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create inserts a new manager.
func (r *ManagerRepository) Create(ctx context.Context, m *model.Manager) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO managers (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		m.Name, m.Email, m.PasswordHash,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}
