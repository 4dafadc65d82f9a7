package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldbase/fieldbase/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID loads a user with the name of its primary role. Users whose role
// row is missing carry an empty role name.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	const query = `
SELECT u.id, u.email, COALESCE(u.name, ''), COALESCE(ro.name, ''), u.is_active, u.created_at, u.updated_at
FROM users u
LEFT JOIN roles ro ON ro.id = u.primary_role_id
WHERE u.id = $1`
	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.RoleName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: find by id: %w", err)
	}
	return u, nil
}

var _ RepositoryPort = (*Repository)(nil)
