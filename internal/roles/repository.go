package roles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roleColumns = `id, name, COALESCE(description, ''), priority, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns every role, active or not, ordered by priority.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	return r.query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY priority ASC NULLS LAST, name`)
}

// ListActiveRoles returns active roles ordered by priority ascending.
func (r *Repository) ListActiveRoles(ctx context.Context) ([]Role, error) {
	return r.query(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_active ORDER BY priority ASC NULLS LAST, name`)
}

func (r *Repository) query(ctx context.Context, sql string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("roles: query: %w", err)
	}
	roles, err := pgx.CollectRows(rows, scanRole)
	if err != nil {
		return nil, fmt.Errorf("roles: scan: %w", err)
	}
	return roles, nil
}

func scanRole(row pgx.CollectableRow) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Priority, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

var _ RepositoryPort = (*Repository)(nil)
