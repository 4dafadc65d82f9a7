package roles

import (
	"context"

	"github.com/fieldbase/fieldbase/internal/authz"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListActiveRoles(ctx context.Context) ([]Role, error)
}

// Service handles role business logic and serves as the authz role catalog.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListActiveRoles implements authz.RoleCatalog.
func (s *Service) ListActiveRoles(ctx context.Context) ([]authz.Role, error) {
	rows, err := s.repo.ListActiveRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]authz.Role, 0, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		out = append(out, authz.Role{Name: row.Name, Priority: row.Priority, Active: true})
	}
	return out, nil
}

var _ authz.RoleCatalog = (*Service)(nil)
