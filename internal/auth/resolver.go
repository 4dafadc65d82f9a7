package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fieldbase/fieldbase/internal/authz"
	"github.com/fieldbase/fieldbase/internal/shared"
)

// PrincipalFinder loads principals by user id.
type PrincipalFinder interface {
	FindPrincipal(ctx context.Context, id int64) (*authz.Principal, error)
}

// SessionResolver turns the request session into an authz.Principal.
type SessionResolver struct {
	users PrincipalFinder
}

// NewSessionResolver constructs a SessionResolver.
func NewSessionResolver(users PrincipalFinder) *SessionResolver {
	return &SessionResolver{users: users}
}

// ResolveSession implements authz.SessionResolver. Inactive principals are
// returned unchanged; rejecting them is left to the permission store.
func (s *SessionResolver) ResolveSession(r *http.Request) (*authz.Principal, error) {
	id, ok := shared.SessionUserID(r.Context())
	if !ok {
		return nil, authz.ErrNoSession
	}
	p, err := s.users.FindPrincipal(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, authz.ErrNoSession
		}
		return nil, fmt.Errorf("load principal %d: %w", id, err)
	}
	return p, nil
}

var _ authz.SessionResolver = (*SessionResolver)(nil)
