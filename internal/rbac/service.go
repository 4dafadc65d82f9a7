package rbac

import (
	"context"
)

// GrantLister loads the grants reachable by a user.
type GrantLister interface {
	ListGrants(ctx context.Context, userID int64, subjects []string) ([]Grant, error)
}

// Service exposes permission queries that are not single checks.
type Service struct {
	grants GrantLister
}

// NewService constructs a Service.
func NewService(grants GrantLister) *Service {
	return &Service{grants: grants}
}

// EffectivePermissions lists the "action.subject" keys held by userID, with
// direct revocations applied.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	grants, err := s.grants.ListGrants(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return Effective(grants), nil
}
