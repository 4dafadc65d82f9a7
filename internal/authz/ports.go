package authz

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNoSession is returned by a SessionResolver when the request carries
	// no valid session.
	ErrNoSession = errors.New("authz: no session")
	// ErrStoreTimeout marks a permission check that exceeded its deadline.
	ErrStoreTimeout = errors.New("authz: permission store timeout")
	// ErrUnknownRequirement is returned for catalog keys that do not exist.
	ErrUnknownRequirement = errors.New("authz: unknown requirement")
)

// SessionResolver resolves the authenticated principal for a request.
// Implementations return ErrNoSession when nobody is logged in; any other
// error is treated as an infrastructure failure.
type SessionResolver interface {
	ResolveSession(r *http.Request) (*Principal, error)
}

// SessionResolverFunc adapts a function to SessionResolver.
type SessionResolverFunc func(r *http.Request) (*Principal, error)

// ResolveSession implements SessionResolver.
func (f SessionResolverFunc) ResolveSession(r *http.Request) (*Principal, error) {
	return f(r)
}

// PermissionStore answers grant questions. It checks direct per-user grants
// first and falls back to role derived grants.
type PermissionStore interface {
	CheckPermission(ctx context.Context, principalID string, action Action, subject string) (Decision, error)
}

// PermissionStoreFunc adapts a function to PermissionStore.
type PermissionStoreFunc func(ctx context.Context, principalID string, action Action, subject string) (Decision, error)

// CheckPermission implements PermissionStore.
func (f PermissionStoreFunc) CheckPermission(ctx context.Context, principalID string, action Action, subject string) (Decision, error) {
	return f(ctx, principalID, action, subject)
}

// RoleCatalog lists the active roles ordered by priority.
type RoleCatalog interface {
	ListActiveRoles(ctx context.Context) ([]Role, error)
}

// RoleCatalogFunc adapts a function to RoleCatalog.
type RoleCatalogFunc func(ctx context.Context) ([]Role, error)

// ListActiveRoles implements RoleCatalog.
func (f RoleCatalogFunc) ListActiveRoles(ctx context.Context) ([]Role, error) {
	return f(ctx)
}

// HierarchyCache stores resolved hierarchies for a bounded time. Only the
// role hierarchy may be cached; permission verdicts never are.
type HierarchyCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context) (Hierarchy, bool, error)
	Set(ctx context.Context, h Hierarchy, ttl time.Duration) error
}

// DecisionRecorder observes gateway outcomes.
type DecisionRecorder interface {
	AuthzDecision(strategy, outcome string)
}
