package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldbase/fieldbase/internal/authz"
	"github.com/fieldbase/fieldbase/internal/platform/db"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Repository is the PostgreSQL permission store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const grantsQuery = `
SELECT p.action, p.subject, up.granted, 'user' AS source
FROM user_permissions up
JOIN permissions p ON p.id = up.permission_id
WHERE up.user_id = $1 AND ($2::text[] IS NULL OR p.subject = ANY($2))
UNION ALL
SELECT p.action, p.subject, TRUE, 'role'
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id AND r.is_active
JOIN role_permissions rp ON rp.role_id = r.id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1 AND ($2::text[] IS NULL OR p.subject = ANY($2))`

// CheckPermission implements authz.PermissionStore. Principals that do not
// map to an active user are denied with a reason rather than an error. The
// user lookup and the grant scan share one read-only snapshot.
func (r *Repository) CheckPermission(ctx context.Context, principalID string, action authz.Action, subject string) (authz.Decision, error) {
	userID, err := strconv.ParseInt(principalID, 10, 64)
	if err != nil {
		return authz.Decision{Reason: "Unknown principal."}, nil
	}
	req := authz.NewRequirement(action, subject)
	var decision authz.Decision
	err = db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		active, err := userActive(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				decision = authz.Decision{Reason: "Unknown principal."}
				return nil
			}
			return err
		}
		if !active {
			decision = authz.Decision{Reason: "Account is inactive."}
			return nil
		}
		grants, err := listGrants(ctx, tx, userID, subjectScopes(req))
		if err != nil {
			return err
		}
		decision = Decide(req, grants)
		return nil
	})
	if err != nil {
		return authz.Decision{}, err
	}
	return decision, nil
}

// ListGrants returns every grant reachable by userID. A nil subjects slice
// means all subjects.
func (r *Repository) ListGrants(ctx context.Context, userID int64, subjects []string) ([]Grant, error) {
	return listGrants(ctx, r.pool, userID, subjects)
}

func listGrants(ctx context.Context, q querier, userID int64, subjects []string) ([]Grant, error) {
	rows, err := q.Query(ctx, grantsQuery, userID, subjects)
	if err != nil {
		return nil, fmt.Errorf("rbac: list grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grant, error) {
		var g Grant
		var action string
		if err := row.Scan(&action, &g.Subject, &g.Granted, &g.Source); err != nil {
			return Grant{}, err
		}
		g.Action = authz.Action(action)
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: scan grants: %w", err)
	}
	return grants, nil
}

func userActive(ctx context.Context, q querier, userID int64) (bool, error) {
	var active bool
	err := q.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("rbac: load user: %w", err)
	}
	return active, nil
}

// subjectScopes lists the subjects whose grants can cover req: the subject
// itself and each dotted parent.
func subjectScopes(req authz.Requirement) []string {
	scopes := []string{req.Subject}
	subject := req.Subject
	for {
		idx := strings.LastIndexByte(subject, '.')
		if idx < 0 {
			return scopes
		}
		subject = subject[:idx]
		scopes = append(scopes, subject)
	}
}

var _ authz.PermissionStore = (*Repository)(nil)
