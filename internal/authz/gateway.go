package authz

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Strategy selects the policy a guarded route relies on. The variants are
// FineGrainedPermission, RoleSufficiency and AuthenticatedOnly.
type Strategy interface {
	strategyName() string
	describe() string
}

// FineGrainedPermission checks an (action, subject) grant in the permission store.
type FineGrainedPermission struct {
	Requirement Requirement
}

func (FineGrainedPermission) strategyName() string { return "permission" }

func (s FineGrainedPermission) describe() string { return s.Requirement.String() }

// RoleSufficiency compares the principal's role against the hierarchy.
//
// Deprecated: kept for legacy routes only; use FineGrainedPermission.
type RoleSufficiency struct {
	Roles []string
}

func (RoleSufficiency) strategyName() string { return "role" }

func (s RoleSufficiency) describe() string { return "role:" + strings.Join(s.Roles, "|") }

// AuthenticatedOnly requires nothing beyond a valid session.
type AuthenticatedOnly struct{}

func (AuthenticatedOnly) strategyName() string { return "authenticated" }

func (AuthenticatedOnly) describe() string { return "authenticated" }

// GatewayConfig wires the gateway's collaborators.
type GatewayConfig struct {
	Sessions  SessionResolver
	Evaluator *Evaluator
	Hierarchy *HierarchyResolver
	Catalog   *Catalog
	Logger    *slog.Logger
	Recorder  DecisionRecorder
}

// Gateway authorizes requests before they reach business handlers. It holds
// no per-request state and is safe for concurrent use.
type Gateway struct {
	sessions  SessionResolver
	evaluator *Evaluator
	hierarchy *HierarchyResolver
	catalog   *Catalog
	logger    *slog.Logger
	recorder  DecisionRecorder
}

// NewGateway constructs a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Gateway{
		sessions:  cfg.Sessions,
		evaluator: cfg.Evaluator,
		hierarchy: cfg.Hierarchy,
		catalog:   catalog,
		logger:    logger,
		recorder:  cfg.Recorder,
	}
}

// Catalog exposes the requirement catalog used for key lookups.
func (g *Gateway) Catalog() *Catalog { return g.catalog }

// Guard returns middleware enforcing req.
func (g *Gateway) Guard(req Requirement) func(http.Handler) http.Handler {
	return g.Middleware(FineGrainedPermission{Requirement: req})
}

// GuardKey is Guard for a catalog key. Unknown keys panic at wiring time.
func (g *Gateway) GuardKey(key string) func(http.Handler) http.Handler {
	return g.Guard(g.catalog.MustGet(key))
}

// GuardAuthenticatedOnly wraps next so that it only runs for callers with a
// valid session.
func (g *Gateway) GuardAuthenticatedOnly(next http.Handler) http.Handler {
	return g.Middleware(AuthenticatedOnly{})(next)
}

// GuardOwnRecords guards "list my own records" endpoints with read access
// on subject.
func (g *Gateway) GuardOwnRecords(subject string) func(http.Handler) http.Handler {
	return g.Guard(NewRequirement(ActionRead, subject))
}

// GuardRoles returns middleware admitting principals whose role is at least
// as privileged as one of roles.
//
// Deprecated: use Guard with a catalog requirement.
func (g *Gateway) GuardRoles(roles ...string) func(http.Handler) http.Handler {
	return g.Middleware(RoleSufficiency{Roles: roles})
}

// Middleware enforces strategy. On ALLOW it calls next exactly once with the
// original request; on denial next is never called.
func (g *Gateway) Middleware(strategy Strategy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verdict := g.Authorize(r, strategy)
			g.record(strategy, verdict)
			if !verdict.Authorized {
				g.logDenial(r, strategy, verdict)
				WriteDenial(w, verdict)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authorize runs the decision tree for r without writing a response.
func (g *Gateway) Authorize(r *http.Request, strategy Strategy) (verdict Verdict) {
	var principal *Principal
	defer func() {
		if rec := recover(); rec != nil {
			verdict = internalVerdict(principal, fmt.Errorf("authorization panic: %v", rec))
		}
	}()

	principal, err := g.Principal(r)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return Deny(nil, StatusUnauthenticated, "Authentication required")
		}
		return internalVerdict(nil, fmt.Errorf("resolve session: %w", err))
	}

	switch s := strategy.(type) {
	case AuthenticatedOnly:
		return Allow(principal)
	case FineGrainedPermission:
		return g.evaluator.Evaluate(r.Context(), principal, s.Requirement)
	case RoleSufficiency:
		return g.checkRoles(r, principal, s.Roles)
	default:
		return internalVerdict(principal, errors.New("authorization strategy not configured"))
	}
}

// Principal resolves the caller of r. A missing session yields ErrNoSession.
func (g *Gateway) Principal(r *http.Request) (*Principal, error) {
	if g.sessions == nil {
		return nil, errors.New("session resolver not configured")
	}
	p, err := g.sessions.ResolveSession(r)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoSession
	}
	return p, nil
}

func (g *Gateway) checkRoles(r *http.Request, p *Principal, roles []string) Verdict {
	if g.hierarchy == nil {
		return internalVerdict(p, errors.New("role hierarchy not configured"))
	}
	if g.hierarchy.IsRoleSufficient(r.Context(), p.Role, roles...) {
		return Allow(p)
	}
	return Deny(p, StatusForbidden, fmt.Sprintf("Insufficient role: %s does not satisfy %s", p.Role, strings.Join(roles, ", ")))
}

func (g *Gateway) record(strategy Strategy, v Verdict) {
	if g.recorder == nil || strategy == nil {
		return
	}
	outcome := "allow"
	if !v.Authorized {
		outcome = v.Status.String()
	}
	g.recorder.AuthzDecision(strategy.strategyName(), outcome)
}

func (g *Gateway) logDenial(r *http.Request, strategy Strategy, v Verdict) {
	attrs := []any{
		slog.String("status", v.Status.String()),
		slog.String("reason", v.Reason),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}
	if strategy != nil {
		attrs = append(attrs, slog.String("strategy", strategy.strategyName()), slog.String("requirement", strategy.describe()))
	}
	if v.Principal != nil {
		attrs = append(attrs, slog.String("principal_id", v.Principal.ID), slog.String("principal_role", v.Principal.Role))
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}
	if v.Status == StatusInternalError {
		if v.Err != nil {
			attrs = append(attrs, slog.Any("error", v.Err))
		}
		g.logger.Error("authz denied", attrs...)
		return
	}
	g.logger.Warn("authz denied", attrs...)
}
