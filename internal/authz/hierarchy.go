package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// LowestPriority is assigned to roles without a rank and to roles the
	// catalog does not know about.
	LowestPriority = 999
	// DefaultTopRole keeps access when the catalog is unreachable.
	DefaultTopRole = "SUPER_ADMIN"
)

// Hierarchy maps a role name to its priority.
type Hierarchy map[string]int

// Priority returns the rank of role, or LowestPriority when unranked.
func (h Hierarchy) Priority(role string) int {
	if p, ok := h[normalizeRole(role)]; ok {
		return p
	}
	return LowestPriority
}

// Names returns role names ordered by priority, then name.
func (h Hierarchy) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := h[names[i]], h[names[j]]
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// HierarchyConfig tunes the resolver.
type HierarchyConfig struct {
	// TopRole is the only role kept when the catalog fails.
	TopRole string
	// CacheTTL bounds the staleness of a cached hierarchy. Zero disables caching.
	CacheTTL time.Duration
	// Timeout bounds a single catalog read. Zero means no extra deadline.
	Timeout time.Duration
}

// HierarchyResolver loads the live role ranking from the catalog.
type HierarchyResolver struct {
	catalog RoleCatalog
	cache   HierarchyCache
	logger  *slog.Logger
	cfg     HierarchyConfig
	group   singleflight.Group
}

// NewHierarchyResolver constructs a resolver. cache may be nil.
func NewHierarchyResolver(catalog RoleCatalog, cache HierarchyCache, logger *slog.Logger, cfg HierarchyConfig) *HierarchyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.TopRole) == "" {
		cfg.TopRole = DefaultTopRole
	}
	return &HierarchyResolver{catalog: catalog, cache: cache, logger: logger, cfg: cfg}
}

// Fallback returns the degraded hierarchy used when the catalog fails.
func (r *HierarchyResolver) Fallback() Hierarchy {
	return Hierarchy{normalizeRole(r.cfg.TopRole): 1}
}

// Resolve returns the current hierarchy. It never fails: catalog errors are
// logged and the fallback hierarchy is returned instead.
func (r *HierarchyResolver) Resolve(ctx context.Context) Hierarchy {
	if r.cache != nil && r.cfg.CacheTTL > 0 {
		cached, ok, err := r.cache.Get(ctx)
		if err != nil {
			r.logger.Warn("authz role cache read", slog.Any("error", err))
		} else if ok && len(cached) > 0 {
			return cached.clone()
		}
	}

	v, _, _ := r.group.Do("hierarchy", func() (interface{}, error) {
		return r.load(ctx), nil
	})
	return v.(Hierarchy).clone()
}

func (r *HierarchyResolver) load(ctx context.Context) (h Hierarchy) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("authz role catalog unavailable", slog.Any("error", fmt.Errorf("panic: %v", rec)))
			h = r.Fallback()
		}
	}()
	if r.catalog == nil {
		r.logger.Error("authz role catalog unavailable", slog.String("error", "catalog not configured"))
		return r.Fallback()
	}

	// The read is shared by every caller coalesced into this flight, so one
	// aborted request must not degrade the others.
	readCtx := context.WithoutCancel(ctx)
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(readCtx, r.cfg.Timeout)
		defer cancel()
	}
	roles, err := r.catalog.ListActiveRoles(readCtx)
	if err != nil {
		r.logger.Error("authz role catalog unavailable", slog.Any("error", err))
		return r.Fallback()
	}

	h = BuildHierarchy(roles)
	if r.cache != nil && r.cfg.CacheTTL > 0 && len(h) > 0 {
		if err := r.cache.Set(ctx, h, r.cfg.CacheTTL); err != nil {
			r.logger.Warn("authz role cache write", slog.Any("error", err))
		}
	}
	return h
}

// BuildHierarchy ranks the active roles. Inactive roles are skipped and
// roles without a priority are assigned LowestPriority. When a name appears
// twice the more privileged rank wins.
func BuildHierarchy(roles []Role) Hierarchy {
	h := make(Hierarchy, len(roles))
	for _, role := range roles {
		if !role.Active {
			continue
		}
		name := normalizeRole(role.Name)
		if name == "" {
			continue
		}
		priority := LowestPriority
		if role.Priority != nil {
			priority = *role.Priority
		}
		if existing, ok := h[name]; ok && existing <= priority {
			continue
		}
		h[name] = priority
	}
	return h
}

func (h Hierarchy) clone() Hierarchy {
	out := make(Hierarchy, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func normalizeRole(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
