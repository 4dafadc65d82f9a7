package roles

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldbase/fieldbase/internal/authz"
	"github.com/fieldbase/fieldbase/internal/platform/httpx"
)

// Invalidator drops cached hierarchies.
type Invalidator interface {
	Bump(ctx context.Context) (int64, error)
}

// Handler manages role catalog endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	hierarchy   *authz.HierarchyResolver
	invalidator Invalidator
	gateway     *authz.Gateway
}

// NewHandler builds Handler instance. invalidator may be nil when no cache is configured.
func NewHandler(logger *slog.Logger, service *Service, hierarchy *authz.HierarchyResolver, invalidator Invalidator, gateway *authz.Gateway) *Handler {
	return &Handler{logger: logger, service: service, hierarchy: hierarchy, invalidator: invalidator, gateway: gateway}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gateway.GuardKey("role.read"))
		r.Get("/", h.listRoles)
		r.Get("/hierarchy", h.showHierarchy)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gateway.GuardKey("role.manage"))
		r.Post("/refresh", h.refresh)
	})
}

type hierarchyEntry struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) showHierarchy(w http.ResponseWriter, r *http.Request) {
	ranked := h.hierarchy.Resolve(r.Context())
	entries := make([]hierarchyEntry, 0, len(ranked))
	for _, name := range ranked.Names() {
		entries = append(entries, hierarchyEntry{Name: name, Priority: ranked[name]})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"hierarchy": entries})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if h.invalidator == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"version": 0})
		return
	}
	ver, err := h.invalidator.Bump(r.Context())
	if err != nil {
		h.logger.Error("bump role cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("role cache bumped", slog.Int64("version", ver))
	httpx.JSON(w, http.StatusOK, map[string]any{"version": ver})
}
