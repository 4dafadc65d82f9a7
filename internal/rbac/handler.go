package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldbase/fieldbase/internal/authz"
	"github.com/fieldbase/fieldbase/internal/platform/httpx"
)

// Handler exposes the caller's effective permissions so clients can hide
// controls they cannot use. Enforcement still happens in the gateway.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gateway *authz.Gateway
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gateway *authz.Gateway) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gateway: gateway}
}

// MountRoutes registers permission routes under the API prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gateway.GuardAuthenticatedOnly)
		r.Get("/permissions/me", h.myPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gateway.GuardOwnRecords("Permission"))
		r.Get("/permissions/users/{id}", h.userPermissions)
	})
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	p, err := h.gateway.Principal(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil || !p.Active {
		httpx.JSON(w, http.StatusOK, map[string]any{"permissions": []string{}})
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("effective permissions", slog.String("principal_id", p.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// userPermissions lists another user's effective permissions for
// administrators holding read.Permission.
func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", "user id must be a positive integer")
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
}
