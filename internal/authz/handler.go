package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldbase/fieldbase/internal/platform/httpx"
)

// Handler exposes the caller's identity and an ad-hoc permission check used
// by the UI to gate controls.
type Handler struct {
	logger    *slog.Logger
	gateway   *Gateway
	evaluator *Evaluator
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, gateway *Gateway, evaluator *Evaluator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gateway: gateway, evaluator: evaluator, validator: validator.New()}
}

// MountRoutes registers the routes under the API prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gateway.GuardAuthenticatedOnly)
		r.Get("/me", h.me)
		r.Post("/permissions/check", h.check)
	})
}

type checkRequest struct {
	Key     string `json:"key" validate:"required_without_all=Action Subject"`
	Action  string `json:"action" validate:"required_with=Subject"`
	Subject string `json:"subject" validate:"required_with=Action"`
}

type checkResponse struct {
	Authorized  bool   `json:"authorized"`
	Requirement string `json:"requirement"`
	Reason      string `json:"reason,omitempty"`
	Code        string `json:"code,omitempty"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, err := h.gateway.Principal(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	req := NewRequirement(Action(body.Action), body.Subject)
	if body.Key != "" {
		found, err := h.gateway.Catalog().Lookup(body.Key)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Unknown Requirement", err.Error())
			return
		}
		req = found
	}

	p, err := h.gateway.Principal(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	verdict := h.evaluator.Evaluate(r.Context(), p, req)
	if verdict.Status == StatusInternalError {
		h.logger.Error("authz permission check", slog.String("requirement", req.String()), slog.Any("error", verdict.Err))
	}
	httpx.JSON(w, http.StatusOK, checkResponse{
		Authorized:  verdict.Authorized,
		Requirement: req.String(),
		Reason:      verdict.Reason,
		Code:        verdict.Code(),
	})
}
