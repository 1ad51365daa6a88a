package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// OverridesHandler serves the per-user permission override endpoints.
type OverridesHandler struct {
	logger    *slog.Logger
	service   *Service
	repo      *Repository
	validator *validator.Validate
}

// NewOverridesHandler constructs an OverridesHandler.
func NewOverridesHandler(logger *slog.Logger, service *Service, repo *Repository) *OverridesHandler {
	return &OverridesHandler{logger: logger, service: service, repo: repo, validator: validator.New()}
}

// MountRoutes registers the override routes under a user subtree.
func (h *OverridesHandler) MountRoutes(r chi.Router) {
	r.Get("/{id}/overrides", h.list)
	r.Put("/{id}/overrides", h.set)
}

func (h *OverridesHandler) list(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "user id must be numeric")
		return
	}
	overrides, err := h.repo.UserOverrides(r.Context(), targetID)
	if err != nil {
		h.logger.Error("list overrides", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make(map[string]string, len(overrides))
	for code, ov := range overrides {
		out[code] = ov.String()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": out})
}

type setOverrideRequest struct {
	Permission string `json:"permission" validate:"required,max=100"`
	State      string `json:"state" validate:"required,oneof=inherit grant deny"`
}

func (h *OverridesHandler) set(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	actor, err := h.repo.GetUser(r.Context(), actorID)
	if err != nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "user id must be numeric")
		return
	}
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	var ov Override
	switch req.State {
	case "grant":
		ov = OverrideGrant
	case "deny":
		ov = OverrideDeny
	default:
		ov = OverrideInherit
	}
	if err := h.service.SetOverride(r.Context(), actor, targetID, req.Permission, ov); err != nil {
		h.logger.Error("set override", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
