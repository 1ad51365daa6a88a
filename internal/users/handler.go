package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Handler serves the user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	reader    ReadStore
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, reader ReadStore) *Handler {
	return &Handler{logger: logger, service: service, reader: reader, validator: validator.New()}
}

// MountRoutes registers the user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/reactivate", h.reactivate)
	r.Put("/{id}/role", h.assignRole)
	r.Put("/{id}/type", h.changeType)
	r.Get("/{id}/export", h.export)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	profiles, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": profiles})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), actor, targetID)
	if err != nil {
		h.logger.Error("get user", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), actor, targetID); err != nil {
		h.logger.Error("deactivate user", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.Reactivate(r.Context(), actor, targetID); err != nil {
		h.logger.Error("reactivate user", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type assignRoleRequest struct {
	RoleID *int64 `json:"role_id"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), actor, targetID, req.RoleID); err != nil {
		h.logger.Error("assign role", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type changeTypeRequest struct {
	Type string `json:"type" validate:"required,oneof=super_admin admin equipo cliente"`
}

func (h *Handler) changeType(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	var req changeTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.service.ChangeType(r.Context(), actor, targetID, authz.UserType(req.Type)); err != nil {
		h.logger.Error("change user type", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	bundle, err := h.service.ExportData(r.Context(), actor, targetID)
	if err != nil {
		h.logger.Error("export user data", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bundle)
}

func (h *Handler) actorAndTarget(w http.ResponseWriter, r *http.Request) (authz.User, int64, bool) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return authz.User{}, 0, false
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "user id must be numeric")
		return authz.User{}, 0, false
	}
	return actor, targetID, true
}

func (h *Handler) currentActor(r *http.Request) (authz.User, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		return authz.User{}, false
	}
	actor, err := h.reader.GetUser(r.Context(), id)
	if err != nil {
		return authz.User{}, false
	}
	return actor, true
}
