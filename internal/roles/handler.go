package roles

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

// Handler serves the role catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	users     *authz.Repository
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, users *authz.Repository) *Handler {
	return &Handler{logger: logger, service: service, users: users, validator: validator.New()}
}

// MountRoutes registers the role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	r.Put("/{id}/permissions", h.replacePermissions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	roles, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, roleID, ok := h.actorAndRole(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), actor, roleID)
	if err != nil {
		h.logger.Error("get role", slog.Int64("role", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	role, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.logger.Error("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, roleID, ok := h.actorAndRole(w, r)
	if !ok {
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	role, err := h.service.Update(r.Context(), actor, roleID, in)
	if err != nil {
		h.logger.Error("update role", slog.Int64("role", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, roleID, ok := h.actorAndRole(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, roleID); err != nil {
		h.logger.Error("delete role", slog.Int64("role", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type replacePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,max=100"`
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	actor, roleID, ok := h.actorAndRole(w, r)
	if !ok {
		return
	}
	var req replacePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.service.ReplacePermissions(r.Context(), actor, roleID, req.Permissions); err != nil {
		h.logger.Error("replace role permissions", slog.Int64("role", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) actorAndRole(w http.ResponseWriter, r *http.Request) (authz.User, int64, bool) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return authz.User{}, 0, false
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "role id must be numeric")
		return authz.User{}, 0, false
	}
	return actor, roleID, true
}

func (h *Handler) currentActor(r *http.Request) (authz.User, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		return authz.User{}, false
	}
	actor, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		return authz.User{}, false
	}
	return actor, true
}
