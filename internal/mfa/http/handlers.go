// Package mfahttp exposes the second factor lifecycle endpoints.
package mfahttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-portal/atlas-portal/internal/access"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/mfa"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Handler serves the second factor lifecycle. Enrollment endpoints must stay
// reachable from a session still pending setup, so they go through the
// facade's known-session gate rather than the verified gate.
type Handler struct {
	logger    *slog.Logger
	facade    *access.Facade
	service   *mfa.Service
	users     *authz.Repository
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, facade *access.Facade, service *mfa.Service, users *authz.Repository) *Handler {
	return &Handler{logger: logger, facade: facade, service: service, users: users, validator: validator.New()}
}

// MountRoutes registers the MFA routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/factors", h.listFactors)
	r.Post("/enroll", h.enroll)
	r.Post("/challenge", h.challenge)
	r.Post("/verify", h.verify)
	r.Delete("/factors/{id}", h.unenroll)
	r.Post("/force/{userID}", h.force)
}

func (h *Handler) listFactors(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	factors, err := h.service.ListFactors(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list mfa factors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"factors": factors})
}

type enrollRequest struct {
	FriendlyName string `json:"friendly_name" validate:"omitempty,max=100"`
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req enrollRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	enrollment, err := h.facade.EnrollMFA(r.Context(), user, req.FriendlyName)
	if err != nil {
		h.logger.Error("mfa enroll", slog.Int64("user", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, enrollment)
}

type challengeRequest struct {
	FactorID string `json:"factor_id" validate:"required"`
}

func (h *Handler) challenge(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req challengeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	challengeID, err := h.facade.ChallengeMFA(r.Context(), user, req.FactorID)
	if err != nil {
		h.logger.Error("mfa challenge", slog.Int64("user", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"challenge_id": challengeID})
}

type verifyRequest struct {
	FactorID    string `json:"factor_id" validate:"required"`
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.facade.VerifyMFA(r.Context(), user, req.FactorID, req.ChallengeID, req.Code); err != nil {
		h.logger.Warn("mfa verify failed", slog.Int64("user", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	state, err := h.facade.SessionState(r.Context(), user)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok", "session_state": state})
}

func (h *Handler) unenroll(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	factorID := chi.URLParam(r, "id")
	if err := h.service.Unenroll(r.Context(), user, factorID); err != nil {
		h.logger.Error("mfa unenroll", slog.Int64("user", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) force(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "user id must be numeric")
		return
	}
	target, err := h.users.GetUser(r.Context(), targetID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.facade.ForceMFA(r.Context(), actor, target); err != nil {
		h.logger.Error("mfa force", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) currentUser(r *http.Request) (authz.User, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		return authz.User{}, false
	}
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		return authz.User{}, false
	}
	return user, true
}
