package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-portal/atlas-portal/internal/access"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	facade         *access.Facade
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, facade *access.Facade, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		facade:         facade,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Login gets a
// tighter per-IP limit than the global one; the alert window handles the rest.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/session", h.handleSession)
	r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// handleSession bootstraps a client: it issues the CSRF token the login form
// must echo back, mirroring how the login page used to embed it.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"csrf_token": token})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	UserID       int64        `json:"user_id"`
	Email        string       `json:"email"`
	SessionState access.State `json:"session_state"`
	Permissions  []string     `json:"permissions,omitempty"`
	CSRFToken    string       `json:"csrf_token,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	state, err := h.facade.SessionState(r.Context(), user)
	if err != nil {
		h.logger.Error("session state", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := loginResponse{UserID: user.ID, Email: user.Email, SessionState: state}
	if token, err := h.csrfManager.EnsureToken(r.Context(), sess); err == nil {
		resp.CSRFToken = token
	}
	if state == access.StateVerified {
		set, err := h.facade.ResolveAll(r.Context(), user)
		if err != nil {
			h.logger.Error("resolve permissions", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		resp.Permissions = set.Codes()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if id, ok := shared.CurrentUserID(r.Context()); ok {
			h.service.RecordLogout(r.Context(), id)
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logged_out": true})
}
