// Package alertshttp exposes the security alert review surface.
package alertshttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Handler serves the alert listing, counts and resolution endpoints.
type Handler struct {
	logger    *slog.Logger
	monitor   *alerts.Monitor
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, monitor *alerts.Monitor) *Handler {
	return &Handler{logger: logger, monitor: monitor, validator: validator.New()}
}

// MountRoutes registers the alert routes. A non-nil resolveGuard wraps the
// resolution endpoint, which carries its own permission.
func (h *Handler) MountRoutes(r chi.Router, resolveGuard func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.Get("/counts", h.counts)
	if resolveGuard != nil {
		r.With(resolveGuard).Post("/{id}/resolve", h.resolve)
		return
	}
	r.Post("/{id}/resolve", h.resolve)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := alerts.Filters{
		Type:     alerts.Type(strings.TrimSpace(q.Get("type"))),
		Severity: alerts.Severity(strings.TrimSpace(q.Get("severity"))),
	}
	if raw := q.Get("affected_user_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.AffectedUserID = id
		}
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = t
		}
	}
	switch q.Get("resolved") {
	case "true":
		resolved := true
		filters.Resolved = &resolved
	case "false":
		resolved := false
		filters.Resolved = &resolved
	}

	result, err := h.monitor.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.monitor.CountUnresolved(r.Context())
	if err != nil {
		h.logger.Error("count alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

type resolveRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.monitor.Resolve(r.Context(), id, actorID, req.Notes); err != nil {
		h.logger.Warn("resolve alert", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resolved": true})
}
