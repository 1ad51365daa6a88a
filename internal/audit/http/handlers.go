// Package audithttp exposes the audit timeline over JSON and CSV.
package audithttp

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
)

// Handler serves the audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *audit.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the timeline routes. A non-nil exportGuard wraps the
// CSV export, which carries its own permission.
func (h *Handler) MountRoutes(r chi.Router, exportGuard func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	if exportGuard != nil {
		r.With(exportGuard).Get("/export", h.export)
		return
	}
	r.Get("/export", h.export)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Timeline(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Export(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_log.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "created_at", "actor_user_id", "action", "category", "description", "table", "record_id", "modified_fields"})
	for _, row := range rows {
		_ = writer.Write([]string{
			strconv.FormatInt(row.ID, 10),
			row.CreatedAt.Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			string(row.Action),
			row.Category,
			row.Description,
			row.Table,
			row.RecordID,
			strings.Join(row.ModifiedFields, "|"),
		})
	}
	writer.Flush()
}

func filtersFromQuery(r *http.Request) audit.TimelineFilters {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Action: strings.TrimSpace(q.Get("action")),
		Table:  strings.TrimSpace(q.Get("table")),
	}
	if raw := q.Get("actor_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.ActorID = id
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
	if raw := q.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			filters.Page = page
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			filters.PageSize = size
		}
	}
	return filters
}
