package reportshandler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pms/internal/domain/appraisal"
	"pms/internal/domain/auth"
	"pms/internal/domain/reports"
	"pms/internal/platform/jobs"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Handler struct {
	Service *reports.Service
	Jobs    *jobs.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *reports.Service, jobsSvc *jobs.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Jobs: jobsSvc, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		read := middleware.RequirePermission(auth.PermReportsRead, h.Perms)
		admin := middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)

		r.With(read).Get("/appraisals/summary", h.handleSummary)
		r.With(read).Get("/appraisals/summary/history", h.handleHistory)
		r.With(read).Get("/appraisals/export", h.handleExport)
		r.With(admin).Get("/jobs", h.handleJobRuns)
		r.With(admin).Post("/snapshots", h.handleCaptureSnapshot)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.Summary(r.Context())
	if err != nil {
		slog.Error("summary build failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to build summary", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 20, 100)
	snaps, total, err := h.Service.History(r.Context(), page.Limit, page.Offset)
	if err != nil {
		slog.Error("snapshot history failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to list snapshots", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{
		"items":  snaps,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	status := r.URL.Query().Get("status")

	v := shared.NewValidator()
	v.Enum("format", format, []string{"csv", "xlsx"}, "must be csv or xlsx")
	v.Enum("status", status, appraisal.StatusNames(), "must be a known appraisal status")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	rows, err := h.Service.ExportRows(r.Context(), status)
	if err != nil {
		slog.Error("export query failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to export appraisals", middleware.GetRequestID(r.Context()))
		return
	}

	filename := fmt.Sprintf("appraisals-%s.%s", uuid.NewString(), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := reports.WriteXLSX(w, rows); err != nil {
			slog.Warn("xlsx export write failed", "err", err)
		}
	default:
		w.Header().Set("Content-Type", "text/csv")
		if err := reports.WriteCSV(w, rows); err != nil {
			slog.Warn("csv export write failed", "err", err)
		}
	}
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	filter := reports.JobRunFilter{
		JobType: r.URL.Query().Get("jobType"),
		Status:  r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, ok := v.Date("from", raw); ok {
			filter.StartedFrom = &from
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, ok := v.Date("to", raw); ok {
			filter.StartedTo = &to
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	runs, total, err := h.Service.JobRuns(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		slog.Error("job runs query failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{
		"items":  runs,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	details, err := h.Jobs.SnapshotNow(r.Context())
	if err != nil {
		slog.Error("snapshot capture failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "snapshot_failed", "failed to capture snapshot", middleware.GetRequestID(r.Context()))
		return
	}
	api.Created(w, details, middleware.GetRequestID(r.Context()))
}
