package directoryhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/appraisal"
	"pms/internal/domain/auth"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

// Handler serves the read-only reference data clients need to assemble
// an appraisal: the user directory for party selection and the seeded
// goal categories.
type Handler struct {
	Auth       *auth.Service
	Appraisals *appraisal.Service
	Perms      middleware.PermissionStore
}

func NewHandler(authSvc *auth.Service, appraisalSvc *appraisal.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Auth: authSvc, Appraisals: appraisalSvc, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermDirectoryRead, h.Perms)).Get("/users", h.handleListUsers)
	r.With(middleware.RequirePermission(auth.PermDirectoryRead, h.Perms)).Get("/goal-categories", h.handleListCategories)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	users, err := h.Auth.ListUsers(r.Context(), page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "directory_list_failed", "failed to list users", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, users, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Appraisals.Categories(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "directory_list_failed", "failed to list goal categories", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, categories, middleware.GetRequestID(r.Context()))
}
