package appraisalhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/appraisal"
	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/reports"
	"pms/internal/platform/metrics"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

const createEndpoint = "POST /appraisals"

type Handler struct {
	Service *appraisal.Service
	Reports *reports.Service
	Perms   middleware.PermissionStore
	Audit   *audit.Service
	Metrics *metrics.Collector
	Idem    *middleware.IdempotencyStore
}

func NewHandler(service *appraisal.Service, reportsSvc *reports.Service, perms middleware.PermissionStore, auditSvc *audit.Service, collector *metrics.Collector, idem *middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Reports: reportsSvc, Perms: perms, Audit: auditSvc, Metrics: collector, Idem: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/appraisals", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAppraisalsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermAppraisalsWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermAppraisalsRead, h.Perms)).Get("/{appraisalID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermAppraisalsRead, h.Perms)).Get("/{appraisalID}/report.pdf", h.handleReportPDF)
		r.With(middleware.RequirePermission(auth.PermAppraisalsEvaluate, h.Perms)).Put("/{appraisalID}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermAppraisalsWrite, h.Perms)).Delete("/{appraisalID}", h.handleDelete)
		r.With(middleware.RequirePermission(auth.PermAppraisalsWrite, h.Perms)).Post("/{appraisalID}/goals", h.handleAddGoal)
		r.With(middleware.RequirePermission(auth.PermAppraisalsWrite, h.Perms)).Put("/{appraisalID}/goals/{goalID}", h.handleUpdateGoal)
		r.With(middleware.RequirePermission(auth.PermAppraisalsWrite, h.Perms)).Delete("/{appraisalID}/goals/{goalID}", h.handleRemoveGoal)
	})
}

func actorFrom(user auth.UserContext) appraisal.Actor {
	return appraisal.Actor{UserID: user.UserID, RoleLevel: user.RoleLevel}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	status := r.URL.Query().Get("status")
	v.Enum("status", status, appraisal.StatusNames(), "must be a known appraisal status")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	page := shared.ParsePagination(r, 20, 100)
	filter := appraisal.ListFilter{
		Status: appraisal.Status(status),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	items, total, err := h.Service.List(r.Context(), actorFrom(user), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	api.Success(w, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	// Body is read whole so the idempotency hash covers exactly what the
	// client sent.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		StartDate   string                `json:"startDate"`
		EndDate     string                `json:"endDate"`
		AppraiseeID string                `json:"appraiseeId"`
		AppraiserID string                `json:"appraiserId"`
		ReviewerID  string                `json:"reviewerId"`
		Goals       []appraisal.GoalInput `json:"goals"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("appraiseeId", payload.AppraiseeID, "appraisee is required")
	v.Required("appraiserId", payload.AppraiserID, "appraiser is required")
	v.Required("reviewerId", payload.ReviewerID, "reviewer is required")
	startDate, _ := v.Date("startDate", payload.StartDate)
	endDate, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", startDate, "endDate", endDate)
	for i, goal := range payload.Goals {
		v.Required(fmt.Sprintf("goals[%d].title", i), goal.Title, "goal title is required")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(body)
	if idemKey != "" && h.Idem != nil {
		stored, found, err := h.Idem.Check(r.Context(), user.UserID, createEndpoint, idemKey, requestHash)
		if err != nil {
			if errors.Is(err, middleware.ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was already used with a different payload", middleware.GetRequestID(r.Context()))
				return
			}
			slog.Warn("idempotency check failed", "err", err)
		} else if found {
			api.Created(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
			return
		}
	}

	created, err := h.Service.Create(r.Context(), actorFrom(user), appraisal.CreateRequest{
		StartDate:   startDate,
		EndDate:     endDate,
		AppraiseeID: payload.AppraiseeID,
		AppraiserID: payload.AppraiserID,
		ReviewerID:  payload.ReviewerID,
		Goals:       payload.Goals,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.create", "appraisal", created.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, created); err != nil {
		slog.Warn("audit appraisal.create failed", "err", err)
	}

	if idemKey != "" && h.Idem != nil {
		if response, err := json.Marshal(created); err == nil {
			if err := h.Idem.Save(r.Context(), user.UserID, createEndpoint, idemKey, requestHash, response); err != nil {
				slog.Warn("idempotency save failed", "err", err)
			}
		}
	}

	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	found, err := h.Service.Get(r.Context(), actorFrom(user), chi.URLParam(r, "appraisalID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.Success(w, found, middleware.GetRequestID(r.Context()))
}

// handleReportPDF serves the printable record of a completed appraisal.
// Visibility follows Get, so exactly the parties who can read the
// appraisal can fetch its report.
func (h *Handler) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	found, err := h.Service.Get(r.Context(), actorFrom(user), appraisalID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if found.Status != appraisal.StatusComplete {
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_state", "report is available once the appraisal is complete", middleware.GetRequestID(r.Context()))
		return
	}

	names, err := h.Reports.PartyNames(r.Context(), appraisalID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	categories, err := h.Service.Categories(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	categoryNames := make(map[string]string, len(categories))
	for _, category := range categories {
		categoryNames[category.ID] = category.Name
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=appraisal-%s.pdf", appraisalID))
	if err := reports.WriteAppraisalPDF(w, found, names, categoryNames); err != nil {
		slog.Warn("appraisal pdf write failed", "appraisalId", appraisalID, "err", err)
	}
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Status      *string `json:"status"`
		StartDate   *string `json:"startDate"`
		EndDate     *string `json:"endDate"`
		AppraiseeID *string `json:"appraiseeId"`
		AppraiserID *string `json:"appraiserId"`
		ReviewerID  *string `json:"reviewerId"`

		SelfRatings      []appraisal.GoalRatingUpdate `json:"selfRatings"`
		AppraiserRatings []appraisal.GoalRatingUpdate `json:"appraiserRatings"`

		AppraiserOverallRating   *int    `json:"appraiserOverallRating"`
		AppraiserOverallComments *string `json:"appraiserOverallComments"`
		ReviewerOverallRating    *int    `json:"reviewerOverallRating"`
		ReviewerOverallComments  *string `json:"reviewerOverallComments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	req := appraisal.UpdateRequest{
		AppraiseeID:              payload.AppraiseeID,
		AppraiserID:              payload.AppraiserID,
		ReviewerID:               payload.ReviewerID,
		SelfRatings:              payload.SelfRatings,
		AppraiserRatings:         payload.AppraiserRatings,
		AppraiserOverallRating:   payload.AppraiserOverallRating,
		AppraiserOverallComments: payload.AppraiserOverallComments,
		ReviewerOverallRating:    payload.ReviewerOverallRating,
		ReviewerOverallComments:  payload.ReviewerOverallComments,
	}

	if payload.Status != nil {
		v.Enum("status", *payload.Status, appraisal.StatusNames(), "must be a known appraisal status")
		status := appraisal.Status(*payload.Status)
		req.Status = &status
	}
	if payload.StartDate != nil {
		if parsed, ok := v.Date("startDate", *payload.StartDate); ok {
			req.StartDate = &parsed
		}
	}
	if payload.EndDate != nil {
		if parsed, ok := v.Date("endDate", *payload.EndDate); ok {
			req.EndDate = &parsed
		}
	}
	v.Range("appraiserOverallRating", payload.AppraiserOverallRating, 1, 5)
	v.Range("reviewerOverallRating", payload.ReviewerOverallRating, 1, 5)
	for i, rating := range payload.SelfRatings {
		v.Required(fmt.Sprintf("selfRatings[%d].goalId", i), rating.GoalID, "goal id is required")
		v.Range(fmt.Sprintf("selfRatings[%d].rating", i), rating.Rating, 1, 5)
	}
	for i, rating := range payload.AppraiserRatings {
		v.Required(fmt.Sprintf("appraiserRatings[%d].goalId", i), rating.GoalID, "goal id is required")
		v.Range(fmt.Sprintf("appraiserRatings[%d].rating", i), rating.Rating, 1, 5)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	result, err := h.Service.SubmitUpdate(r.Context(), actorFrom(user), appraisalID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if result.Transition != nil {
		if h.Metrics != nil {
			h.Metrics.RecordTransition()
		}
		if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.status.change", "appraisal", appraisalID, middleware.GetRequestID(r.Context()), shared.ClientIP(r),
			map[string]any{"status": result.Transition.From},
			map[string]any{"status": result.Transition.To, "occurredAt": result.Transition.OccurredAt},
		); err != nil {
			slog.Warn("audit appraisal.status.change failed", "err", err)
		}
	} else {
		if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.update", "appraisal", appraisalID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
			slog.Warn("audit appraisal.update failed", "err", err)
		}
	}

	api.Success(w, result.Appraisal, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	if err := h.Service.Delete(r.Context(), actorFrom(user), appraisalID); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.delete", "appraisal", appraisalID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit appraisal.delete failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload appraisal.GoalInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("title", payload.Title, "goal title is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	goal, err := h.Service.AddGoal(r.Context(), actorFrom(user), appraisalID, payload)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.goal.add", "goal", goal.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, goal); err != nil {
		slog.Warn("audit appraisal.goal.add failed", "err", err)
	}
	api.Created(w, goal, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload appraisal.GoalPatch
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	goalID := chi.URLParam(r, "goalID")
	goal, err := h.Service.UpdateGoal(r.Context(), actorFrom(user), appraisalID, goalID, payload)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.goal.update", "goal", goalID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		slog.Warn("audit appraisal.goal.update failed", "err", err)
	}
	api.Success(w, goal, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRemoveGoal(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	goalID := chi.URLParam(r, "goalID")
	if err := h.Service.RemoveGoal(r.Context(), actorFrom(user), appraisalID, goalID); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "appraisal.goal.remove", "goal", goalID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit appraisal.goal.remove failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "goal_removed"}, middleware.GetRequestID(r.Context()))
}

// respondError translates domain failures into the wire taxonomy. Anything
// unrecognized is an infrastructure fault and surfaces as a 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var transitionErr *appraisal.TransitionError
	var weightageErr *appraisal.WeightageError
	var rangeErr *appraisal.WeightageRangeError
	var fieldErr *appraisal.FieldWriteError

	switch {
	case errors.Is(err, appraisal.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "appraisal not found", requestID)
	case errors.Is(err, appraisal.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", requestID)
	case errors.As(err, &transitionErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "invalid_transition", transitionErr.Error(), map[string]string{
			"from": transitionErr.From.String(),
			"to":   transitionErr.To.String(),
		}, requestID)
	case errors.As(err, &weightageErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "incomplete_weightage", weightageErr.Error(), map[string]int{
			"total":    weightageErr.Total,
			"required": appraisal.RequiredTotalWeightage,
		}, requestID)
	case errors.As(err, &rangeErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "weightage_out_of_range", rangeErr.Error(), map[string]int{
			"weightage": rangeErr.Weightage,
			"min":       appraisal.MinGoalWeightage,
			"max":       appraisal.MaxGoalWeightage,
		}, requestID)
	case errors.As(err, &fieldErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "field_not_writable", fieldErr.Error(), map[string]string{
			"field":  string(fieldErr.Field),
			"status": fieldErr.Status.String(),
		}, requestID)
	case errors.Is(err, appraisal.ErrNotDraft):
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_state", err.Error(), requestID)
	case errors.Is(err, appraisal.ErrAppraiserNotEligible),
		errors.Is(err, appraisal.ErrReviewerNotEligible),
		errors.Is(err, appraisal.ErrSameAppraiserReviewer),
		errors.Is(err, appraisal.ErrPartyOverlap),
		errors.Is(err, appraisal.ErrPartyNotFound),
		errors.Is(err, appraisal.ErrCategoryNotFound):
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_assignment", err.Error(), requestID)
	default:
		slog.Error("appraisal operation failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "unexpected error", requestID)
	}
}
