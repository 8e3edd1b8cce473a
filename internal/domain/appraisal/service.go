package appraisal

import (
	"context"
	"errors"
	"time"

	"pms/internal/domain/auth"
)

// Service orchestrates appraisal lifecycle operations: creation, field
// updates, status transitions, and goal management. All authorization
// beyond route-level permission checks happens here, against the
// assigned parties of the specific appraisal.
type Service struct {
	store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store}
}

// GoalInput carries the draft-stage attributes of a new goal.
type GoalInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Weightage   int     `json:"weightage"`
	CategoryID  *string `json:"categoryId"`
}

type CreateRequest struct {
	StartDate   time.Time   `json:"startDate"`
	EndDate     time.Time   `json:"endDate"`
	AppraiseeID string      `json:"appraiseeId"`
	AppraiserID string      `json:"appraiserId"`
	ReviewerID  string      `json:"reviewerId"`
	Goals       []GoalInput `json:"goals"`
}

func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (Appraisal, error) {
	if !CanCreate(actor.RoleLevel) {
		return Appraisal{}, ErrForbidden
	}
	if err := validateParties(req.AppraiseeID, req.AppraiserID, req.ReviewerID); err != nil {
		return Appraisal{}, err
	}
	for _, g := range req.Goals {
		if err := ValidateGoalWeightage(g.Weightage); err != nil {
			return Appraisal{}, err
		}
	}

	var created Appraisal
	err := s.store.WithTx(ctx, func(q StoreAPI) error {
		if err := checkAssignments(ctx, q, req.AppraiseeID, req.AppraiserID, req.ReviewerID); err != nil {
			return err
		}
		for _, g := range req.Goals {
			if err := checkCategory(ctx, q, g.CategoryID); err != nil {
				return err
			}
		}
		id, err := q.CreateAppraisal(ctx, Appraisal{
			Status:      StatusDraft,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			AppraiseeID: req.AppraiseeID,
			AppraiserID: req.AppraiserID,
			ReviewerID:  req.ReviewerID,
			CreatedBy:   actor.UserID,
		})
		if err != nil {
			return err
		}
		for _, g := range req.Goals {
			if _, err := q.CreateGoal(ctx, Goal{
				AppraisalID: id,
				Title:       g.Title,
				Description: g.Description,
				Weightage:   g.Weightage,
				CategoryID:  g.CategoryID,
			}); err != nil {
				return err
			}
		}
		created, err = loadAppraisal(ctx, q, id, false)
		return err
	})
	if err != nil {
		return Appraisal{}, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, actor Actor, id string) (Appraisal, error) {
	a, err := loadAppraisal(ctx, s.store, id, false)
	if err != nil {
		return Appraisal{}, err
	}
	if !canView(actor, a) {
		return Appraisal{}, ErrForbidden
	}
	return a, nil
}

// List returns appraisals visible to the actor. Actors below CEO tier
// only ever see appraisals they are a party to or created, regardless
// of the filter they pass.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) ([]Appraisal, int, error) {
	if actor.RoleLevel < auth.LevelCEO {
		filter.UserID = actor.UserID
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.store.ListAppraisals(ctx, filter)
}

// GoalRatingUpdate addresses one goal of the appraisal being updated.
// Nil members are left untouched so a comment can be revised without
// resubmitting the rating.
type GoalRatingUpdate struct {
	GoalID  string  `json:"goalId"`
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

// UpdateRequest is the payload of a combined field-update and status
// transition call. Nil members mean "leave unchanged"; Status == nil
// means no transition is requested.
type UpdateRequest struct {
	Status      *Status    `json:"status"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	AppraiseeID *string    `json:"appraiseeId"`
	AppraiserID *string    `json:"appraiserId"`
	ReviewerID  *string    `json:"reviewerId"`

	SelfRatings      []GoalRatingUpdate `json:"selfRatings"`
	AppraiserRatings []GoalRatingUpdate `json:"appraiserRatings"`

	AppraiserOverallRating   *int    `json:"appraiserOverallRating"`
	AppraiserOverallComments *string `json:"appraiserOverallComments"`
	ReviewerOverallRating    *int    `json:"reviewerOverallRating"`
	ReviewerOverallComments  *string `json:"reviewerOverallComments"`
}

// fields lists the write-matrix fields this request touches.
func (r UpdateRequest) fields() []Field {
	var fs []Field
	if r.StartDate != nil {
		fs = append(fs, FieldStartDate)
	}
	if r.EndDate != nil {
		fs = append(fs, FieldEndDate)
	}
	if r.AppraiseeID != nil {
		fs = append(fs, FieldAppraiseeID)
	}
	if r.AppraiserID != nil {
		fs = append(fs, FieldAppraiserID)
	}
	if r.ReviewerID != nil {
		fs = append(fs, FieldReviewerID)
	}
	var rating, comment bool
	for _, u := range r.SelfRatings {
		rating = rating || u.Rating != nil
		comment = comment || u.Comment != nil
	}
	if rating {
		fs = append(fs, FieldSelfRating)
	}
	if comment {
		fs = append(fs, FieldSelfComment)
	}
	rating, comment = false, false
	for _, u := range r.AppraiserRatings {
		rating = rating || u.Rating != nil
		comment = comment || u.Comment != nil
	}
	if rating {
		fs = append(fs, FieldAppraiserRating)
	}
	if comment {
		fs = append(fs, FieldAppraiserComment)
	}
	if r.AppraiserOverallRating != nil {
		fs = append(fs, FieldAppraiserOverallRating)
	}
	if r.AppraiserOverallComments != nil {
		fs = append(fs, FieldAppraiserOverallComments)
	}
	if r.ReviewerOverallRating != nil {
		fs = append(fs, FieldReviewerOverallRating)
	}
	if r.ReviewerOverallComments != nil {
		fs = append(fs, FieldReviewerOverallComments)
	}
	return fs
}

// UpdateResult carries the updated aggregate plus the transition event
// when the call advanced the status.
type UpdateResult struct {
	Appraisal  Appraisal
	Transition *TransitionEvent
}

// SubmitUpdate applies field updates and an optional status transition
// as one atomic operation. Field writes are authorized against the
// status the appraisal held before any transition requested in the same
// call, so a payload cannot smuggle writes past the stage it is leaving.
// On any failure the appraisal is left exactly as it was.
func (s *Service) SubmitUpdate(ctx context.Context, actor Actor, id string, req UpdateRequest) (UpdateResult, error) {
	var res UpdateResult
	err := s.store.WithTx(ctx, func(q StoreAPI) error {
		a, err := loadAppraisal(ctx, q, id, true)
		if err != nil {
			return err
		}

		rel := RelationshipOf(actor.UserID, a)
		if rel == RelationshipNone {
			return ErrForbidden
		}

		fields := req.fields()
		for _, f := range fields {
			if !CanWriteField(a.Status, rel, f) {
				return &FieldWriteError{Field: f, Status: a.Status}
			}
		}

		touched, err := applyFields(ctx, q, &a, req)
		if err != nil {
			return err
		}

		var event *TransitionEvent
		if req.Status != nil && *req.Status != a.Status {
			from, to := a.Status, *req.Status
			if !ValidateTransition(from, to) {
				return &TransitionError{From: from, To: to}
			}
			if !CanAdvance(from, rel) {
				return ErrForbidden
			}
			if err := AttemptTransition(&a, to); err != nil {
				return err
			}
			event = &TransitionEvent{
				AppraisalID: a.ID,
				From:        from,
				To:          to,
				ActorID:     actor.UserID,
				OccurredAt:  time.Now().UTC(),
			}
		}

		if len(fields) == 0 && event == nil {
			res = UpdateResult{Appraisal: a}
			return nil
		}

		if err := q.UpdateAppraisal(ctx, a); err != nil {
			return err
		}
		for i := range a.Goals {
			if !touched[a.Goals[i].ID] {
				continue
			}
			if err := q.UpdateGoalReview(ctx, a.Goals[i]); err != nil {
				return err
			}
		}
		res = UpdateResult{Appraisal: a, Transition: event}
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

// applyFields mutates the in-memory aggregate and reports which goals
// were touched. Party reassignment re-runs the eligibility and
// distinctness checks against the resulting assignment.
func applyFields(ctx context.Context, q StoreAPI, a *Appraisal, req UpdateRequest) (map[string]bool, error) {
	if req.StartDate != nil {
		a.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		a.EndDate = *req.EndDate
	}
	if req.AppraiseeID != nil {
		a.AppraiseeID = *req.AppraiseeID
	}
	if req.AppraiserID != nil {
		a.AppraiserID = *req.AppraiserID
	}
	if req.ReviewerID != nil {
		a.ReviewerID = *req.ReviewerID
	}
	if req.AppraiseeID != nil || req.AppraiserID != nil || req.ReviewerID != nil {
		if err := validateParties(a.AppraiseeID, a.AppraiserID, a.ReviewerID); err != nil {
			return nil, err
		}
		if err := checkAssignments(ctx, q, a.AppraiseeID, a.AppraiserID, a.ReviewerID); err != nil {
			return nil, err
		}
	}

	goalByID := make(map[string]*Goal, len(a.Goals))
	for i := range a.Goals {
		goalByID[a.Goals[i].ID] = &a.Goals[i]
	}
	touched := make(map[string]bool)
	apply := func(updates []GoalRatingUpdate, self bool) error {
		for _, u := range updates {
			g, ok := goalByID[u.GoalID]
			if !ok {
				return ErrNotFound
			}
			if self {
				if u.Rating != nil {
					g.SelfRating = u.Rating
				}
				if u.Comment != nil {
					g.SelfComment = u.Comment
				}
			} else {
				if u.Rating != nil {
					g.AppraiserRating = u.Rating
				}
				if u.Comment != nil {
					g.AppraiserComment = u.Comment
				}
			}
			touched[g.ID] = true
		}
		return nil
	}
	if err := apply(req.SelfRatings, true); err != nil {
		return nil, err
	}
	if err := apply(req.AppraiserRatings, false); err != nil {
		return nil, err
	}

	if req.AppraiserOverallRating != nil {
		a.AppraiserOverallRating = req.AppraiserOverallRating
	}
	if req.AppraiserOverallComments != nil {
		a.AppraiserOverallComments = req.AppraiserOverallComments
	}
	if req.ReviewerOverallRating != nil {
		a.ReviewerOverallRating = req.ReviewerOverallRating
	}
	if req.ReviewerOverallComments != nil {
		a.ReviewerOverallComments = req.ReviewerOverallComments
	}
	return touched, nil
}

func (s *Service) AddGoal(ctx context.Context, actor Actor, appraisalID string, in GoalInput) (Goal, error) {
	if err := ValidateGoalWeightage(in.Weightage); err != nil {
		return Goal{}, err
	}
	var created Goal
	err := s.store.WithTx(ctx, func(q StoreAPI) error {
		a, err := q.GetAppraisal(ctx, appraisalID, true)
		if err != nil {
			return err
		}
		if err := authorizeGoalEdit(actor, a); err != nil {
			return err
		}
		if err := checkCategory(ctx, q, in.CategoryID); err != nil {
			return err
		}
		id, err := q.CreateGoal(ctx, Goal{
			AppraisalID: a.ID,
			Title:       in.Title,
			Description: in.Description,
			Weightage:   in.Weightage,
			CategoryID:  in.CategoryID,
		})
		if err != nil {
			return err
		}
		created, err = q.GetGoal(ctx, a.ID, id)
		return err
	})
	if err != nil {
		return Goal{}, err
	}
	return created, nil
}

// GoalPatch updates the draft-stage attributes of an existing goal.
type GoalPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Weightage   *int    `json:"weightage"`
	CategoryID  *string `json:"categoryId"`
}

func (s *Service) UpdateGoal(ctx context.Context, actor Actor, appraisalID, goalID string, patch GoalPatch) (Goal, error) {
	if patch.Weightage != nil {
		if err := ValidateGoalWeightage(*patch.Weightage); err != nil {
			return Goal{}, err
		}
	}
	var updated Goal
	err := s.store.WithTx(ctx, func(q StoreAPI) error {
		a, err := q.GetAppraisal(ctx, appraisalID, true)
		if err != nil {
			return err
		}
		if err := authorizeGoalEdit(actor, a); err != nil {
			return err
		}
		g, err := q.GetGoal(ctx, a.ID, goalID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			g.Title = *patch.Title
		}
		if patch.Description != nil {
			g.Description = *patch.Description
		}
		if patch.Weightage != nil {
			g.Weightage = *patch.Weightage
		}
		if patch.CategoryID != nil {
			if err := checkCategory(ctx, q, patch.CategoryID); err != nil {
				return err
			}
			g.CategoryID = patch.CategoryID
		}
		if err := q.UpdateGoal(ctx, g); err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return Goal{}, err
	}
	return updated, nil
}

func (s *Service) RemoveGoal(ctx context.Context, actor Actor, appraisalID, goalID string) error {
	return s.store.WithTx(ctx, func(q StoreAPI) error {
		a, err := q.GetAppraisal(ctx, appraisalID, true)
		if err != nil {
			return err
		}
		if err := authorizeGoalEdit(actor, a); err != nil {
			return err
		}
		return q.DeleteGoal(ctx, a.ID, goalID)
	})
}

// Delete removes a draft appraisal and its goals as one transactional
// unit: goals first, then the owning row. Only the assigned appraiser
// or an admin-tier actor may delete, and only while still in draft.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	return s.store.WithTx(ctx, func(q StoreAPI) error {
		a, err := q.GetAppraisal(ctx, id, true)
		if err != nil {
			return err
		}
		if actor.RoleLevel < auth.LevelAdmin && a.AppraiserID != actor.UserID {
			return ErrForbidden
		}
		if a.Status != StatusDraft {
			return ErrNotDraft
		}
		if err := q.DeleteGoals(ctx, a.ID); err != nil {
			return err
		}
		return q.DeleteAppraisal(ctx, a.ID)
	})
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

func loadAppraisal(ctx context.Context, q StoreAPI, id string, lock bool) (Appraisal, error) {
	a, err := q.GetAppraisal(ctx, id, lock)
	if err != nil {
		return Appraisal{}, err
	}
	goals, err := q.ListGoals(ctx, a.ID)
	if err != nil {
		return Appraisal{}, err
	}
	a.Goals = goals
	return a, nil
}

func canView(actor Actor, a Appraisal) bool {
	if actor.RoleLevel >= auth.LevelCEO {
		return true
	}
	if a.CreatedBy == actor.UserID {
		return true
	}
	return RelationshipOf(actor.UserID, a) != RelationshipNone
}

func authorizeGoalEdit(actor Actor, a Appraisal) error {
	rel := RelationshipOf(actor.UserID, a)
	if rel == RelationshipNone {
		return ErrForbidden
	}
	if !CanWriteField(a.Status, rel, FieldGoals) {
		return &FieldWriteError{Field: FieldGoals, Status: a.Status}
	}
	return nil
}

func validateParties(appraiseeID, appraiserID, reviewerID string) error {
	if appraiserID == reviewerID {
		return ErrSameAppraiserReviewer
	}
	if appraiseeID == appraiserID || appraiseeID == reviewerID {
		return ErrPartyOverlap
	}
	return nil
}

func checkAssignments(ctx context.Context, q StoreAPI, appraiseeID, appraiserID, reviewerID string) error {
	if _, err := q.RoleLevelOfUser(ctx, appraiseeID); err != nil {
		return partyErr(err)
	}
	level, err := q.RoleLevelOfUser(ctx, appraiserID)
	if err != nil {
		return partyErr(err)
	}
	if !EligibleAsAppraiser(level) {
		return ErrAppraiserNotEligible
	}
	level, err = q.RoleLevelOfUser(ctx, reviewerID)
	if err != nil {
		return partyErr(err)
	}
	if !EligibleAsReviewer(level) {
		return ErrReviewerNotEligible
	}
	return nil
}

func checkCategory(ctx context.Context, q StoreAPI, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	ok, err := q.CategoryExists(ctx, *categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCategoryNotFound
	}
	return nil
}

func partyErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrPartyNotFound
	}
	return err
}
