package appraisal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory StoreAPI. The service only persists after
// every check has passed, so the saved* members double as a record of
// what would have been committed.
type fakeStore struct {
	appraisal  Appraisal
	goals      []Goal
	levels     map[string]int
	categories map[string]bool

	savedAppraisal *Appraisal
	savedGoals     map[string]Goal
	createdGoals   []Goal
	deletedGoalIDs []string
	goalsCleared   bool
	deleted        bool
	nextID         int
}

func newFakeStore(a Appraisal, goals []Goal, levels map[string]int) *fakeStore {
	return &fakeStore{
		appraisal:  a,
		goals:      goals,
		levels:     levels,
		categories: map[string]bool{"cat-1": true},
		savedGoals: make(map[string]Goal),
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(q StoreAPI) error) error {
	return fn(f)
}

func (f *fakeStore) GetAppraisal(ctx context.Context, id string, lock bool) (Appraisal, error) {
	if id != f.appraisal.ID {
		return Appraisal{}, ErrNotFound
	}
	return f.appraisal, nil
}

func (f *fakeStore) ListGoals(ctx context.Context, appraisalID string) ([]Goal, error) {
	out := make([]Goal, len(f.goals))
	copy(out, f.goals)
	return out, nil
}

func (f *fakeStore) GetGoal(ctx context.Context, appraisalID, goalID string) (Goal, error) {
	for _, g := range f.goals {
		if g.ID == goalID {
			return g, nil
		}
	}
	for _, g := range f.createdGoals {
		if g.ID == goalID {
			return g, nil
		}
	}
	return Goal{}, ErrNotFound
}

func (f *fakeStore) ListAppraisals(ctx context.Context, filter ListFilter) ([]Appraisal, int, error) {
	return []Appraisal{f.appraisal}, 1, nil
}

func (f *fakeStore) CreateAppraisal(ctx context.Context, a Appraisal) (string, error) {
	f.nextID++
	a.ID = "appr-new"
	f.appraisal = a
	return a.ID, nil
}

func (f *fakeStore) UpdateAppraisal(ctx context.Context, a Appraisal) error {
	f.savedAppraisal = &a
	return nil
}

func (f *fakeStore) DeleteAppraisal(ctx context.Context, id string) error {
	f.deleted = true
	return nil
}

func (f *fakeStore) CreateGoal(ctx context.Context, g Goal) (string, error) {
	f.nextID++
	g.ID = "goal-new"
	f.createdGoals = append(f.createdGoals, g)
	return g.ID, nil
}

func (f *fakeStore) UpdateGoal(ctx context.Context, g Goal) error {
	f.savedGoals[g.ID] = g
	return nil
}

func (f *fakeStore) UpdateGoalReview(ctx context.Context, g Goal) error {
	f.savedGoals[g.ID] = g
	return nil
}

func (f *fakeStore) DeleteGoal(ctx context.Context, appraisalID, goalID string) error {
	f.deletedGoalIDs = append(f.deletedGoalIDs, goalID)
	return nil
}

func (f *fakeStore) DeleteGoals(ctx context.Context, appraisalID string) error {
	f.goalsCleared = true
	return nil
}

func (f *fakeStore) RoleLevelOfUser(ctx context.Context, userID string) (int, error) {
	level, ok := f.levels[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return level, nil
}

func (f *fakeStore) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	return f.categories[categoryID], nil
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]Category, error) {
	return []Category{{ID: "cat-1", Name: "Delivery"}}, nil
}

var defaultLevels = map[string]int{
	"emp-1":  1,
	"emp-2":  1,
	"lead-1": 2,
	"mgr-1":  3,
	"mgr-2":  3,
	"ceo-1":  4,
	"adm-1":  5,
}

func testAppraisal(status Status) Appraisal {
	return Appraisal{
		ID:          "appr-1",
		Status:      status,
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		AppraiseeID: "emp-1",
		AppraiserID: "lead-1",
		ReviewerID:  "mgr-1",
		CreatedBy:   "mgr-1",
	}
}

func ptr[T any](v T) *T { return &v }

func TestSubmitUpdateRequiresFullWeightage(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), goalsWith(30, 30, 39), defaultLevels)
	svc := NewService(store)

	_, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1", UpdateRequest{
		Status: ptr(StatusSubmitted),
	})
	var werr *WeightageError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, 99, werr.Total)
	require.Nil(t, store.savedAppraisal, "failed transition must not persist")
	require.Equal(t, StatusDraft, store.appraisal.Status)
}

func TestSubmitUpdateAdvancesWithFullWeightage(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), goalsWith(30, 30, 40), defaultLevels)
	svc := NewService(store)

	res, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1", UpdateRequest{
		Status: ptr(StatusSubmitted),
	})
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, res.Appraisal.Status)
	require.NotNil(t, res.Transition)
	require.Equal(t, StatusDraft, res.Transition.From)
	require.Equal(t, StatusSubmitted, res.Transition.To)
	require.Equal(t, "lead-1", res.Transition.ActorID)
	require.NotNil(t, store.savedAppraisal)
	require.Equal(t, StatusSubmitted, store.savedAppraisal.Status)
}

func TestSubmitUpdateCombinedFieldsAndTransition(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusAppraiserEvaluation), goalsWith(100), defaultLevels)
	svc := NewService(store)

	res, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1", UpdateRequest{
		Status:                   ptr(StatusReviewerEvaluation),
		AppraiserOverallRating:   ptr(4),
		AppraiserOverallComments: ptr("Good work"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusReviewerEvaluation, res.Appraisal.Status)
	require.NotNil(t, res.Appraisal.AppraiserOverallRating)
	require.Equal(t, 4, *res.Appraisal.AppraiserOverallRating)
	require.NotNil(t, store.savedAppraisal)
	require.Equal(t, "Good work", *store.savedAppraisal.AppraiserOverallComments)
	require.Equal(t, StatusReviewerEvaluation, store.savedAppraisal.Status)
}

func TestSubmitUpdateWrongRelationshipForField(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusAppraiserEvaluation), goalsWith(100), defaultLevels)
	svc := NewService(store)

	// The reviewer is a party, but appraiser ratings are not theirs to
	// write in this status.
	_, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "mgr-1", RoleLevel: 3}, "appr-1", UpdateRequest{
		AppraiserRatings: []GoalRatingUpdate{{GoalID: "g-1", Rating: ptr(3)}},
	})
	var ferr *FieldWriteError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, FieldAppraiserRating, ferr.Field)
	require.Equal(t, StatusAppraiserEvaluation, ferr.Status)
	require.Nil(t, store.savedAppraisal)
}

func TestSubmitUpdateNonPartyForbidden(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusSelfAssessment), goalsWith(100), defaultLevels)
	svc := NewService(store)

	// Correct role tier, wrong identity.
	_, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "mgr-2", RoleLevel: 3}, "appr-1", UpdateRequest{
		SelfRatings: []GoalRatingUpdate{{GoalID: "g-1", Rating: ptr(4)}},
	})
	require.ErrorIs(t, err, ErrForbidden)
	require.Nil(t, store.savedAppraisal)
}

func TestSubmitUpdateTerminalImmutable(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusComplete), goalsWith(100), defaultLevels)
	svc := NewService(store)
	actor := Actor{UserID: "lead-1", RoleLevel: 2}

	_, err := svc.SubmitUpdate(context.Background(), actor, "appr-1", UpdateRequest{
		AppraiserOverallComments: ptr("late edit"),
	})
	var ferr *FieldWriteError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, StatusComplete, ferr.Status)

	_, err = svc.SubmitUpdate(context.Background(), actor, "appr-1", UpdateRequest{
		Status: ptr(StatusDraft),
	})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	require.Nil(t, store.savedAppraisal)
}

func TestSubmitUpdateAtomicRollback(t *testing.T) {
	goals := goalsWith(100)
	goals[0].ID = "g-1"
	store := newFakeStore(testAppraisal(StatusSelfAssessment), goals, defaultLevels)
	svc := NewService(store)

	// Valid field write combined with an illegal skip. Nothing may land.
	_, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "emp-1", RoleLevel: 1}, "appr-1", UpdateRequest{
		SelfRatings: []GoalRatingUpdate{{GoalID: "g-1", Rating: ptr(5), Comment: ptr("done early")}},
		Status:      ptr(StatusReviewerEvaluation),
	})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, StatusSelfAssessment, terr.From)
	require.Equal(t, StatusReviewerEvaluation, terr.To)
	require.Nil(t, store.savedAppraisal)
	require.Empty(t, store.savedGoals)
}

func TestSubmitUpdateSelfAssessment(t *testing.T) {
	goals := goalsWith(60, 40)
	goals[0].ID, goals[1].ID = "g-1", "g-2"
	store := newFakeStore(testAppraisal(StatusSelfAssessment), goals, defaultLevels)
	svc := NewService(store)

	res, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "emp-1", RoleLevel: 1}, "appr-1", UpdateRequest{
		SelfRatings: []GoalRatingUpdate{
			{GoalID: "g-1", Rating: ptr(4), Comment: ptr("shipped ahead of plan")},
			{GoalID: "g-2", Rating: ptr(3)},
		},
		Status: ptr(StatusAppraiserEvaluation),
	})
	require.NoError(t, err)
	require.Equal(t, StatusAppraiserEvaluation, res.Appraisal.Status)
	require.Len(t, store.savedGoals, 2)
	require.Equal(t, 4, *store.savedGoals["g-1"].SelfRating)
	require.Equal(t, "shipped ahead of plan", *store.savedGoals["g-1"].SelfComment)
	require.Nil(t, store.savedGoals["g-2"].SelfComment)
}

func TestSubmitUpdateTransitionOwnership(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusAppraiserEvaluation), goalsWith(100), defaultLevels)
	svc := NewService(store)

	// The reviewer may not advance a status the appraiser owns, even
	// though the pair itself is legal.
	_, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "mgr-1", RoleLevel: 3}, "appr-1", UpdateRequest{
		Status: ptr(StatusReviewerEvaluation),
	})
	require.ErrorIs(t, err, ErrForbidden)
	require.Nil(t, store.savedAppraisal)
}

func TestSubmitUpdateSameStatusIsNoTransition(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusSelfAssessment), goalsWith(100), defaultLevels)
	svc := NewService(store)

	res, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "emp-1", RoleLevel: 1}, "appr-1", UpdateRequest{
		Status: ptr(StatusSelfAssessment),
	})
	require.NoError(t, err)
	require.Nil(t, res.Transition)
	require.Nil(t, store.savedAppraisal, "no-op update must not persist")
}

func TestSubmitUpdateUnknownAppraisal(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), nil, defaultLevels)
	svc := NewService(store)

	_, err := svc.SubmitUpdate(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "missing", UpdateRequest{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitUpdatePartyReassignment(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), goalsWith(100), defaultLevels)
	svc := NewService(store)
	actor := Actor{UserID: "lead-1", RoleLevel: 2}

	// Reviewer demoted to an employee-tier user.
	_, err := svc.SubmitUpdate(context.Background(), actor, "appr-1", UpdateRequest{
		ReviewerID: ptr("emp-1"),
	})
	require.ErrorIs(t, err, ErrPartyOverlap)

	_, err = svc.SubmitUpdate(context.Background(), actor, "appr-1", UpdateRequest{
		ReviewerID: ptr("lead-1"),
	})
	require.ErrorIs(t, err, ErrSameAppraiserReviewer)

	res, err := svc.SubmitUpdate(context.Background(), actor, "appr-1", UpdateRequest{
		ReviewerID: ptr("mgr-2"),
	})
	require.NoError(t, err)
	require.Equal(t, "mgr-2", res.Appraisal.ReviewerID)
}

func TestCreateAppraisal(t *testing.T) {
	store := newFakeStore(Appraisal{}, nil, defaultLevels)
	svc := NewService(store)

	req := CreateRequest{
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		AppraiseeID: "emp-1",
		AppraiserID: "lead-1",
		ReviewerID:  "mgr-1",
		Goals: []GoalInput{
			{Title: "Ship the billing migration", Weightage: 60, CategoryID: ptr("cat-1")},
			{Title: "Mentor two juniors", Weightage: 40},
		},
	}

	created, err := svc.Create(context.Background(), Actor{UserID: "mgr-1", RoleLevel: 3}, req)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, "mgr-1", created.CreatedBy)
	require.Len(t, store.createdGoals, 2)
}

func TestCreateAppraisalValidation(t *testing.T) {
	base := CreateRequest{
		AppraiseeID: "emp-1",
		AppraiserID: "lead-1",
		ReviewerID:  "mgr-1",
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   Actor
		mutate  func(*CreateRequest)
		wantErr error
	}{
		{
			name:    "below manager tier",
			actor:   Actor{UserID: "lead-1", RoleLevel: 2},
			mutate:  func(r *CreateRequest) {},
			wantErr: ErrForbidden,
		},
		{
			name:    "appraiser equals reviewer",
			actor:   Actor{UserID: "mgr-1", RoleLevel: 3},
			mutate:  func(r *CreateRequest) { r.ReviewerID = "lead-1" },
			wantErr: ErrSameAppraiserReviewer,
		},
		{
			name:    "appraisee overlaps appraiser",
			actor:   Actor{UserID: "mgr-1", RoleLevel: 3},
			mutate:  func(r *CreateRequest) { r.AppraiseeID = "lead-1" },
			wantErr: ErrPartyOverlap,
		},
		{
			name:    "appraiser below lead tier",
			actor:   Actor{UserID: "mgr-1", RoleLevel: 3},
			mutate:  func(r *CreateRequest) { r.AppraiserID = "emp-2" },
			wantErr: ErrAppraiserNotEligible,
		},
		{
			name:    "reviewer below manager tier",
			actor:   Actor{UserID: "mgr-1", RoleLevel: 3},
			mutate:  func(r *CreateRequest) { r.ReviewerID = "lead-1"; r.AppraiserID = "mgr-2" },
			wantErr: ErrReviewerNotEligible,
		},
		{
			name:    "unknown party",
			actor:   Actor{UserID: "mgr-1", RoleLevel: 3},
			mutate:  func(r *CreateRequest) { r.AppraiseeID = "ghost-1" },
			wantErr: ErrPartyNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore(Appraisal{}, nil, defaultLevels)
			svc := NewService(store)
			req := base
			tc.mutate(&req)
			_, err := svc.Create(ctx, tc.actor, req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateAppraisalGoalRange(t *testing.T) {
	store := newFakeStore(Appraisal{}, nil, defaultLevels)
	svc := NewService(store)

	_, err := svc.Create(context.Background(), Actor{UserID: "mgr-1", RoleLevel: 3}, CreateRequest{
		AppraiseeID: "emp-1",
		AppraiserID: "lead-1",
		ReviewerID:  "mgr-1",
		Goals:       []GoalInput{{Title: "anything", Weightage: 0}},
	})
	var rangeErr *WeightageRangeError
	require.ErrorAs(t, err, &rangeErr)
	require.Equal(t, 0, rangeErr.Weightage)
}

func TestAddGoalOnlyInDraft(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusSelfAssessment), goalsWith(100), defaultLevels)
	svc := NewService(store)

	_, err := svc.AddGoal(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1", GoalInput{
		Title: "late addition", Weightage: 10,
	})
	var ferr *FieldWriteError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, FieldGoals, ferr.Field)
}

func TestAddGoalUnknownCategory(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), nil, defaultLevels)
	svc := NewService(store)

	_, err := svc.AddGoal(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1", GoalInput{
		Title: "misfiled", Weightage: 20, CategoryID: ptr("cat-missing"),
	})
	require.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestUpdateGoalWeightageRange(t *testing.T) {
	goals := goalsWith(50)
	goals[0].ID = "g-1"
	store := newFakeStore(testAppraisal(StatusDraft), goals, defaultLevels)
	svc := NewService(store)
	actor := Actor{UserID: "lead-1", RoleLevel: 2}

	_, err := svc.UpdateGoal(context.Background(), actor, "appr-1", "g-1", GoalPatch{Weightage: ptr(101)})
	var rangeErr *WeightageRangeError
	require.ErrorAs(t, err, &rangeErr)
	require.Empty(t, store.savedGoals, "rejected weightage must leave the goal unchanged")

	updated, err := svc.UpdateGoal(context.Background(), actor, "appr-1", "g-1", GoalPatch{Weightage: ptr(100)})
	require.NoError(t, err)
	require.Equal(t, 100, updated.Weightage)
}

func TestDeleteDraftOnly(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusSubmitted), goalsWith(100), defaultLevels)
	svc := NewService(store)

	err := svc.Delete(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1")
	require.ErrorIs(t, err, ErrNotDraft)
	require.False(t, store.deleted)
}

func TestDeleteRemovesGoalsFirst(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), goalsWith(60, 40), defaultLevels)
	svc := NewService(store)

	err := svc.Delete(context.Background(), Actor{UserID: "lead-1", RoleLevel: 2}, "appr-1")
	require.NoError(t, err)
	require.True(t, store.goalsCleared)
	require.True(t, store.deleted)
}

func TestDeleteForbiddenForNonAppraiser(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), nil, defaultLevels)
	svc := NewService(store)

	err := svc.Delete(context.Background(), Actor{UserID: "mgr-2", RoleLevel: 3}, "appr-1")
	require.ErrorIs(t, err, ErrForbidden)

	err = svc.Delete(context.Background(), Actor{UserID: "adm-1", RoleLevel: 5}, "appr-1")
	require.NoError(t, err)
}

func TestGetVisibility(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusSubmitted), goalsWith(100), defaultLevels)
	svc := NewService(store)

	for _, actor := range []Actor{
		{UserID: "emp-1", RoleLevel: 1},
		{UserID: "lead-1", RoleLevel: 2},
		{UserID: "mgr-1", RoleLevel: 3},
		{UserID: "ceo-1", RoleLevel: 4},
	} {
		if _, err := svc.Get(context.Background(), actor, "appr-1"); err != nil {
			t.Fatalf("expected %s to see the appraisal: %v", actor.UserID, err)
		}
	}

	_, err := svc.Get(context.Background(), Actor{UserID: "emp-9", RoleLevel: 1}, "appr-1")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListScopesToActor(t *testing.T) {
	store := newFakeStore(testAppraisal(StatusDraft), nil, defaultLevels)

	// Capture the filter the store receives.
	var seen ListFilter
	capture := &captureStore{fakeStore: store, onList: func(f ListFilter) { seen = f }}

	_, _, err := NewService(capture).List(context.Background(), Actor{UserID: "emp-1", RoleLevel: 1}, ListFilter{UserID: "someone-else"})
	require.NoError(t, err)
	require.Equal(t, "emp-1", seen.UserID)
	require.Equal(t, 20, seen.Limit)

	_, _, err = NewService(capture).List(context.Background(), Actor{UserID: "ceo-1", RoleLevel: 4}, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, "", seen.UserID)
}

type captureStore struct {
	*fakeStore
	onList func(ListFilter)
}

func (c *captureStore) ListAppraisals(ctx context.Context, filter ListFilter) ([]Appraisal, int, error) {
	c.onList(filter)
	return c.fakeStore.ListAppraisals(ctx, filter)
}
