package appraisal

import "context"

// ListFilter scopes and pages the appraisal register. An empty Status means
// all statuses; an empty UserID means no visibility restriction.
type ListFilter struct {
	Status Status
	UserID string
	Limit  int
	Offset int
}

// StoreAPI is the persistence boundary of the workflow. WithTx hands the
// callback a store bound to one transaction; everything the callback does
// through it commits or rolls back as a unit. Implementations map a missing
// row to ErrNotFound and pass other failures through untouched.
type StoreAPI interface {
	WithTx(ctx context.Context, fn func(q StoreAPI) error) error

	// GetAppraisal locks the row for the rest of the transaction when lock
	// is true, serializing concurrent read-validate-write sequences per
	// appraisal id.
	GetAppraisal(ctx context.Context, id string, lock bool) (Appraisal, error)
	ListGoals(ctx context.Context, appraisalID string) ([]Goal, error)
	GetGoal(ctx context.Context, appraisalID, goalID string) (Goal, error)
	ListAppraisals(ctx context.Context, filter ListFilter) ([]Appraisal, int, error)

	CreateAppraisal(ctx context.Context, a Appraisal) (string, error)
	UpdateAppraisal(ctx context.Context, a Appraisal) error
	DeleteAppraisal(ctx context.Context, id string) error

	CreateGoal(ctx context.Context, g Goal) (string, error)
	UpdateGoal(ctx context.Context, g Goal) error
	UpdateGoalReview(ctx context.Context, g Goal) error
	DeleteGoal(ctx context.Context, appraisalID, goalID string) error
	DeleteGoals(ctx context.Context, appraisalID string) error

	RoleLevelOfUser(ctx context.Context, userID string) (int, error)
	CategoryExists(ctx context.Context, categoryID string) (bool, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
