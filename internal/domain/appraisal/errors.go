package appraisal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers appraisals and goals addressed by an id that does
	// not exist.
	ErrNotFound = errors.New("appraisal not found")

	// ErrForbidden is returned when the actor is not the assigned party for
	// the attempted action, whatever their role tier.
	ErrForbidden = errors.New("forbidden")

	ErrAppraiserNotEligible  = errors.New("appraiser role must be Lead tier or above")
	ErrReviewerNotEligible   = errors.New("reviewer role must be Manager tier or above")
	ErrSameAppraiserReviewer = errors.New("appraiser and reviewer must be different users")
	ErrPartyOverlap          = errors.New("appraisee cannot also be the appraiser or reviewer")
	ErrPartyNotFound         = errors.New("assigned party does not exist")
	ErrCategoryNotFound      = errors.New("goal category does not exist")
	ErrNotDraft              = errors.New("appraisal is no longer in draft")
)

// TransitionError reports a status change request that is not the immediate
// successor of the current status.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition appraisal from %s to %s", e.From, e.To)
}

// WeightageError reports a draft-exit attempt while the goal weightages do
// not sum to the required total. Total carries the actual sum.
type WeightageError struct {
	Total int
}

func (e *WeightageError) Error() string {
	return fmt.Sprintf("goal weightages sum to %d, must equal %d", e.Total, RequiredTotalWeightage)
}

// WeightageRangeError reports a single goal weightage outside the allowed
// range.
type WeightageRangeError struct {
	Weightage int
}

func (e *WeightageRangeError) Error() string {
	return fmt.Sprintf("goal weightage %d is outside the range %d to %d", e.Weightage, MinGoalWeightage, MaxGoalWeightage)
}

// FieldWriteError reports a field update that the current status and the
// actor's relationship do not permit.
type FieldWriteError struct {
	Field  Field
	Status Status
}

func (e *FieldWriteError) Error() string {
	return fmt.Sprintf("field %s is not writable while the appraisal is %s", e.Field, e.Status)
}
