package appraisal

import "pms/internal/domain/auth"

// Relationship is an actor's connection to one specific appraisal, resolved
// by identity equality against the assigned parties. Role tier never grants
// a relationship.
type Relationship string

const (
	RelationshipAppraisee Relationship = "appraisee"
	RelationshipAppraiser Relationship = "appraiser"
	RelationshipReviewer  Relationship = "reviewer"
	RelationshipNone      Relationship = "none"
)

// Field names every writable attribute the workflow arbitrates.
type Field string

const (
	FieldGoals       Field = "goals"
	FieldStartDate   Field = "start_date"
	FieldEndDate     Field = "end_date"
	FieldAppraiseeID Field = "appraisee_id"
	FieldAppraiserID Field = "appraiser_id"
	FieldReviewerID  Field = "reviewer_id"

	FieldSelfRating  Field = "self_rating"
	FieldSelfComment Field = "self_comment"

	FieldAppraiserRating          Field = "appraiser_rating"
	FieldAppraiserComment         Field = "appraiser_comment"
	FieldAppraiserOverallRating   Field = "appraiser_overall_rating"
	FieldAppraiserOverallComments Field = "appraiser_overall_comments"

	FieldReviewerOverallRating   Field = "reviewer_overall_rating"
	FieldReviewerOverallComments Field = "reviewer_overall_comments"
)

// writeMatrix is the single source of truth for field-level write access:
// per status, which relationship may write which field. Anything not listed
// is read-only in that status; complete has no entry at all.
var writeMatrix = map[Status]map[Field]Relationship{
	StatusDraft: {
		FieldGoals:       RelationshipAppraiser,
		FieldStartDate:   RelationshipAppraiser,
		FieldEndDate:     RelationshipAppraiser,
		FieldAppraiseeID: RelationshipAppraiser,
		FieldAppraiserID: RelationshipAppraiser,
		FieldReviewerID:  RelationshipAppraiser,
	},
	StatusSelfAssessment: {
		FieldSelfRating:  RelationshipAppraisee,
		FieldSelfComment: RelationshipAppraisee,
	},
	StatusAppraiserEvaluation: {
		FieldAppraiserRating:          RelationshipAppraiser,
		FieldAppraiserComment:         RelationshipAppraiser,
		FieldAppraiserOverallRating:   RelationshipAppraiser,
		FieldAppraiserOverallComments: RelationshipAppraiser,
	},
	StatusReviewerEvaluation: {
		FieldReviewerOverallRating:   RelationshipReviewer,
		FieldReviewerOverallComments: RelationshipReviewer,
	},
}

// transitionOwner names the relationship responsible for advancing an
// appraisal out of each status. The appraiser finalizes the draft, the
// appraisee acknowledges the submission and completes self-assessment, the
// appraiser closes the evaluation, the reviewer completes the appraisal.
var transitionOwner = map[Status]Relationship{
	StatusDraft:               RelationshipAppraiser,
	StatusSubmitted:           RelationshipAppraisee,
	StatusSelfAssessment:      RelationshipAppraisee,
	StatusAppraiserEvaluation: RelationshipAppraiser,
	StatusReviewerEvaluation:  RelationshipReviewer,
}

// RelationshipOf resolves the actor's relationship to a by identity
// equality. Parties are pairwise distinct, so at most one case matches.
func RelationshipOf(userID string, a Appraisal) Relationship {
	switch userID {
	case a.AppraiseeID:
		return RelationshipAppraisee
	case a.AppraiserID:
		return RelationshipAppraiser
	case a.ReviewerID:
		return RelationshipReviewer
	}
	return RelationshipNone
}

// CanWriteField is the write matrix lookup.
func CanWriteField(status Status, rel Relationship, field Field) bool {
	fields, ok := writeMatrix[status]
	if !ok {
		return false
	}
	return rel != RelationshipNone && fields[field] == rel
}

// CanAdvance reports whether rel may request the transition out of from.
func CanAdvance(from Status, rel Relationship) bool {
	owner, ok := transitionOwner[from]
	return ok && rel != RelationshipNone && owner == rel
}

// Assignment eligibility and creation tiers. These gate who may hold a
// party slot, checked when parties are assigned, not on later writes.
func EligibleAsAppraiser(level int) bool { return level >= auth.LevelLead }

func EligibleAsReviewer(level int) bool { return level >= auth.LevelManager }

// CanCreate reports whether an actor's tier allows creating (and deleting
// abandoned) draft appraisals.
func CanCreate(level int) bool { return level >= auth.LevelManager }
