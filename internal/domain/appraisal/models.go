package appraisal

import "time"

// Ratings run 1..5. A nil rating means none was given; the service never
// substitutes a default, so "no rating" stays distinct from any chosen value.
const (
	MinRating = 1
	MaxRating = 5
)

type Appraisal struct {
	ID                       string    `json:"id"`
	Status                   Status    `json:"status"`
	StartDate                time.Time `json:"startDate"`
	EndDate                  time.Time `json:"endDate"`
	AppraiseeID              string    `json:"appraiseeId"`
	AppraiserID              string    `json:"appraiserId"`
	ReviewerID               string    `json:"reviewerId"`
	AppraiserOverallRating   *int      `json:"appraiserOverallRating"`
	AppraiserOverallComments *string   `json:"appraiserOverallComments"`
	ReviewerOverallRating    *int      `json:"reviewerOverallRating"`
	ReviewerOverallComments  *string   `json:"reviewerOverallComments"`
	CreatedBy                string    `json:"createdBy"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
	Goals                    []Goal    `json:"goals,omitempty"`
}

type Goal struct {
	ID               string    `json:"id"`
	AppraisalID      string    `json:"appraisalId"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Weightage        int       `json:"weightage"`
	CategoryID       *string   `json:"categoryId"`
	SelfRating       *int      `json:"selfRating"`
	SelfComment      *string   `json:"selfComment"`
	AppraiserRating  *int      `json:"appraiserRating"`
	AppraiserComment *string   `json:"appraiserComment"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Category is seeded reference data a goal may point at.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Actor is the authenticated identity the workflow authorizes against. The
// transport layer builds it from verified claims; the domain trusts it.
type Actor struct {
	UserID    string
	RoleLevel int
}

// TransitionEvent describes one successful status change. The workflow
// produces it; the audit subsystem stores it.
type TransitionEvent struct {
	AppraisalID string    `json:"appraisalId"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	ActorID     string    `json:"actorId"`
	OccurredAt  time.Time `json:"occurredAt"`
}
