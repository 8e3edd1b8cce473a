// Package appraisal implements the performance appraisal lifecycle: an
// ordered six-stage workflow with weighted goals and per-stage, per-party
// write permissions.
//
// Status flow:
//
//	draft -> submitted -> self_assessment -> appraiser_evaluation -> reviewer_evaluation -> complete
//
// Transitions move exactly one step forward; complete is terminal and the
// whole aggregate becomes read-only once it is reached.
package appraisal

import "fmt"

type Status string

const (
	StatusDraft               Status = "draft"
	StatusSubmitted           Status = "submitted"
	StatusSelfAssessment      Status = "self_assessment"
	StatusAppraiserEvaluation Status = "appraiser_evaluation"
	StatusReviewerEvaluation  Status = "reviewer_evaluation"
	StatusComplete            Status = "complete"
)

var statusOrder = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusSelfAssessment,
	StatusAppraiserEvaluation,
	StatusReviewerEvaluation,
	StatusComplete,
}

var statusIndex = func() map[Status]int {
	index := make(map[Status]int, len(statusOrder))
	for i, s := range statusOrder {
		index[s] = i
	}
	return index
}()

// ParseStatus converts a wire value into a Status, rejecting anything
// outside the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown appraisal status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// Next returns the immediate successor, or "" when s is terminal or unknown.
func (s Status) Next() Status {
	i, ok := statusIndex[s]
	if !ok || i == len(statusOrder)-1 {
		return ""
	}
	return statusOrder[i+1]
}

// Terminal reports whether no further transitions exist out of s.
func (s Status) Terminal() bool {
	return s == StatusComplete
}

// StatusNames lists the wire names in workflow order, for payload validation
// and filters.
func StatusNames() []string {
	names := make([]string, len(statusOrder))
	for i, s := range statusOrder {
		names[i] = string(s)
	}
	return names
}

// ValidateTransition reports whether to is the immediate successor of from.
// No-ops, skips, and reversals are all rejected.
func ValidateTransition(from, to Status) bool {
	next := from.Next()
	return next != "" && next == to
}

// AttemptTransition advances a to the requested status. Leaving draft
// additionally requires the goal weightages to sum to exactly
// RequiredTotalWeightage. On failure a is left untouched.
func AttemptTransition(a *Appraisal, to Status) error {
	if !ValidateTransition(a.Status, to) {
		return &TransitionError{From: a.Status, To: to}
	}
	if a.Status == StatusDraft {
		if err := ValidateWeightageComplete(a.Goals); err != nil {
			return err
		}
	}
	a.Status = to
	return nil
}
