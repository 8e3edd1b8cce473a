package appraisal

// Weightage bounds for a single goal and the aggregate total required before
// an appraisal may leave draft.
const (
	MinGoalWeightage       = 1
	MaxGoalWeightage       = 100
	RequiredTotalWeightage = 100
)

// TotalWeightage sums the weightage of every goal. Every goal counts,
// regardless of its own rating state; order is irrelevant.
func TotalWeightage(goals []Goal) int {
	total := 0
	for _, g := range goals {
		total += g.Weightage
	}
	return total
}

// ValidateGoalWeightage rejects a single weightage outside
// [MinGoalWeightage, MaxGoalWeightage]. Both bounds are inclusive.
func ValidateGoalWeightage(weightage int) error {
	if weightage < MinGoalWeightage || weightage > MaxGoalWeightage {
		return &WeightageRangeError{Weightage: weightage}
	}
	return nil
}

// ValidateWeightageComplete enforces the submit gate: the aggregate total
// must be exactly RequiredTotalWeightage. An incomplete set is legal while
// the appraisal is still in draft; the returned error carries the computed
// total so callers can report how far off it is.
func ValidateWeightageComplete(goals []Goal) error {
	if total := TotalWeightage(goals); total != RequiredTotalWeightage {
		return &WeightageError{Total: total}
	}
	return nil
}
