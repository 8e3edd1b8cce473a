package appraisal

import (
	"errors"
	"testing"
)

func goalsWith(weightages ...int) []Goal {
	goals := make([]Goal, 0, len(weightages))
	for _, w := range weightages {
		goals = append(goals, Goal{Weightage: w})
	}
	return goals
}

func TestTotalWeightage(t *testing.T) {
	if total := TotalWeightage(nil); total != 0 {
		t.Fatalf("expected 0 for no goals, got %d", total)
	}
	if total := TotalWeightage(goalsWith(30, 30, 40)); total != 100 {
		t.Fatalf("expected 100, got %d", total)
	}
	if total := TotalWeightage(goalsWith(25, 25)); total != 50 {
		t.Fatalf("expected 50, got %d", total)
	}
}

func TestValidateGoalWeightageBoundaries(t *testing.T) {
	for _, w := range []int{1, 50, 100} {
		if err := ValidateGoalWeightage(w); err != nil {
			t.Errorf("expected %d to be accepted, got %v", w, err)
		}
	}
	for _, w := range []int{0, -1, 101, 1000} {
		err := ValidateGoalWeightage(w)
		var rangeErr *WeightageRangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("expected WeightageRangeError for %d, got %v", w, err)
			continue
		}
		if rangeErr.Weightage != w {
			t.Errorf("expected error to carry %d, got %d", w, rangeErr.Weightage)
		}
	}
}

func TestValidateWeightageComplete(t *testing.T) {
	if err := ValidateWeightageComplete(goalsWith(30, 30, 40)); err != nil {
		t.Fatalf("unexpected error for sum 100: %v", err)
	}
	if err := ValidateWeightageComplete(goalsWith(100)); err != nil {
		t.Fatalf("unexpected error for single full-weight goal: %v", err)
	}

	err := ValidateWeightageComplete(goalsWith(30, 30, 39))
	var werr *WeightageError
	if !errors.As(err, &werr) {
		t.Fatalf("expected WeightageError, got %v", err)
	}
	if werr.Total != 99 {
		t.Fatalf("expected total 99, got %d", werr.Total)
	}

	err = ValidateWeightageComplete(goalsWith(60, 60))
	if !errors.As(err, &werr) {
		t.Fatalf("expected WeightageError, got %v", err)
	}
	if werr.Total != 120 {
		t.Fatalf("expected total 120, got %d", werr.Total)
	}

	err = ValidateWeightageComplete(nil)
	if !errors.As(err, &werr) {
		t.Fatalf("expected WeightageError for empty goal set, got %v", err)
	}
	if werr.Total != 0 {
		t.Fatalf("expected total 0, got %d", werr.Total)
	}
}
