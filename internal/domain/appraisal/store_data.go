package appraisal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const appraisalColumns = `
    id, status, start_date, end_date, appraisee_id, appraiser_id, reviewer_id,
    appraiser_overall_rating, appraiser_overall_comments,
    reviewer_overall_rating, reviewer_overall_comments,
    created_by, created_at, updated_at`

func scanAppraisal(row pgx.Row) (Appraisal, error) {
	var a Appraisal
	var status string
	err := row.Scan(
		&a.ID, &status, &a.StartDate, &a.EndDate, &a.AppraiseeID, &a.AppraiserID, &a.ReviewerID,
		&a.AppraiserOverallRating, &a.AppraiserOverallComments,
		&a.ReviewerOverallRating, &a.ReviewerOverallComments,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appraisal{}, ErrNotFound
	}
	if err != nil {
		return Appraisal{}, err
	}
	a.Status = Status(status)
	return a, nil
}

func (s *Store) GetAppraisal(ctx context.Context, id string, lock bool) (Appraisal, error) {
	query := "SELECT" + appraisalColumns + `
    FROM appraisals
    WHERE id = $1`
	if lock {
		query += `
    FOR UPDATE`
	}
	return scanAppraisal(s.q.QueryRow(ctx, query, id))
}

func (s *Store) ListAppraisals(ctx context.Context, filter ListFilter) ([]Appraisal, int, error) {
	where := `
    WHERE ($1 = '' OR status = $1)
      AND ($2 = '' OR appraisee_id::text = $2 OR appraiser_id::text = $2 OR reviewer_id::text = $2 OR created_by::text = $2)`

	var total int
	if err := s.q.QueryRow(ctx, "SELECT COUNT(1) FROM appraisals"+where, string(filter.Status), filter.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(ctx, "SELECT"+appraisalColumns+`
    FROM appraisals`+where+`
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4`, string(filter.Status), filter.UserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Appraisal
	for rows.Next() {
		a, err := scanAppraisal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *Store) CreateAppraisal(ctx context.Context, a Appraisal) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `
    INSERT INTO appraisals (status, start_date, end_date, appraisee_id, appraiser_id, reviewer_id, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id
  `, string(a.Status), a.StartDate, a.EndDate, a.AppraiseeID, a.AppraiserID, a.ReviewerID, a.CreatedBy).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateAppraisal(ctx context.Context, a Appraisal) error {
	tag, err := s.q.Exec(ctx, `
    UPDATE appraisals
    SET status = $1, start_date = $2, end_date = $3,
        appraisee_id = $4, appraiser_id = $5, reviewer_id = $6,
        appraiser_overall_rating = $7, appraiser_overall_comments = $8,
        reviewer_overall_rating = $9, reviewer_overall_comments = $10,
        updated_at = now()
    WHERE id = $11
  `, string(a.Status), a.StartDate, a.EndDate,
		a.AppraiseeID, a.AppraiserID, a.ReviewerID,
		a.AppraiserOverallRating, a.AppraiserOverallComments,
		a.ReviewerOverallRating, a.ReviewerOverallComments,
		a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAppraisal(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM appraisals WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const goalColumns = `
    id, appraisal_id, title, description, weightage, category_id,
    self_rating, self_comment, appraiser_rating, appraiser_comment,
    created_at, updated_at`

func scanGoal(row pgx.Row) (Goal, error) {
	var g Goal
	err := row.Scan(
		&g.ID, &g.AppraisalID, &g.Title, &g.Description, &g.Weightage, &g.CategoryID,
		&g.SelfRating, &g.SelfComment, &g.AppraiserRating, &g.AppraiserComment,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Goal{}, ErrNotFound
	}
	if err != nil {
		return Goal{}, err
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, appraisalID string) ([]Goal, error) {
	rows, err := s.q.Query(ctx, "SELECT"+goalColumns+`
    FROM goals
    WHERE appraisal_id = $1
    ORDER BY created_at, id`, appraisalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetGoal(ctx context.Context, appraisalID, goalID string) (Goal, error) {
	return scanGoal(s.q.QueryRow(ctx, "SELECT"+goalColumns+`
    FROM goals
    WHERE appraisal_id = $1 AND id = $2`, appraisalID, goalID))
}

func (s *Store) CreateGoal(ctx context.Context, g Goal) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `
    INSERT INTO goals (appraisal_id, title, description, weightage, category_id)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, g.AppraisalID, g.Title, g.Description, g.Weightage, g.CategoryID).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateGoal writes the draft-stage attributes of a goal.
func (s *Store) UpdateGoal(ctx context.Context, g Goal) error {
	tag, err := s.q.Exec(ctx, `
    UPDATE goals
    SET title = $1, description = $2, weightage = $3, category_id = $4, updated_at = now()
    WHERE appraisal_id = $5 AND id = $6
  `, g.Title, g.Description, g.Weightage, g.CategoryID, g.AppraisalID, g.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateGoalReview writes the rating and comment columns populated during
// the self-assessment and appraiser-evaluation stages.
func (s *Store) UpdateGoalReview(ctx context.Context, g Goal) error {
	tag, err := s.q.Exec(ctx, `
    UPDATE goals
    SET self_rating = $1, self_comment = $2, appraiser_rating = $3, appraiser_comment = $4, updated_at = now()
    WHERE appraisal_id = $5 AND id = $6
  `, g.SelfRating, g.SelfComment, g.AppraiserRating, g.AppraiserComment, g.AppraisalID, g.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteGoal(ctx context.Context, appraisalID, goalID string) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM goals WHERE appraisal_id = $1 AND id = $2", appraisalID, goalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteGoals(ctx context.Context, appraisalID string) error {
	_, err := s.q.Exec(ctx, "DELETE FROM goals WHERE appraisal_id = $1", appraisalID)
	return err
}

func (s *Store) RoleLevelOfUser(ctx context.Context, userID string) (int, error) {
	var level int
	err := s.q.QueryRow(ctx, `
    SELECT r.level
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.id = $1
  `, userID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return level, nil
}

func (s *Store) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	var count int
	if err := s.q.QueryRow(ctx, "SELECT COUNT(1) FROM goal_categories WHERE id = $1", categoryID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.q.Query(ctx, "SELECT id, name FROM goal_categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
