package reports

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/appraisal"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.Query(ctx, "SELECT status, COUNT(1) FROM appraisals GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *Store) RatingAverages(ctx context.Context) (RatingAverages, error) {
	var out RatingAverages
	if err := s.DB.QueryRow(ctx, `
    SELECT AVG(appraiser_overall_rating), AVG(reviewer_overall_rating)
    FROM appraisals
  `).Scan(&out.AppraiserOverall, &out.ReviewerOverall); err != nil {
		return out, err
	}
	if err := s.DB.QueryRow(ctx, `
    SELECT AVG(self_rating), AVG(appraiser_rating)
    FROM goals
  `).Scan(&out.GoalSelf, &out.GoalAppraiser); err != nil {
		return out, err
	}
	return out, nil
}

// DraftsReady counts drafts whose goal weightages already sum to the full
// required total, so they could be submitted as-is.
func (s *Store) DraftsReady(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM appraisals a
    WHERE a.status = $1
      AND (SELECT COALESCE(SUM(g.weightage), 0) FROM goals g WHERE g.appraisal_id = a.id) = $2
  `, appraisal.StatusDraft.String(), appraisal.RequiredTotalWeightage).Scan(&count)
	return count, err
}

func (s *Store) AppraisalRows(ctx context.Context, status string) ([]AppraisalRow, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT a.id, a.status,
           ae.first_name || ' ' || ae.last_name,
           ar.first_name || ' ' || ar.last_name,
           rv.first_name || ' ' || rv.last_name,
           a.start_date, a.end_date,
           (SELECT COUNT(1) FROM goals g WHERE g.appraisal_id = a.id),
           (SELECT COALESCE(SUM(g.weightage), 0) FROM goals g WHERE g.appraisal_id = a.id),
           a.appraiser_overall_rating, a.reviewer_overall_rating,
           a.updated_at
    FROM appraisals a
    JOIN users ae ON a.appraisee_id = ae.id
    JOIN users ar ON a.appraiser_id = ar.id
    JOIN users rv ON a.reviewer_id = rv.id
    WHERE ($1 = '' OR a.status = $1)
    ORDER BY a.created_at DESC
  `, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppraisalRow
	for rows.Next() {
		var row AppraisalRow
		if err := rows.Scan(
			&row.ID, &row.Status,
			&row.Appraisee, &row.Appraiser, &row.Reviewer,
			&row.StartDate, &row.EndDate,
			&row.GoalCount, &row.WeightageTotal,
			&row.AppraiserRating, &row.ReviewerRating,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PartyNames resolves the three party display names of one appraisal.
func (s *Store) PartyNames(ctx context.Context, appraisalID string) (PartyNames, error) {
	var names PartyNames
	err := s.DB.QueryRow(ctx, `
    SELECT ae.first_name || ' ' || ae.last_name,
           ar.first_name || ' ' || ar.last_name,
           rv.first_name || ' ' || rv.last_name
    FROM appraisals a
    JOIN users ae ON a.appraisee_id = ae.id
    JOIN users ar ON a.appraiser_id = ar.id
    JOIN users rv ON a.reviewer_id = rv.id
    WHERE a.id = $1
  `, appraisalID).Scan(&names.Appraisee, &names.Appraiser, &names.Reviewer)
	return names, err
}

// Snapshot is one persisted summary, captured by the scheduled job or an
// on-demand trigger.
type Snapshot struct {
	ID         string          `json:"id"`
	CapturedAt time.Time       `json:"capturedAt"`
	Summary    json.RawMessage `json:"summary"`
}

func (s *Store) InsertSnapshot(ctx context.Context, summary []byte) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO report_snapshots (summary_json)
    VALUES ($1)
    RETURNING id
  `, summary).Scan(&id)
	return id, err
}

func (s *Store) ListSnapshots(ctx context.Context, limit, offset int) ([]Snapshot, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, captured_at, summary_json
    FROM report_snapshots
    ORDER BY captured_at DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.CapturedAt, &snap.Summary); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) CountSnapshots(ctx context.Context) (int, error) {
	var total int
	err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM report_snapshots").Scan(&total)
	return total, err
}

type JobRunFilter struct {
	JobType     string
	Status      string
	StartedFrom *time.Time
	StartedTo   *time.Time
}

func (s *Store) ListJobRuns(ctx context.Context, filter JobRunFilter, limit, offset int) ([]map[string]any, error) {
	query, args := buildJobRunsBaseQuery(filter)
	query += " ORDER BY started_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []map[string]any
	for rows.Next() {
		var id, jobType, status string
		var detailsRaw []byte
		var startedAt time.Time
		var completedAt *time.Time
		if err := rows.Scan(&id, &jobType, &status, &detailsRaw, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		runs = append(runs, map[string]any{
			"id":          id,
			"jobType":     jobType,
			"status":      status,
			"details":     decodeDetails(detailsRaw),
			"startedAt":   startedAt,
			"completedAt": completedAt,
		})
	}
	return runs, rows.Err()
}

func (s *Store) CountJobRuns(ctx context.Context, filter JobRunFilter) (int, error) {
	query, args := buildJobRunsBaseQuery(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM ("+query+") job_runs", args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func buildJobRunsBaseQuery(filter JobRunFilter) (string, []any) {
	query := `
    SELECT id, job_type, status, COALESCE(details_json, '{}'::jsonb), started_at, completed_at
    FROM job_runs
    WHERE 1=1
  `
	args := []any{}

	if value := strings.TrimSpace(filter.JobType); value != "" {
		query += " AND job_type = $" + strconv.Itoa(len(args)+1)
		args = append(args, value)
	}
	if value := strings.TrimSpace(filter.Status); value != "" {
		query += " AND status = $" + strconv.Itoa(len(args)+1)
		args = append(args, value)
	}
	if filter.StartedFrom != nil && !filter.StartedFrom.IsZero() {
		query += " AND started_at >= $" + strconv.Itoa(len(args)+1)
		args = append(args, *filter.StartedFrom)
	}
	if filter.StartedTo != nil && !filter.StartedTo.IsZero() {
		query += " AND started_at <= $" + strconv.Itoa(len(args)+1)
		args = append(args, *filter.StartedTo)
	}

	return query, args
}

func decodeDetails(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	details := map[string]any{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return map[string]any{
			"raw": string(raw),
		}
	}
	return details
}
