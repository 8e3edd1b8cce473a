package reports

import (
	"context"
	"encoding/json"
	"time"
)

type Service struct {
	Store *Store
}

func NewService(store *Store) *Service {
	return &Service{Store: store}
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	counts, err := s.Store.StatusCounts(ctx)
	if err != nil {
		return Summary{}, err
	}
	ready, err := s.Store.DraftsReady(ctx)
	if err != nil {
		return Summary{}, err
	}
	ratings, err := s.Store.RatingAverages(ctx)
	if err != nil {
		return Summary{}, err
	}
	return BuildSummary(counts, ready, ratings, time.Now().UTC()), nil
}

// CaptureSnapshot computes the current summary and persists it for the
// history endpoint.
func (s *Service) CaptureSnapshot(ctx context.Context) (Snapshot, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return Snapshot{}, err
	}
	id, err := s.Store.InsertSnapshot(ctx, payload)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: id, CapturedAt: summary.GeneratedAt, Summary: payload}, nil
}

func (s *Service) History(ctx context.Context, limit, offset int) ([]Snapshot, int, error) {
	total, err := s.Store.CountSnapshots(ctx)
	if err != nil {
		return nil, 0, err
	}
	snaps, err := s.Store.ListSnapshots(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return snaps, total, nil
}

func (s *Service) ExportRows(ctx context.Context, status string) ([]AppraisalRow, error) {
	return s.Store.AppraisalRows(ctx, status)
}

func (s *Service) PartyNames(ctx context.Context, appraisalID string) (PartyNames, error) {
	return s.Store.PartyNames(ctx, appraisalID)
}

func (s *Service) JobRuns(ctx context.Context, filter JobRunFilter, limit, offset int) ([]map[string]any, int, error) {
	total, err := s.Store.CountJobRuns(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	runs, err := s.Store.ListJobRuns(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}
