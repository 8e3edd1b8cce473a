package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"pms/internal/domain/audit"
	"pms/internal/domain/reports"
	"pms/internal/platform/config"
)

const (
	JobReportSnapshot = "report_snapshot"
	JobMaintenance    = "maintenance_purge"
)

// Idempotency replay records older than this serve no purpose; retries do
// not arrive weeks later.
const idempotencyRetention = 30 * 24 * time.Hour

// Job run rows are operational telemetry, kept long enough to debug a
// quarter of schedules.
const jobRunRetention = 90 * 24 * time.Hour

type Service struct {
	DB      *pgxpool.Pool
	Cfg     config.Config
	Audit   *audit.Service
	Reports *reports.Service
	cron    *cron.Cron
	queue   chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, auditSvc *audit.Service, reportsSvc *reports.Service) *Service {
	return &Service{
		DB:      db,
		Cfg:     cfg,
		Audit:   auditSvc,
		Reports: reportsSvc,
		cron:    cron.New(),
		queue:   make(chan job, 128),
	}
}

// Start launches the worker and registers the cron schedules. A bad cron
// expression fails startup rather than silently disabling a schedule.
func (s *Service) Start(ctx context.Context) error {
	go s.worker(ctx)

	if expr := s.Cfg.SnapshotCron; expr != "" {
		if _, err := s.cron.AddFunc(expr, func() {
			s.Enqueue(JobReportSnapshot, s.runSnapshot)
		}); err != nil {
			return fmt.Errorf("register snapshot schedule: %w", err)
		}
	}
	if expr := s.Cfg.MaintenanceCron; expr != "" {
		if _, err := s.cron.AddFunc(expr, func() {
			s.Enqueue(JobMaintenance, s.runMaintenance)
		}); err != nil {
			return fmt.Errorf("register maintenance schedule: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight cron callback.
// Queued work drains when the context passed to Start is cancelled.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// SnapshotNow captures a summary snapshot synchronously, recorded in
// job_runs like any scheduled execution.
func (s *Service) SnapshotNow(ctx context.Context) (any, error) {
	return s.RunNow(ctx, JobReportSnapshot, s.runSnapshot)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) runSnapshot(ctx context.Context) (any, error) {
	snap, err := s.Reports.CaptureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"snapshotId": snap.ID,
		"capturedAt": snap.CapturedAt,
	}, nil
}

func (s *Service) runMaintenance(ctx context.Context) (any, error) {
	auditDeleted, err := s.Audit.Purge(ctx, time.Now().Add(-s.Cfg.AuditRetention))
	if err != nil {
		return nil, err
	}

	sessions, err := s.DB.Exec(ctx, "DELETE FROM sessions WHERE expires_at < $1", time.Now())
	if err != nil {
		return nil, err
	}

	idem, err := s.DB.Exec(ctx, "DELETE FROM idempotency_keys WHERE created_at < $1", time.Now().Add(-idempotencyRetention))
	if err != nil {
		return nil, err
	}

	runs, err := s.DB.Exec(ctx, "DELETE FROM job_runs WHERE started_at < $1", time.Now().Add(-jobRunRetention))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"auditDeleted":       auditDeleted,
		"sessionsDeleted":    sessions.RowsAffected(),
		"idempotencyDeleted": idem.RowsAffected(),
		"jobRunsDeleted":     runs.RowsAffected(),
	}, nil
}
