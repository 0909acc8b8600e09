package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tranvd/jobflow-be/internal/domain"
)

const jobColumns = `job_id, resource_id, status, task_parameters, result, error_message, created_at, updated_at, completed_at`

// Store persists job records in PostgreSQL. Every state transition is a
// conditional UPDATE guarded by the expected prior status, so a losing
// writer in a race observes rows_affected = 0 instead of clobbering the
// winner's terminal state.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new PENDING job for the resource. It returns
// *domain.ConflictError when a PENDING or RUNNING job already exists for the
// same resource. The check-then-insert runs in a transaction and a partial
// unique index on active rows backs it up against concurrent submitters.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var activeID string
	err = tx.QueryRowContext(ctx, `
		SELECT job_id FROM jobs
		WHERE resource_id = $1 AND status IN ($2, $3)
		LIMIT 1
	`, job.ResourceID, domain.JobStatusPending, domain.JobStatusRunning).Scan(&activeID)

	switch {
	case err == nil:
		return &domain.ConflictError{ActiveJobID: activeID}
	case errors.Is(err, sql.ErrNoRows):
		// No active job, proceed with insert
	default:
		return fmt.Errorf("failed to check active job: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (
			job_id, resource_id, status, task_parameters,
			error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		job.JobID,
		job.ResourceID,
		job.Status,
		job.TaskParameters,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Another submitter won the race between our check and insert
			return s.conflictFromActive(ctx, job.ResourceID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return s.conflictFromActive(ctx, job.ResourceID)
		}
		return fmt.Errorf("failed to commit job creation: %w", err)
	}

	return nil
}

// conflictFromActive builds a ConflictError carrying the winning job's id
func (s *Store) conflictFromActive(ctx context.Context, resourceID string) error {
	active, err := s.GetActive(ctx, resourceID)
	if err != nil {
		return &domain.ConflictError{}
	}
	return &domain.ConflictError{ActiveJobID: active.JobID}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Claim atomically transitions a job PENDING -> RUNNING. It returns false
// when the job is no longer PENDING, which happens under duplicate delivery.
func (s *Store) Claim(ctx context.Context, jobID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`, domain.JobStatusRunning, jobID, domain.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	claimed, err := affectedRow(result)
	if err != nil {
		return false, err
	}

	if claimed {
		s.logger.Info("Job claimed",
			slog.String("job_id", jobID),
		)
	}

	return claimed, nil
}

// Complete atomically transitions a job RUNNING -> COMPLETED and stores the
// executor result. A false return means the job was not RUNNING and nothing
// changed.
func (s *Store) Complete(ctx context.Context, jobID, executorResult string) (bool, error) {
	if executorResult == "" {
		executorResult = "{}"
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, result = $2, completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`, domain.JobStatusCompleted, executorResult, jobID, domain.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	return affectedRow(result)
}

// Fail atomically transitions a job RUNNING -> FAILED and records the
// truncated error message. A false return means the job was not RUNNING.
func (s *Store) Fail(ctx context.Context, jobID, message string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`, domain.JobStatusFailed, domain.TruncateErrorMessage(message), jobID, domain.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}

	return affectedRow(result)
}

// GetJobByID retrieves a job by its ID
func (s *Store) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetActive returns the resource's PENDING or RUNNING job, or ErrJobNotFound
func (s *Store) GetActive(ctx context.Context, resourceID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE resource_id = $1 AND status IN ($2, $3)
		LIMIT 1
	`, resourceID, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}

	return &job, nil
}

// GetLatest returns the most recently created job for the resource,
// or ErrJobNotFound when the resource never had one
func (s *Store) GetLatest(ctx context.Context, resourceID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE resource_id = $1
		ORDER BY created_at DESC, job_id DESC
		LIMIT 1
	`, resourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}

	return &job, nil
}

// ListStale returns RUNNING jobs whose updated_at is at or before cutoff.
// An empty resourceID scans all resources.
func (s *Store) ListStale(ctx context.Context, resourceID string, cutoff time.Time) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND updated_at <= $2
	`
	args := []interface{}{domain.JobStatusRunning, cutoff}

	if resourceID != "" {
		query += ` AND resource_id = $3`
		args = append(args, resourceID)
	}

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	return jobs, nil
}

func affectedRow(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
