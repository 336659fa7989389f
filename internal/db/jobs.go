package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, type, status, payload, priority, created_at, claimed_at, claimed_by, completed_at, result, error`

func scanJob(row pgx.Row) (*AgentJob, error) {
	var j AgentJob
	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.Payload, &j.Priority,
		&j.CreatedAt, &j.ClaimedAt, &j.ClaimedBy, &j.CompletedAt, &j.Result, &j.ErrorMsg)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &j, nil
}

// EnqueueJob inserts a queued agent job. Higher priority drains first;
// equal priorities drain oldest first.
func (db *DB) EnqueueJob(ctx context.Context, jobType string, payload json.RawMessage, priority int) (*AgentJob, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	return scanJob(db.pool.QueryRow(ctx,
		`INSERT INTO agent_jobs (type, payload, priority)
		 VALUES ($1, $2, $3)
		 RETURNING `+jobColumns,
		jobType, payload, priority))
}

// ClaimNextJob atomically claims the head of the queue: the queued job
// with the highest priority, oldest first within a priority. Returns nil
// when nothing is queued.
//
// The candidate row is locked with FOR UPDATE SKIP LOCKED before the
// status flips to claimed, so two concurrent claimants always receive
// different jobs. A claimant that dies after this commit strands the job
// in claimed; there is no lease or reclaim (see DESIGN.md).
func (db *DB) ClaimNextJob(ctx context.Context, jobType string, claimedBy string) (*AgentJob, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `SELECT id FROM agent_jobs WHERE status = 'queued'`
	args := []any{}
	if jobType != "" {
		query += ` AND type = $1`
		args = append(args, jobType)
	}
	query += ` ORDER BY priority DESC, created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`

	var id uuid.UUID
	err = tx.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // queue empty
		}
		return nil, fmt.Errorf("failed to select job: %w", err)
	}

	job, err := scanJob(tx.QueryRow(ctx,
		`UPDATE agent_jobs
		 SET status = 'claimed', claimed_at = NOW(), claimed_by = $1
		 WHERE id = $2
		 RETURNING `+jobColumns,
		claimedBy, id))
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return job, nil
}

// CompleteJob moves a claimed job to completed. Only the claimed status
// may complete; anything else returns ErrInvalidTransition.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) (*AgentJob, error) {
	return db.finishJob(ctx, id, JobCompleted, result, "")
}

// FailJob moves a claimed job to failed, recording the error. The job is
// not requeued.
func (db *DB) FailJob(ctx context.Context, id uuid.UUID, errMsg string) (*AgentJob, error) {
	return db.finishJob(ctx, id, JobFailed, nil, errMsg)
}

func (db *DB) finishJob(ctx context.Context, id uuid.UUID, status JobStatus, result json.RawMessage, errMsg string) (*AgentJob, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`UPDATE agent_jobs
		 SET status = $1, completed_at = NOW(), result = COALESCE($2, result), error = $3
		 WHERE id = $4 AND status = 'claimed'
		 RETURNING `+jobColumns,
		status, result, errMsg, id))
	if err != nil {
		return nil, fmt.Errorf("failed to finish job: %w", err)
	}
	if job == nil {
		current, err := db.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, &ErrNotFound{Entity: "job", ID: id}
		}
		return nil, &ErrInvalidTransition{Entity: "job", From: string(current.Status), To: string(status)}
	}
	return job, nil
}

// GetJob retrieves a job by ID. Returns nil when no row matches.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*AgentJob, error) {
	return scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM agent_jobs WHERE id = $1`, id))
}

// JobFilters holds optional filters for listing jobs.
type JobFilters struct {
	Status JobStatus
	Type   string
	Limit  int
}

// ListJobs returns matching jobs, newest first.
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]AgentJob, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filters.Status)
		argNum++
	}
	if filters.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argNum))
		args = append(args, filters.Type)
		argNum++
	}

	query := `SELECT ` + jobColumns + ` FROM agent_jobs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []AgentJob
	for rows.Next() {
		var j AgentJob
		if err := rows.Scan(&j.ID, &j.Type, &j.Status, &j.Payload, &j.Priority,
			&j.CreatedAt, &j.ClaimedAt, &j.ClaimedBy, &j.CompletedAt, &j.Result, &j.ErrorMsg); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
