package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, workflow_id, user_id, status, input, result, error, cost, started_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.WorkflowID, &r.UserID, &r.Status, &r.Input,
		&r.Result, &r.ErrorMsg, &r.Cost, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return &r, nil
}

// CreateRun inserts a queued run, debiting the user's credits first when
// cost > 0. The debit, its ledger row, and the run insert share one
// database transaction: an insufficient balance rolls back everything and
// leaves both the balance and the ledger untouched.
func (db *DB) CreateRun(ctx context.Context, userID uuid.UUID, workflowID *uuid.UUID, input json.RawMessage, cost int) (*Run, error) {
	if cost < 0 {
		return nil, fmt.Errorf("run cost must be non-negative, got %d", cost)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var run Run
	err = tx.QueryRow(ctx,
		`INSERT INTO runs (workflow_id, user_id, status, input, cost)
		 VALUES ($1, $2, 'queued', $3, $4)
		 RETURNING `+runColumns,
		workflowID, userID, input, cost,
	).Scan(&run.ID, &run.WorkflowID, &run.UserID, &run.Status, &run.Input,
		&run.Result, &run.ErrorMsg, &run.Cost, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if cost > 0 {
		refID := run.ID.String()
		if _, err := deductCreditsTx(ctx, tx, userID, cost, TxTypeRunCost, &refID,
			"inference run"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &run, nil
}

// GetRun retrieves a run by ID. Returns nil when no row matches.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	return scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
}

// UpdateRunStatus moves a run along its state machine. Terminal statuses
// stamp completed_at. A transition the table forbids (including any
// transition out of a terminal status) returns ErrInvalidTransition and
// changes nothing. The status check and update happen in one conditional
// statement, so concurrent callers cannot both win.
func (db *DB) UpdateRunStatus(ctx context.Context, id uuid.UUID, status RunStatus, result json.RawMessage, errMsg string) (*Run, error) {
	if !status.Valid() {
		return nil, &ErrInvalidTransition{Entity: "run", From: "?", To: string(status)}
	}

	current, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &ErrNotFound{Entity: "run", ID: id}
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, &ErrInvalidTransition{Entity: "run", From: string(current.Status), To: string(status)}
	}

	// Guard on the previously read status so a concurrent transition
	// invalidates this update instead of being overwritten.
	row := db.pool.QueryRow(ctx,
		`UPDATE runs
		 SET status = $1,
		     result = COALESCE($2, result),
		     error = CASE WHEN $3 = '' THEN error ELSE $3 END,
		     completed_at = CASE WHEN $1 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		 WHERE id = $4 AND status = $5
		 RETURNING `+runColumns,
		status, result, errMsg, id, current.Status,
	)
	updated, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update run status: %w", err)
	}
	if updated == nil {
		return nil, &ErrInvalidTransition{Entity: "run", From: string(current.Status), To: string(status)}
	}
	return updated, nil
}

// ListRunsByWorkflow returns the 50 most recent runs of a workflow,
// newest first.
func (db *DB) ListRunsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+`
		 FROM runs
		 WHERE workflow_id = $1
		 ORDER BY started_at DESC
		 LIMIT 50`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.UserID, &r.Status, &r.Input,
			&r.Result, &r.ErrorMsg, &r.Cost, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// ListRunsByUser returns a user's most recent runs, newest first.
func (db *DB) ListRunsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+`
		 FROM runs
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.UserID, &r.Status, &r.Input,
			&r.Result, &r.ErrorMsg, &r.Cost, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}
