package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const workflowColumns = `id, owner, title, nodes, edges, is_public, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*Workflow, error) {
	var w Workflow
	err := row.Scan(&w.ID, &w.Owner, &w.Title, &w.Nodes, &w.Edges,
		&w.IsPublic, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	return &w, nil
}

// CreateWorkflow persists a new graph document for its owner.
func (db *DB) CreateWorkflow(ctx context.Context, owner uuid.UUID, title string, nodes, edges json.RawMessage, isPublic bool) (*Workflow, error) {
	if title == "" {
		title = "Untitled Workflow"
	}
	if nodes == nil {
		nodes = json.RawMessage("[]")
	}
	if edges == nil {
		edges = json.RawMessage("[]")
	}
	return scanWorkflow(db.pool.QueryRow(ctx,
		`INSERT INTO workflows (owner, title, nodes, edges, is_public)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+workflowColumns,
		owner, title, nodes, edges, isPublic))
}

// GetOrCreateWorkflow returns the owner's most recently edited workflow,
// creating an empty untitled one on first use of the editor.
func (db *DB) GetOrCreateWorkflow(ctx context.Context, owner uuid.UUID) (*Workflow, error) {
	w, err := scanWorkflow(db.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+`
		 FROM workflows
		 WHERE owner = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		owner))
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}
	return db.CreateWorkflow(ctx, owner, "", nil, nil, false)
}

// GetWorkflow retrieves a workflow by ID. Returns nil when no row matches.
func (db *DB) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	return scanWorkflow(db.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
}

// WorkflowPatch carries the fields of a partial update. Nil fields are
// left untouched; updated_at always refreshes. Saves are last-write-wins:
// the editor debounces rapid edits client-side and there is no merge of
// concurrent editors.
type WorkflowPatch struct {
	Title    *string
	Nodes    json.RawMessage
	Edges    json.RawMessage
	IsPublic *bool
}

// UpdateWorkflow applies a partial patch to a workflow.
func (db *DB) UpdateWorkflow(ctx context.Context, id uuid.UUID, patch WorkflowPatch) (*Workflow, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	argNum := 1

	if patch.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", argNum))
		args = append(args, *patch.Title)
		argNum++
	}
	if patch.Nodes != nil {
		sets = append(sets, fmt.Sprintf("nodes = $%d", argNum))
		args = append(args, patch.Nodes)
		argNum++
	}
	if patch.Edges != nil {
		sets = append(sets, fmt.Sprintf("edges = $%d", argNum))
		args = append(args, patch.Edges)
		argNum++
	}
	if patch.IsPublic != nil {
		sets = append(sets, fmt.Sprintf("is_public = $%d", argNum))
		args = append(args, *patch.IsPublic)
		argNum++
	}

	query := fmt.Sprintf(`UPDATE workflows SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), argNum, workflowColumns)
	args = append(args, id)

	w, err := scanWorkflow(db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if w == nil {
		return nil, &ErrNotFound{Entity: "workflow", ID: id}
	}
	return w, nil
}

// ListWorkflows returns an owner's workflows, most recently edited first.
func (db *DB) ListWorkflows(ctx context.Context, owner uuid.UUID) ([]Workflow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+workflowColumns+`
		 FROM workflows
		 WHERE owner = $1
		 ORDER BY updated_at DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []Workflow
	for rows.Next() {
		var w Workflow
		if err := rows.Scan(&w.ID, &w.Owner, &w.Title, &w.Nodes, &w.Edges,
			&w.IsPublic, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, nil
}

// DeleteWorkflow removes a workflow. Runs keep their rows with
// workflow_id nulled by the schema's ON DELETE SET NULL.
func (db *DB) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "workflow", ID: id}
	}
	return nil
}
