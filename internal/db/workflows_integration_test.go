//go:build integration

package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestIntegration_WorkflowDefaultsAndPatch(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	owner := createTestUser(t, db, 0)

	wf, err := db.CreateWorkflow(ctx, owner.ID, "", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	if wf.Title != "Untitled Workflow" {
		t.Errorf("Expected default title, got %q", wf.Title)
	}
	if string(wf.Nodes) != "[]" || string(wf.Edges) != "[]" {
		t.Errorf("Expected empty graph defaults, got %s / %s", wf.Nodes, wf.Edges)
	}

	// Patch only the nodes; title stays put
	nodes := json.RawMessage(`[{"id":"n1","type":"source"}]`)
	patched, err := db.UpdateWorkflow(ctx, wf.ID, WorkflowPatch{Nodes: nodes})
	if err != nil {
		t.Fatalf("UpdateWorkflow failed: %v", err)
	}
	if patched.Title != "Untitled Workflow" {
		t.Errorf("Patch touched title: %q", patched.Title)
	}
	if string(patched.Nodes) != string(nodes) {
		t.Errorf("Expected patched nodes, got %s", patched.Nodes)
	}
	if !patched.UpdatedAt.After(wf.UpdatedAt) {
		t.Error("Expected updated_at bumped by patch")
	}

	title := "Render Pipeline"
	renamed, err := db.UpdateWorkflow(ctx, wf.ID, WorkflowPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateWorkflow failed: %v", err)
	}
	if renamed.Title != title {
		t.Errorf("Expected renamed title, got %q", renamed.Title)
	}
	if string(renamed.Nodes) != string(nodes) {
		t.Errorf("Rename touched nodes: %s", renamed.Nodes)
	}
}

func TestIntegration_WorkflowListNewestFirst(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	owner := createTestUser(t, db, 0)

	older, err := db.CreateWorkflow(ctx, owner.ID, "older", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	newer, err := db.CreateWorkflow(ctx, owner.ID, "newer", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	list, err := db.ListWorkflows(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListWorkflows failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 workflows, got %d", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Error("Expected newest workflow first")
	}

	// Touching the older one reorders the list
	if _, err := db.UpdateWorkflow(ctx, older.ID, WorkflowPatch{}); err != nil {
		t.Fatalf("UpdateWorkflow failed: %v", err)
	}
	list, err = db.ListWorkflows(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListWorkflows failed: %v", err)
	}
	if list[0].ID != older.ID {
		t.Error("Expected touched workflow first")
	}
}

func TestIntegration_GetOrCreateWorkflow(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	owner := createTestUser(t, db, 0)

	created, err := db.GetOrCreateWorkflow(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetOrCreateWorkflow failed: %v", err)
	}
	if created == nil {
		t.Fatal("Expected a workflow, got nil")
	}

	again, err := db.GetOrCreateWorkflow(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetOrCreateWorkflow (second call) failed: %v", err)
	}
	if again.ID != created.ID {
		t.Errorf("Expected same workflow, got %s vs %s", created.ID, again.ID)
	}
}

func TestIntegration_DeleteWorkflow(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	owner := createTestUser(t, db, 0)
	wf, err := db.CreateWorkflow(ctx, owner.ID, "doomed", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if err := db.DeleteWorkflow(ctx, wf.ID); err != nil {
		t.Fatalf("DeleteWorkflow failed: %v", err)
	}

	gone, err := db.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if gone != nil {
		t.Error("Expected workflow deleted")
	}
}
