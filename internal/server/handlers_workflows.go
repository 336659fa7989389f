package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/server/middleware"
)

// CreateWorkflowRequest represents the request to create a workflow document.
type CreateWorkflowRequest struct {
	Title    string          `json:"title,omitempty"`
	Nodes    json.RawMessage `json:"nodes,omitempty"`
	Edges    json.RawMessage `json:"edges,omitempty"`
	IsPublic bool            `json:"is_public,omitempty"`
}

// UpdateWorkflowRequest is a partial update; absent fields are untouched.
type UpdateWorkflowRequest struct {
	Title    *string         `json:"title,omitempty"`
	Nodes    json.RawMessage `json:"nodes,omitempty"`
	Edges    json.RawMessage `json:"edges,omitempty"`
	IsPublic *bool           `json:"is_public,omitempty"`
}

// WorkflowHandler handles workflow document HTTP requests.
// Reads and writes are owner-scoped; public workflows are readable by anyone.
type WorkflowHandler struct {
	db        *db.DB
	validator *validator.Validate
}

// NewWorkflowHandler creates a new WorkflowHandler.
func NewWorkflowHandler(database *db.DB) *WorkflowHandler {
	return &WorkflowHandler{db: database, validator: validator.New()}
}

// Create stores a new workflow document for the authenticated user.
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	workflow, err := h.db.CreateWorkflow(r.Context(), userID, req.Title, req.Nodes, req.Edges, req.IsPublic)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, workflow)
}

// List returns the caller's workflows, newest first. Anonymous callers
// get an empty list rather than an error.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"workflows": []db.Workflow{}})
		return
	}

	workflows, err := h.db.ListWorkflows(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

// Get returns a workflow the caller owns, or any public workflow.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid workflow ID", http.StatusBadRequest)
		return
	}

	workflow, err := h.db.GetWorkflow(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	if workflow == nil {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}

	if !workflow.IsPublic {
		userID, err := middleware.GetUserID(r)
		if err != nil || userID != workflow.Owner {
			// 404 instead of 403 so private workflow IDs leak nothing.
			http.Error(w, "workflow not found", http.StatusNotFound)
			return
		}
	}

	writeJSON(w, http.StatusOK, workflow)
}

// Update applies a partial patch to a workflow the caller owns.
// Concurrent saves are last-write-wins.
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid workflow ID", http.StatusBadRequest)
		return
	}

	workflow, err := h.ownedWorkflow(w, r, id, userID)
	if err != nil || workflow == nil {
		return
	}

	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.db.UpdateWorkflow(r.Context(), id, db.WorkflowPatch{
		Title:    req.Title,
		Nodes:    req.Nodes,
		Edges:    req.Edges,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a workflow the caller owns.
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid workflow ID", http.StatusBadRequest)
		return
	}

	workflow, err := h.ownedWorkflow(w, r, id, userID)
	if err != nil || workflow == nil {
		return
	}

	if err := h.db.DeleteWorkflow(r.Context(), id); err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedWorkflow loads a workflow and enforces ownership, writing the
// error response itself. A nil workflow with nil error means the
// response was already written.
func (h *WorkflowHandler) ownedWorkflow(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) (*db.Workflow, error) {
	workflow, err := h.db.GetWorkflow(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return nil, err
	}
	if workflow == nil || workflow.Owner != userID {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return nil, nil
	}
	return workflow, nil
}
