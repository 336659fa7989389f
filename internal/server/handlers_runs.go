package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/server/middleware"
)

// CreateRunRequest represents the request to start an inference run.
type CreateRunRequest struct {
	WorkflowID *string         `json:"workflow_id,omitempty" validate:"omitempty,uuid"`
	Input      json.RawMessage `json:"input,omitempty"`
	Cost       int             `json:"cost" validate:"gte=0"`
}

// UpdateRunStatusRequest is the inference worker's callback payload.
type UpdateRunStatusRequest struct {
	Status string          `json:"status" validate:"required"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunHandler handles inference run HTTP requests.
type RunHandler struct {
	db        *db.DB
	validator *validator.Validate
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(database *db.DB) *RunHandler {
	return &RunHandler{db: database, validator: validator.New()}
}

// Create starts a run for the authenticated user, debiting its cost
// atomically with the insert.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	var workflowID *uuid.UUID
	if req.WorkflowID != nil {
		id, err := uuid.Parse(*req.WorkflowID)
		if err != nil {
			http.Error(w, "Invalid workflow_id", http.StatusBadRequest)
			return
		}
		workflowID = &id
	}

	run, err := h.db.CreateRun(r.Context(), userID, workflowID, req.Input, req.Cost)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

// Get returns a run the caller owns, or a run of a public workflow.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.db.GetRun(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	if run.UserID != userID {
		visible := false
		if run.WorkflowID != nil {
			workflow, err := h.db.GetWorkflow(r.Context(), *run.WorkflowID)
			if err != nil {
				http.Error(w, err.Error(), HTTPStatus(err))
				return
			}
			visible = workflow != nil && workflow.IsPublic
		}
		if !visible {
			// 404 instead of 403 so run IDs leak nothing.
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
	}

	writeJSON(w, http.StatusOK, run)
}

// UpdateStatus moves a run through its lifecycle. The inference worker
// calls this; transitions out of a terminal status return 409.
func (h *RunHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	var req UpdateRunStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	status := db.RunStatus(req.Status)
	if !status.Valid() {
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}

	run, err := h.db.UpdateRunStatus(r.Context(), id, status, req.Result, req.Error)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListByWorkflow returns the most recent runs for a workflow the caller
// owns, or for any public workflow.
func (h *RunHandler) ListByWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid workflow ID", http.StatusBadRequest)
		return
	}

	workflow, err := h.db.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	if workflow == nil || (!workflow.IsPublic && workflow.Owner != userID) {
		// Same 404 the workflow read gives non-owners of a private document.
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}

	runs, err := h.db.ListRunsByWorkflow(r.Context(), workflowID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
