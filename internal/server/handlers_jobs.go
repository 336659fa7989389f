package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jamie/pipecanvas/internal/db"
)

// EnqueueJobRequest represents the request to enqueue an agent job.
type EnqueueJobRequest struct {
	Type     string          `json:"type" validate:"required"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Priority int             `json:"priority"`
}

// ClaimJobRequest represents a worker's claim request. Type narrows the
// claim to one job type; empty claims any.
type ClaimJobRequest struct {
	Type      string `json:"type,omitempty"`
	ClaimedBy string `json:"claimed_by" validate:"required"`
}

// CompleteJobRequest carries a finished job's result.
type CompleteJobRequest struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// FailJobRequest carries a failed job's error message.
type FailJobRequest struct {
	Error string `json:"error" validate:"required"`
}

// JobHandler handles agent job queue HTTP requests.
type JobHandler struct {
	db        *db.DB
	validator *validator.Validate
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(database *db.DB) *JobHandler {
	return &JobHandler{db: database, validator: validator.New()}
}

// Enqueue adds a job to the queue.
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	job, err := h.db.EnqueueJob(r.Context(), req.Type, req.Payload, req.Priority)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// Claim atomically hands the next queued job to a worker. Returns 204
// when the queue is empty.
func (h *JobHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	job, err := h.db.ClaimNextJob(r.Context(), req.Type, req.ClaimedBy)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// Complete marks a claimed job completed.
func (h *JobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	var req CompleteJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.db.CompleteJob(r.Context(), id, req.Result)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// Fail marks a claimed job failed with an error message.
func (h *JobHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	var req FailJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	job, err := h.db.FailJob(r.Context(), id, req.Error)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// List returns jobs matching optional status/type query filters.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := db.JobFilters{
		Type: r.URL.Query().Get("type"),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		js := db.JobStatus(status)
		if !js.Valid() {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		filters.Status = js
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filters.Limit = limit
	}

	jobs, err := h.db.ListJobs(r.Context(), filters)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
