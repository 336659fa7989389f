package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/server/middleware"
)

// CreateTicketRequest represents the request to open a support ticket.
type CreateTicketRequest struct {
	OrgID       string `json:"org_id" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,min=1"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
}

// AssignTicketRequest sets a ticket's assignee.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required,uuid"`
}

// UpdateTicketStatusRequest moves a ticket to a new status.
type UpdateTicketStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AddTicketCommentRequest appends a comment to a ticket.
type AddTicketCommentRequest struct {
	Body string `json:"body" validate:"required,min=1"`
}

// TicketHandler handles support ticket HTTP requests.
type TicketHandler struct {
	db        *db.DB
	validator *validator.Validate
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(database *db.DB) *TicketHandler {
	return &TicketHandler{db: database, validator: validator.New()}
}

// Create opens a new ticket for an organization.
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		http.Error(w, "Invalid org_id", http.StatusBadRequest)
		return
	}

	ticket, err := h.db.CreateTicket(r.Context(), orgID, userID, req.Title, req.Description, req.Priority)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}

// Assign sets the ticket's assignee. Closed tickets may still be
// reassigned for bookkeeping.
func (h *TicketHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	var req AssignTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	assigneeID, err := uuid.Parse(req.AssigneeID)
	if err != nil {
		http.Error(w, "Invalid assignee_id", http.StatusBadRequest)
		return
	}

	ticket, err := h.db.AssignTicket(r.Context(), id, assigneeID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

// UpdateStatus moves a ticket to a new status from the closed set.
func (h *TicketHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	var req UpdateTicketStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	status := db.TicketStatus(req.Status)
	if !status.Valid() {
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}

	ticket, err := h.db.UpdateTicketStatus(r.Context(), id, status)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

// AddComment appends a comment and touches the parent ticket.
func (h *TicketHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	var req AddTicketCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	comment, err := h.db.AddTicketComment(r.Context(), id, userID, req.Body)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

// ListComments returns a ticket's comments oldest first.
func (h *TicketHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ticket ID", http.StatusBadRequest)
		return
	}

	comments, err := h.db.ListTicketComments(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// ListByOrg returns an organization's tickets, optionally filtered by
// exact status, most recently updated first.
func (h *TicketHandler) ListByOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("org_id"))
	if err != nil {
		http.Error(w, "Invalid org ID", http.StatusBadRequest)
		return
	}

	var status db.TicketStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = db.TicketStatus(s)
		if !status.Valid() {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
	}

	tickets, err := h.db.ListTicketsByOrg(r.Context(), orgID, status)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}
