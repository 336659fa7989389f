package server

import (
	"net/http"

	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/server/middleware"
)

// UserHandler serves the authenticated user's profile and credit data.
type UserHandler struct {
	db *db.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(database *db.DB) *UserHandler {
	return &UserHandler{db: database}
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.db.GetUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Credits returns the authenticated user's current credit balance.
func (h *UserHandler) Credits(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	credits, err := h.db.GetCredits(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"credits": credits})
}

// Transactions returns the authenticated user's credit ledger, newest first.
func (h *UserHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := h.db.ListTransactions(r.Context(), userID, 0)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}
