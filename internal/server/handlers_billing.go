package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jamie/pipecanvas/internal/db"
)

// BillingWebhookRequest is the payload the payment provider posts after a
// successful purchase. EventID deduplicates retried deliveries.
type BillingWebhookRequest struct {
	EventID string `json:"event_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required,uuid"`
	Credits int    `json:"credits" validate:"required,gt=0"`
}

// BillingHandler processes payment-provider webhook deliveries.
type BillingHandler struct {
	db        *db.DB
	secret    string
	validator *validator.Validate
}

// NewBillingHandler creates a new BillingHandler guarded by the given
// shared secret.
func NewBillingHandler(database *db.DB, secret string) *BillingHandler {
	return &BillingHandler{
		db:        database,
		secret:    secret,
		validator: validator.New(),
	}
}

// Webhook credits a user after a purchase. Deliveries are idempotent:
// replays with an already-seen event_id are acknowledged without a
// second grant.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req BillingWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, "Invalid user_id", http.StatusBadRequest)
		return
	}

	tx, err := h.db.AddCredits(r.Context(), userID, req.Credits, db.TxTypePurchase, &req.EventID, "credit purchase")
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	// tx is nil when the event was already applied; acknowledge so the
	// provider stops retrying.
	if tx == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "already_applied"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "applied", "transaction": tx})
}
