// Package server provides the HTTP REST API for the PipeCanvas backend.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jamie/pipecanvas/internal/db"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error.
// Storage-layer errors (not found, insufficient credits, invalid
// transitions) map here so handlers can pass them through unmodified.
func HTTPStatus(err error) int {
	var notFound *db.ErrNotFound
	var insufficient *db.ErrInsufficientCredits
	var invalidTransition *db.ErrInvalidTransition

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &insufficient):
		return http.StatusPaymentRequired
	case errors.As(err, &invalidTransition):
		return http.StatusConflict
	}

	switch err.(type) {
	case *ErrEmailAlreadyExists:
		return http.StatusConflict
	case *ErrInvalidCredentials:
		return http.StatusUnauthorized
	case *ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
