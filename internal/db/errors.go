package db

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientCredits indicates a deduction larger than the balance.
// Nothing is written when this is returned.
type ErrInsufficientCredits struct {
	UserID    uuid.UUID
	Requested int
}

func (e *ErrInsufficientCredits) Error() string {
	return fmt.Sprintf("insufficient credits: user %s cannot cover %d", e.UserID, e.Requested)
}

// ErrNotFound indicates a keyed lookup or patch matched no row.
type ErrNotFound struct {
	Entity string
	ID     uuid.UUID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ErrInvalidTransition indicates a status change the state machine forbids.
type ErrInvalidTransition struct {
	Entity string
	From   string
	To     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}
