package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ticketColumns = `id, org_id, created_by, assignee_id, status, priority, title, description, created_at, updated_at`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.OrgID, &t.CreatedBy, &t.AssigneeID, &t.Status,
		&t.Priority, &t.Title, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}
	return &t, nil
}

// CreateTicket opens a new ticket with status open.
func (db *DB) CreateTicket(ctx context.Context, orgID, createdBy uuid.UUID, title, description, priority string) (*Ticket, error) {
	if title == "" {
		return nil, fmt.Errorf("ticket title is required")
	}
	if priority == "" {
		priority = "normal"
	}
	return scanTicket(db.pool.QueryRow(ctx,
		`INSERT INTO tickets (org_id, created_by, title, description, priority)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+ticketColumns,
		orgID, createdBy, title, description, priority))
}

// GetTicket retrieves a ticket by ID. Returns nil when no row matches.
func (db *DB) GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	return scanTicket(db.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

// AssignTicket sets the assignee. Assigning a closed ticket is allowed;
// no workflow is enforced beyond the status value set.
func (db *DB) AssignTicket(ctx context.Context, id, assigneeID uuid.UUID) (*Ticket, error) {
	ticket, err := scanTicket(db.pool.QueryRow(ctx,
		`UPDATE tickets SET assignee_id = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING `+ticketColumns,
		assigneeID, id))
	if err != nil {
		return nil, fmt.Errorf("failed to assign ticket: %w", err)
	}
	if ticket == nil {
		return nil, &ErrNotFound{Entity: "ticket", ID: id}
	}
	return ticket, nil
}

// UpdateTicketStatus sets the status. The value must belong to the closed
// open/in_progress/closed set; any member-to-member change is allowed,
// including reopening.
func (db *DB) UpdateTicketStatus(ctx context.Context, id uuid.UUID, status TicketStatus) (*Ticket, error) {
	if !status.Valid() {
		return nil, &ErrInvalidTransition{Entity: "ticket", From: "?", To: string(status)}
	}
	ticket, err := scanTicket(db.pool.QueryRow(ctx,
		`UPDATE tickets SET status = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING `+ticketColumns,
		status, id))
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}
	if ticket == nil {
		return nil, &ErrNotFound{Entity: "ticket", ID: id}
	}
	return ticket, nil
}

// AddTicketComment appends a comment and refreshes the parent ticket's
// updated_at in the same transaction.
func (db *DB) AddTicketComment(ctx context.Context, ticketID, authorID uuid.UUID, body string) (*TicketComment, error) {
	if body == "" {
		return nil, fmt.Errorf("comment body is required")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	result, err := tx.Exec(ctx,
		`UPDATE tickets SET updated_at = NOW() WHERE id = $1`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch ticket: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, &ErrNotFound{Entity: "ticket", ID: ticketID}
	}

	var c TicketComment
	err = tx.QueryRow(ctx,
		`INSERT INTO ticket_comments (ticket_id, author_id, body)
		 VALUES ($1, $2, $3)
		 RETURNING id, ticket_id, author_id, body, created_at`,
		ticketID, authorID, body,
	).Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit comment: %w", err)
	}
	return &c, nil
}

// ListTicketsByOrg returns an org's tickets, optionally filtered to one
// exact status, ordered by updated_at descending.
func (db *DB) ListTicketsByOrg(ctx context.Context, orgID uuid.UUID, status TicketStatus) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE org_id = $1`
	args := []any{orgID}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("unknown ticket status %q", status)
		}
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.OrgID, &t.CreatedBy, &t.AssigneeID, &t.Status,
			&t.Priority, &t.Title, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// ListTicketComments returns a ticket's comments, oldest first.
func (db *DB) ListTicketComments(ctx context.Context, ticketID uuid.UUID) ([]TicketComment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, ticket_id, author_id, body, created_at
		 FROM ticket_comments
		 WHERE ticket_id = $1
		 ORDER BY created_at ASC`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []TicketComment
	for rows.Next() {
		var c TicketComment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, nil
}
