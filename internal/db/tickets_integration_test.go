//go:build integration

package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIntegration_TicketOrgFilterAndOrder(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	creator := createTestUser(t, db, 0)
	orgID := uuid.New()
	t.Cleanup(func() {
		_, _ = db.pool.Exec(context.Background(), `DELETE FROM tickets WHERE org_id = $1`, orgID)
	})

	first, err := db.CreateTicket(ctx, orgID, creator.ID, "broken export", "", "")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if first.Status != TicketOpen {
		t.Errorf("Expected new ticket open, got %s", first.Status)
	}
	if first.Priority != "normal" {
		t.Errorf("Expected default priority normal, got %q", first.Priority)
	}
	time.Sleep(5 * time.Millisecond)

	second, err := db.CreateTicket(ctx, orgID, creator.ID, "slow render", "", "high")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	third, err := db.CreateTicket(ctx, orgID, creator.ID, "billing question", "", "")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if _, err := db.UpdateTicketStatus(ctx, third.ID, TicketInProgress); err != nil {
		t.Fatalf("UpdateTicketStatus failed: %v", err)
	}

	// Status filter matches exactly
	open, err := db.ListTicketsByOrg(ctx, orgID, TicketOpen)
	if err != nil {
		t.Fatalf("ListTicketsByOrg failed: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("Expected 2 open tickets, got %d", len(open))
	}
	for _, ticket := range open {
		if ticket.Status != TicketOpen {
			t.Errorf("Status filter leaked ticket with status %s", ticket.Status)
		}
	}

	// Commenting on the first ticket bumps it to the top of the list
	if _, err := db.AddTicketComment(ctx, first.ID, creator.ID, "still broken"); err != nil {
		t.Fatalf("AddTicketComment failed: %v", err)
	}
	open, err = db.ListTicketsByOrg(ctx, orgID, TicketOpen)
	if err != nil {
		t.Fatalf("ListTicketsByOrg failed: %v", err)
	}
	if open[0].ID != first.ID {
		t.Errorf("Expected commented ticket first, got %s", open[0].ID)
	}
	if open[1].ID != second.ID {
		t.Errorf("Expected ticket %s second, got %s", second.ID, open[1].ID)
	}

	// No filter returns everything
	all, err := db.ListTicketsByOrg(ctx, orgID, "")
	if err != nil {
		t.Fatalf("ListTicketsByOrg failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 tickets, got %d", len(all))
	}
}

func TestIntegration_TicketAssignAndClose(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	creator := createTestUser(t, db, 0)
	assignee := createTestUser(t, db, 0)
	orgID := uuid.New()
	t.Cleanup(func() {
		_, _ = db.pool.Exec(context.Background(), `DELETE FROM tickets WHERE org_id = $1`, orgID)
	})

	ticket, err := db.CreateTicket(ctx, orgID, creator.ID, "needs triage", "details", "low")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}

	closed, err := db.UpdateTicketStatus(ctx, ticket.ID, TicketClosed)
	if err != nil {
		t.Fatalf("UpdateTicketStatus failed: %v", err)
	}
	if closed.Status != TicketClosed {
		t.Errorf("Expected closed, got %s", closed.Status)
	}

	// Assignment stays legal on closed tickets
	assigned, err := db.AssignTicket(ctx, ticket.ID, assignee.ID)
	if err != nil {
		t.Fatalf("AssignTicket on closed ticket failed: %v", err)
	}
	if assigned.AssigneeID == nil || *assigned.AssigneeID != assignee.ID {
		t.Error("Expected assignee recorded")
	}

	// Closed tickets can be reopened; the set is closed but transitions are free
	reopened, err := db.UpdateTicketStatus(ctx, ticket.ID, TicketOpen)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if reopened.Status != TicketOpen {
		t.Errorf("Expected open, got %s", reopened.Status)
	}
}

func TestIntegration_TicketComments(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	creator := createTestUser(t, db, 0)
	orgID := uuid.New()
	t.Cleanup(func() {
		_, _ = db.pool.Exec(context.Background(), `DELETE FROM tickets WHERE org_id = $1`, orgID)
	})

	ticket, err := db.CreateTicket(ctx, orgID, creator.ID, "comment thread", "", "")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}

	for _, body := range []string{"first", "second", "third"} {
		if _, err := db.AddTicketComment(ctx, ticket.ID, creator.ID, body); err != nil {
			t.Fatalf("AddTicketComment failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	comments, err := db.ListTicketComments(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListTicketComments failed: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("Expected 3 comments, got %d", len(comments))
	}
	// Oldest first
	if comments[0].Body != "first" || comments[2].Body != "third" {
		t.Errorf("Expected chronological order, got %q .. %q", comments[0].Body, comments[2].Body)
	}
}
