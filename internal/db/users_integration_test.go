//go:build integration

package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

func TestIntegration_DeductBeyondBalance(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := createTestUser(t, db, 3)

	_, err := db.DeductCredits(ctx, user.ID, 5, TxTypeAdjustment, nil, "over-deduct")
	var insufficient *ErrInsufficientCredits
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected ErrInsufficientCredits, got: %v", err)
	}

	// Balance untouched, no ledger entry written
	credits, err := db.GetCredits(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 3 {
		t.Errorf("Expected balance 3 after failed deduct, got %d", credits)
	}

	entries, err := db.ListTransactions(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no ledger entries, got %d", len(entries))
	}
}

func TestIntegration_AddThenDeductRestoresBalance(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := createTestUser(t, db, 0)

	if _, err := db.AddCredits(ctx, user.ID, 10, TxTypePurchase, nil, "top up"); err != nil {
		t.Fatalf("AddCredits failed: %v", err)
	}
	if _, err := db.DeductCredits(ctx, user.ID, 10, TxTypeAdjustment, nil, "spend"); err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}

	credits, err := db.GetCredits(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 0 {
		t.Errorf("Expected balance 0, got %d", credits)
	}

	// Ledger records both movements with signed amounts
	entries, err := db.ListTransactions(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 ledger entries, got %d", len(entries))
	}
	// Newest first
	if entries[0].Amount != -10 {
		t.Errorf("Expected newest entry amount -10, got %d", entries[0].Amount)
	}
	if entries[1].Amount != 10 {
		t.Errorf("Expected oldest entry amount 10, got %d", entries[1].Amount)
	}
}

func TestIntegration_AddCreditsIdempotentPerReference(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := createTestUser(t, db, 0)
	eventID := "evt-" + uuid.NewString()

	first, err := db.AddCredits(ctx, user.ID, 25, TxTypePurchase, &eventID, "purchase")
	if err != nil {
		t.Fatalf("AddCredits failed: %v", err)
	}
	if first == nil {
		t.Fatal("Expected transaction on first application, got nil")
	}

	// Replay with the same reference is acknowledged without a grant
	second, err := db.AddCredits(ctx, user.ID, 25, TxTypePurchase, &eventID, "purchase")
	if err != nil {
		t.Fatalf("AddCredits replay failed: %v", err)
	}
	if second != nil {
		t.Error("Expected nil transaction on replay")
	}

	credits, err := db.GetCredits(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 25 {
		t.Errorf("Expected balance 25 after replayed webhook, got %d", credits)
	}
}

func TestIntegration_AddCreditsConcurrentSameReference(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	user := createTestUser(t, db, 0)
	eventID := "evt-" + uuid.NewString()

	// Simultaneous deliveries of the same payment event. All must pass
	// the existence check before any ledger row lands; the unique index
	// on reference_id decides the winner.
	const deliveries = 8
	var wg sync.WaitGroup
	var applied atomic.Int32
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := db.AddCredits(ctx, user.ID, 25, TxTypePurchase, &eventID, "purchase")
			if err != nil {
				t.Errorf("AddCredits failed: %v", err)
				return
			}
			if entry != nil {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := applied.Load(); got != 1 {
		t.Errorf("Expected exactly one applied delivery, got %d", got)
	}
	credits, err := db.GetCredits(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 25 {
		t.Errorf("Expected balance 25 after concurrent deliveries, got %d", credits)
	}
	entries, err := db.ListTransactions(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected a single ledger entry, got %d", len(entries))
	}
}

func TestIntegration_GetOrCreateUser(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	email := "test-" + uuid.NewString() + "@test.example.com"
	t.Cleanup(func() {
		_, _ = db.pool.Exec(context.Background(), `DELETE FROM users WHERE email = $1`, email)
	})

	user, err := db.GetOrCreateUser(ctx, email, "First")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	again, err := db.GetOrCreateUser(ctx, email, "Second")
	if err != nil {
		t.Fatalf("GetOrCreateUser (second call) failed: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("Expected same user ID, got %s vs %s", user.ID, again.ID)
	}
}
