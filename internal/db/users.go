package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, name, email, credits, password_hash, password_set, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Credits, &u.PasswordHash,
		&u.PasswordSet, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetUser retrieves a user by ID. Returns nil when no row matches.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail retrieves a user by email. Returns nil when no row matches.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetOrCreateUser looks up a user by email, inserting one if absent.
// Idempotent: concurrent calls with the same email resolve to one row
// via the unique constraint.
func (db *DB) GetOrCreateUser(ctx context.Context, email, name string) (*User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (email, name)
		 VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		 RETURNING `+userColumns,
		email, name))
}

// CreateUser inserts a new user and returns its ID.
func (db *DB) CreateUser(ctx context.Context, name, email string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id`,
		name, email,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// CheckEmailExists reports whether a user with the given email exists.
func (db *DB) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UpdatePassword sets a user's password hash and marks the password as set.
func (db *DB) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, password_set = TRUE, updated_at = NOW()
		 WHERE id = $2`,
		passwordHash, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user", ID: userID}
	}
	return nil
}

// DeleteUser removes a user and, via cascade, their ledger, runs,
// workflows, and comments.
func (db *DB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user", ID: id}
	}
	return nil
}

// GetCredits returns a user's current balance.
func (db *DB) GetCredits(ctx context.Context, userID uuid.UUID) (int, error) {
	var credits int
	err := db.pool.QueryRow(ctx,
		`SELECT credits FROM users WHERE id = $1`, userID,
	).Scan(&credits)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, &ErrNotFound{Entity: "user", ID: userID}
		}
		return 0, fmt.Errorf("failed to get credits: %w", err)
	}
	return credits, nil
}

// AddCredits grants credits to a user and appends the matching ledger row
// in one transaction. Used by the billing webhook and manual adjustments.
// A non-nil referenceID (e.g. a payment event id) makes the grant
// idempotent: a second call with the same reference is a no-op. The
// partial unique index on transactions.reference_id backs this up when
// two deliveries race past the existence check; the loser's insert fails
// and the whole transaction rolls back without granting twice.
func (db *DB) AddCredits(ctx context.Context, userID uuid.UUID, amount int, txType string, referenceID *string, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if referenceID != nil {
		var exists bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE reference_id = $1)`,
			*referenceID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check reference: %w", err)
		}
		if exists {
			return nil, nil // already applied
		}
	}

	result, err := tx.Exec(ctx,
		`UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2`,
		amount, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add credits: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, &ErrNotFound{Entity: "user", ID: userID}
	}

	entry, err := insertTransaction(ctx, tx, userID, txType, amount, referenceID, description)
	if err != nil {
		if referenceID != nil && isUniqueViolation(err) {
			return nil, nil // a concurrent delivery of the same reference won
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// DeductCredits removes credits from a user and appends the matching
// ledger row in one transaction. The debit is a single conditional
// update, so two concurrent deductions can never drive the balance
// negative: the slower one simply fails with ErrInsufficientCredits.
func (db *DB) DeductCredits(ctx context.Context, userID uuid.UUID, amount int, txType string, referenceID *string, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	entry, err := deductCreditsTx(ctx, tx, userID, amount, txType, referenceID, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// deductCreditsTx performs the conditional debit plus ledger append inside
// an existing transaction. Shared with CreateRun so the run insert joins
// the same atomic unit.
func deductCreditsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, txType string, referenceID *string, description string) (*Transaction, error) {
	result, err := tx.Exec(ctx,
		`UPDATE users SET credits = credits - $1, updated_at = NOW()
		 WHERE id = $2 AND credits >= $1`,
		amount, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to deduct credits: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing user from a short balance.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check user: %w", err)
		}
		if !exists {
			return nil, &ErrNotFound{Entity: "user", ID: userID}
		}
		return nil, &ErrInsufficientCredits{UserID: userID, Requested: amount}
	}

	return insertTransaction(ctx, tx, userID, txType, -amount, referenceID, description)
}

func insertTransaction(ctx context.Context, tx pgx.Tx, userID uuid.UUID, txType string, amount int, referenceID *string, description string) (*Transaction, error) {
	var entry Transaction
	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, amount, reference_id, description)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, type, amount, reference_id, description, created_at`,
		userID, txType, amount, referenceID, description,
	).Scan(&entry.ID, &entry.UserID, &entry.Type, &entry.Amount,
		&entry.ReferenceID, &entry.Description, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return &entry, nil
}

// ListInactiveUsers returns users with no runs since the given time,
// oldest accounts first. The churn check job scans these.
func (db *DB) ListInactiveUsers(ctx context.Context, since time.Time, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE NOT EXISTS (
		     SELECT 1 FROM runs r
		     WHERE r.user_id = u.id AND r.started_at >= $1
		 )
		 ORDER BY u.created_at ASC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// ListTransactions returns a user's most recent ledger entries.
func (db *DB) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, type, amount, reference_id, description, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var entries []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount,
			&t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, nil
}
