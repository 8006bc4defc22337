package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// LedgerRepository owns the balances table. Every movement is applied together
// with its ledger entry in one transaction.
type LedgerRepository interface {
	Balance(userID string) (int64, error)
	Debit(userID string, amount int64, kind, reference string) (int64, error)
	Credit(userID string, amount int64, kind, reference string) (int64, error)
	Entries(userID string, limit int) ([]*model.LedgerEntry, error)
}

type ledgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Balance(userID string) (int64, error) {
	var balance int64
	query := `SELECT balance FROM balances WHERE user_id = $1`

	err := r.db.Get(&balance, query, userID)
	if err == sql.ErrNoRows {
		return 0, nil
	}

	return balance, err
}

// Debit subtracts amount only if the balance covers it. The conditional
// update is the only guard, so concurrent debits can never overdraw.
func (r *ledgerRepository) Debit(userID string, amount int64, kind, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var balance int64
	query := `UPDATE balances SET balance = balance - $1, updated_at = $2
	          WHERE user_id = $3 AND balance >= $4
	          RETURNING balance`

	err = tx.Get(&balance, query, amount, now, userID, amount)
	if err == sql.ErrNoRows {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}

	err = insertEntry(tx, userID, -amount, kind, reference, balance, now)
	if err != nil {
		return 0, err
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit debit: %w", err)
	}

	return balance, nil
}

// Credit adds amount, creating the balance row on first use. Top-up entries are
// unique per reference, so a replayed payment event returns ErrDuplicateEntry
// and leaves the balance untouched.
func (r *ledgerRepository) Credit(userID string, amount int64, kind, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var balance int64
	query := `INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, $3)
	          ON CONFLICT (user_id) DO UPDATE SET balance = balances.balance + excluded.balance, updated_at = excluded.updated_at
	          RETURNING balance`

	err = tx.Get(&balance, query, userID, amount, now)
	if err != nil {
		return 0, err
	}

	err = insertEntry(tx, userID, amount, kind, reference, balance, now)
	if err != nil {
		return 0, err
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit credit: %w", err)
	}

	return balance, nil
}

func (r *ledgerRepository) Entries(userID string, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var entries []*model.LedgerEntry
	query := `SELECT * FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	err := r.db.Select(&entries, query, userID, limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func insertEntry(tx *sqlx.Tx, userID string, amount int64, kind, reference string, balanceAfter int64, now time.Time) error {
	query := `INSERT INTO ledger_entries (id, user_id, amount, kind, reference, balance_after, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(query, uuid.New().String(), userID, amount, kind, reference, balanceAfter, now)
	if isUniqueViolation(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}

	return nil
}
