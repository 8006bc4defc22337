package model

import (
	"time"
)

const (
	LedgerKindGeneration = "generation"
	LedgerKindRefund     = "refund"
	LedgerKindTopUp      = "topup"
	LedgerKindUnlock     = "unlock"
	LedgerKindManual     = "manual"
)

type Balance struct {
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LedgerEntry records a single balance movement. Debits are negative.
type LedgerEntry struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Amount       int64     `db:"amount"`
	Kind         string    `db:"kind"`
	Reference    string    `db:"reference"`
	BalanceAfter int64     `db:"balance_after"`
	CreatedAt    time.Time `db:"created_at"`
}
