package service

import (
	"errors"
	"log/slog"

	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
)

var ErrAlreadyCredited = errors.New("payment already credited")

// LedgerService is the only writer of user balances.
type LedgerService struct {
	repo repository.LedgerRepository
}

func NewLedgerService(repo repository.LedgerRepository) *LedgerService {
	return &LedgerService{repo: repo}
}

func (s *LedgerService) Balance(userID string) (int64, error) {
	return s.repo.Balance(userID)
}

func (s *LedgerService) Entries(userID string, limit int) ([]*model.LedgerEntry, error) {
	return s.repo.Entries(userID, limit)
}

// Reserve debits cost up front. A zero cost reserves nothing.
func (s *LedgerService) Reserve(userID string, cost int64, kind, reference string) error {
	if cost <= 0 {
		return nil
	}

	balance, err := s.repo.Debit(userID, cost, kind, reference)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		return newError(KindInsufficientFunds, err)
	}
	if err != nil {
		return internal("failed to reserve %d for %s: %w", cost, userID, err)
	}

	slog.Info("balance reserved", "user_id", userID, "amount", cost, "kind", kind, "reference", reference, "balance", balance)
	return nil
}

// Refund returns exactly amount to the user.
func (s *LedgerService) Refund(userID string, amount int64, reference string) error {
	if amount <= 0 {
		return nil
	}

	balance, err := s.repo.Credit(userID, amount, model.LedgerKindRefund, reference)
	if err != nil {
		return internal("failed to refund %d to %s: %w", amount, userID, err)
	}

	slog.Info("balance refunded", "user_id", userID, "amount", amount, "reference", reference, "balance", balance)
	return nil
}

// Credit adds purchased or granted coins and returns the new balance. Top-ups
// are keyed by reference and return ErrAlreadyCredited when replayed.
func (s *LedgerService) Credit(userID string, amount int64, kind, reference string) (int64, error) {
	if amount <= 0 {
		return 0, invalid("error.invalid_amount", repository.ErrInvalidAmount)
	}

	balance, err := s.repo.Credit(userID, amount, kind, reference)
	if errors.Is(err, repository.ErrDuplicateEntry) {
		return 0, ErrAlreadyCredited
	}
	if err != nil {
		return 0, internal("failed to credit %d to %s: %w", amount, userID, err)
	}

	slog.Info("balance credited", "user_id", userID, "amount", amount, "kind", kind, "reference", reference, "balance", balance)
	return balance, nil
}
