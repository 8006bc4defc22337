package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/promptlab/promptlab/internal/i18n"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
)

const (
	MinTopUpCoins int64 = 10
	MaxTopUpCoins int64 = 10000
)

// ErrUnknownCoinPack is returned when a pack-based provider has no product
// for the requested amount.
var ErrUnknownCoinPack = &Error{
	Kind:       KindInvalidRequest,
	MessageKey: "error.invalid_amount",
	Err:        errors.New("no coin pack for this amount"),
}

// TopUp is a verified payment success reported by a payment provider.
type TopUp struct {
	Provider string
	// EventID identifies the payment at the provider. Together with Provider
	// it is the idempotency key for crediting.
	EventID string
	UserID  string
	Coins   int64
}

func (t TopUp) Reference() string {
	return t.Provider + ":" + t.EventID
}

type BillingService struct {
	ledger       *LedgerService
	users        repository.UserRepository
	emailService *EmailService
}

func NewBillingService(ledger *LedgerService, users repository.UserRepository, emailService *EmailService) *BillingService {
	return &BillingService{
		ledger:       ledger,
		users:        users,
		emailService: emailService,
	}
}

// ValidateTopUpAmount checks a requested number of coins before checkout.
func ValidateTopUpAmount(coins int64) error {
	if coins < MinTopUpCoins || coins > MaxTopUpCoins {
		return invalid("error.invalid_amount", fmt.Errorf("coins must be between %d and %d", MinTopUpCoins, MaxTopUpCoins))
	}
	return nil
}

// CreditTopUp credits a paid top-up exactly once. Replayed events return nil.
func (s *BillingService) CreditTopUp(t TopUp) error {
	if t.UserID == "" || t.EventID == "" {
		return invalid("error.invalid_request", errors.New("top-up without user or event id"))
	}
	if t.Coins <= 0 {
		return invalid("error.invalid_amount", repository.ErrInvalidAmount)
	}

	balance, err := s.ledger.Credit(t.UserID, t.Coins, model.LedgerKindTopUp, t.Reference())
	if errors.Is(err, ErrAlreadyCredited) {
		slog.Info("top-up already credited", "user_id", t.UserID, "reference", t.Reference())
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("top-up credited", "user_id", t.UserID, "coins", t.Coins, "reference", t.Reference(), "balance", balance)
	s.sendReceipt(t, balance)
	return nil
}

func (s *BillingService) sendReceipt(t TopUp, balance int64) {
	if s.emailService == nil {
		return
	}

	user, err := s.users.ByID(t.UserID)
	if err != nil {
		slog.Warn("top-up receipt skipped", "error", err, "user_id", t.UserID)
		return
	}
	if user.EmailAddress() == "" {
		return
	}

	err = s.emailService.SendTopUpReceipt(user.EmailAddress(), i18n.Match(user.Locale), t.Coins, balance)
	if err != nil {
		slog.Error("failed to send top-up receipt", "error", err, "user_id", t.UserID)
	}
}
