package payment

import (
	"errors"
	"net/http"

	"github.com/promptlab/promptlab/internal/service"
)

// ErrInvalidSignature is returned by HandleWebhook when the payload cannot be
// attributed to the provider. Everything else is acknowledged.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Provider defines the interface that all payment providers must implement
type Provider interface {
	// CreateTopUpURL starts a hosted checkout for coins and returns its URL.
	// The user id travels in the checkout metadata.
	CreateTopUpURL(userID string, coins int64, customerEmail string) (string, error)

	// HandleWebhook verifies and processes webhook events from the payment provider
	HandleWebhook(payload []byte, headers http.Header) error

	// Name returns the provider name (e.g., "polar", "stripe")
	Name() string
}

// Crediter receives verified top-ups.
type Crediter interface {
	CreditTopUp(t service.TopUp) error
}
