package payment

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

type StripeProvider struct {
	cfg      *config.Config
	crediter Crediter
}

func NewStripeProvider(cfg *config.Config, crediter Crediter) *StripeProvider {
	// Set Stripe API key
	stripe.Key = cfg.StripeSecretKey

	slog.Info("stripe provider initialized", "app_env", cfg.AppEnv)

	return &StripeProvider{
		cfg:      cfg,
		crediter: crediter,
	}
}

func (s *StripeProvider) Name() string {
	return model.ProviderStripe
}

// CreateTopUpURL opens a one-time payment session priced per coin.
func (s *StripeProvider) CreateTopUpURL(userID string, coins int64, customerEmail string) (string, error) {
	successURL := fmt.Sprintf("%s/billing?session_id={CHECKOUT_SESSION_ID}", s.cfg.AppURL)
	cancelURL := fmt.Sprintf("%s/billing", s.cfg.AppURL)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.CoinCurrency),
					UnitAmount: stripe.Int64(s.cfg.CoinPriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s coins", s.cfg.AppName)),
					},
				},
				Quantity: stripe.Int64(coins),
			},
		},
		Metadata: map[string]string{
			"user_id": userID,
			"coins":   strconv.FormatInt(coins, 10),
		},
	}
	if customerEmail != "" {
		params.CustomerEmail = stripe.String(customerEmail)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.Info("stripe checkout created", "user_id", userID, "coins", coins, "session_id", sess.ID)
	return sess.URL, nil
}

func (s *StripeProvider) HandleWebhook(payload []byte, headers http.Header) error {
	signature := headers.Get("Stripe-Signature")

	// Use ConstructEventWithOptions to ignore API version mismatch
	// Stripe's API versions are backwards compatible, so this is safe
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	slog.Info("stripe webhook received", "event_type", event.Type, "event_id", event.ID)

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return s.handleCheckoutPaid(event.Data.Raw)
	case "checkout.session.async_payment_failed":
		slog.Warn("stripe async payment failed", "event_id", event.ID)
		return nil
	default:
		slog.Warn("stripe webhook unknown event type", "event_type", event.Type)
		return nil
	}
}

// handleCheckoutPaid credits the session once it is paid. Delayed methods
// complete unpaid and are credited by async_payment_succeeded; the session id
// keys both so only one of them credits.
func (s *StripeProvider) handleCheckoutPaid(data json.RawMessage) error {
	var checkoutSession struct {
		ID            string            `json:"id"`
		Mode          string            `json:"mode"`
		PaymentStatus string            `json:"payment_status"`
		Metadata      map[string]string `json:"metadata"`
	}

	err := json.Unmarshal(data, &checkoutSession)
	if err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	if checkoutSession.PaymentStatus != "paid" {
		slog.Info("stripe checkout not paid yet, skipping", "session_id", checkoutSession.ID, "payment_status", checkoutSession.PaymentStatus)
		return nil
	}

	userID := checkoutSession.Metadata["user_id"]
	if userID == "" {
		slog.Warn("stripe checkout session has no user_id in metadata, skipping", "session_id", checkoutSession.ID)
		return nil
	}

	coins, err := strconv.ParseInt(checkoutSession.Metadata["coins"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid coins in checkout metadata: %w", err)
	}

	return s.crediter.CreditTopUp(service.TopUp{
		Provider: model.ProviderStripe,
		EventID:  checkoutSession.ID,
		UserID:   userID,
		Coins:    coins,
	})
}
