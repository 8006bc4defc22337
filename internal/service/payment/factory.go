package payment

import (
	"fmt"
	"log/slog"

	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/model"
)

// NewProvider creates a payment provider based on configuration
func NewProvider(cfg *config.Config, crediter Crediter) (Provider, error) {
	provider := cfg.PaymentProvider

	slog.Info("initializing payment provider", "provider", provider)

	switch provider {
	case model.ProviderPolar:
		if cfg.PolarAPIKey == "" {
			return nil, fmt.Errorf("POLAR_API_KEY is required when using Polar provider")
		}
		if cfg.PolarWebhookSecret == "" {
			return nil, fmt.Errorf("POLAR_WEBHOOK_SECRET is required when using Polar provider")
		}
		if len(cfg.PolarCoinPacks) == 0 {
			return nil, fmt.Errorf("POLAR_COIN_PACKS is required when using Polar provider")
		}
		return NewPolarProvider(cfg, crediter), nil

	case model.ProviderStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when using Stripe provider")
		}
		if cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when using Stripe provider")
		}
		return NewStripeProvider(cfg, crediter), nil

	default:
		return nil, fmt.Errorf("unknown payment provider: %s (supported: polar, stripe)", provider)
	}
}
