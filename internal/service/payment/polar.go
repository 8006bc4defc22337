package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	polargo "github.com/polarsource/polar-go"
	"github.com/polarsource/polar-go/models/components"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/service"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// PolarProvider sells fixed coin packs, one Polar product per pack.
type PolarProvider struct {
	cfg      *config.Config
	crediter Crediter
	client   *polargo.Polar
}

func NewPolarProvider(cfg *config.Config, crediter Crediter) *PolarProvider {
	var serverOption polargo.SDKOption
	if cfg.PolarSandboxMode {
		serverOption = polargo.WithServer(polargo.ServerSandbox)
		slog.Info("polar using sandbox mode", "app_env", cfg.AppEnv)
	} else {
		serverOption = polargo.WithServer(polargo.ServerProduction)
		slog.Info("polar using production mode", "app_env", cfg.AppEnv)
	}

	client := polargo.New(
		polargo.WithSecurity(cfg.PolarAPIKey),
		serverOption,
	)

	return &PolarProvider{
		cfg:      cfg,
		crediter: crediter,
		client:   client,
	}
}

func (p *PolarProvider) Name() string {
	return model.ProviderPolar
}

func (p *PolarProvider) CreateTopUpURL(userID string, coins int64, customerEmail string) (string, error) {
	ctx := context.Background()

	productID, ok := p.cfg.PolarCoinPacks[coins]
	if !ok {
		return "", service.ErrUnknownCoinPack
	}

	successURL := fmt.Sprintf("%s/billing?checkout_id={CHECKOUT_ID}", p.cfg.AppURL)
	returnURL := fmt.Sprintf("%s/billing", p.cfg.AppURL)

	metadata := map[string]components.CheckoutCreateMetadata{
		"user_id": components.CreateCheckoutCreateMetadataStr(userID),
		"coins":   components.CreateCheckoutCreateMetadataStr(strconv.FormatInt(coins, 10)),
	}

	checkout := components.CheckoutCreate{
		Products:           []string{productID},
		SuccessURL:         polargo.String(successURL),
		ReturnURL:          polargo.String(returnURL),
		AllowDiscountCodes: polargo.Bool(true),
		Metadata:           metadata,
	}
	if customerEmail != "" {
		checkout.CustomerEmail = polargo.String(customerEmail)
	}

	res, err := p.client.Checkouts.Create(ctx, checkout)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout: %w", err)
	}

	if res == nil || res.Checkout == nil {
		return "", fmt.Errorf("checkout response is nil")
	}

	slog.Info("polar checkout created", "user_id", userID, "coins", coins, "checkout_id", res.Checkout.ID)
	return res.Checkout.URL, nil
}

func (p *PolarProvider) HandleWebhook(payload []byte, headers http.Header) error {
	wh, err := standardwebhooks.NewWebhookRaw([]byte(p.cfg.PolarWebhookSecret))
	if err != nil {
		return fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	httpHeaders := http.Header{}
	httpHeaders.Set("webhook-id", headers.Get("webhook-id"))
	httpHeaders.Set("webhook-timestamp", headers.Get("webhook-timestamp"))
	httpHeaders.Set("webhook-signature", headers.Get("webhook-signature"))

	err = wh.Verify(payload, httpHeaders)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	err = json.Unmarshal(payload, &event)
	if err != nil {
		return fmt.Errorf("failed to parse webhook: %w", err)
	}

	slog.Info("polar webhook received", "event_type", event.Type, "webhook_id", headers.Get("webhook-id"))

	switch event.Type {
	case "order.paid":
		return p.handleOrderPaid(event.Data)
	case "order.refunded":
		// Refunded coins are reconciled manually with `ops credit`.
		slog.Warn("polar order refunded", "webhook_id", headers.Get("webhook-id"))
		return nil
	default:
		slog.Warn("polar webhook unknown event type", "event_type", event.Type)
		return nil
	}
}

func (p *PolarProvider) handleOrderPaid(data json.RawMessage) error {
	var order struct {
		ID        string         `json:"id"`
		Paid      *bool          `json:"paid"`
		ProductID string         `json:"product_id"`
		Metadata  map[string]any `json:"metadata"`
	}

	err := json.Unmarshal(data, &order)
	if err != nil {
		return fmt.Errorf("failed to parse order data: %w", err)
	}

	if order.Paid != nil && !*order.Paid {
		slog.Info("polar order not paid, skipping", "order_id", order.ID)
		return nil
	}

	userID := metadataString(order.Metadata["user_id"])
	if userID == "" {
		slog.Warn("polar webhook no user_id in order metadata, skipping", "order_id", order.ID)
		return nil
	}

	coins := p.packCoins(order.ProductID)
	if coins == 0 {
		coins, err = strconv.ParseInt(metadataString(order.Metadata["coins"]), 10, 64)
		if err != nil {
			return fmt.Errorf("order %s has no known coin pack: %w", order.ID, err)
		}
	}

	return p.crediter.CreditTopUp(service.TopUp{
		Provider: model.ProviderPolar,
		EventID:  order.ID,
		UserID:   userID,
		Coins:    coins,
	})
}

func (p *PolarProvider) packCoins(productID string) int64 {
	for coins, id := range p.cfg.PolarCoinPacks {
		if id == productID {
			return coins
		}
	}
	return 0
}

// metadataString reads a Polar metadata value, which may be a string, number
// or boolean.
func metadataString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
