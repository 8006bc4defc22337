package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/promptlab/promptlab/internal/service/payment"
)

const maxWebhookBody = 1 << 20

type BillingHandler struct {
	paymentService payment.Provider
}

func NewBillingHandler(paymentService payment.Provider) *BillingHandler {
	return &BillingHandler{
		paymentService: paymentService,
	}
}

// TopUp starts a hosted checkout for {coins} and returns its URL.
func (h *BillingHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var body struct {
		Coins int64 `json:"coins"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Polar sells fixed packs and rejects unknown amounts itself.
	if h.paymentService.Name() == model.ProviderStripe {
		err = service.ValidateTopUpAmount(body.Coins)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	checkoutURL, err := h.paymentService.CreateTopUpURL(user.ID, body.Coins, user.EmailAddress())
	if err != nil {
		var se *service.Error
		if !errors.As(err, &se) {
			slog.Error("failed to create checkout", "error", err, "user_id", user.ID, "coins", body.Coins, "provider", h.paymentService.Name())
		}
		writeError(w, r, err)
		return
	}

	slog.Info("checkout created", "user_id", user.ID, "coins", body.Coins, "provider", h.paymentService.Name())
	writeJSON(w, http.StatusOK, map[string]string{"url": checkoutURL})
}

// Webhook acknowledges every authentic delivery so the provider stops
// retrying; only a bad signature is rejected.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("failed to read webhook payload", "error", err)
		http.Error(w, "Failed to read payload", http.StatusBadRequest)
		return
	}
	defer func() {
		closeErr := r.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close request body", "error", closeErr)
		}
	}()

	err = h.paymentService.HandleWebhook(payload, r.Header)
	if errors.Is(err, payment.ErrInvalidSignature) {
		slog.Warn("webhook signature rejected", "error", err, "provider", h.paymentService.Name())
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("failed to handle webhook", "error", err, "provider", h.paymentService.Name())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}
