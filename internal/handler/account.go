package handler

import (
	"net/http"
	"time"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/service"
)

const balanceEntriesLimit = 50

type AccountHandler struct {
	ledgerService *service.LedgerService
}

func NewAccountHandler(ledgerService *service.LedgerService) *AccountHandler {
	return &AccountHandler{
		ledgerService: ledgerService,
	}
}

type ledgerEntryResponse struct {
	Amount       int64     `json:"amount"`
	Kind         string    `json:"kind"`
	Reference    string    `json:"reference,omitempty"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())

	balance, err := h.ledgerService.Balance(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.ledgerService.Entries(userID, balanceEntriesLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, ledgerEntryResponse{
			Amount:       e.Amount,
			Kind:         e.Kind,
			Reference:    e.Reference,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance": balance,
		"entries": items,
	})
}
