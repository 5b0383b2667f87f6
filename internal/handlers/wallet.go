package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/acp/internal/settlement"
)

// WalletBalance returns the settlement-layer balance of a wallet, or a
// zero placeholder with available=false when settlement is unreachable.
func (h *Handler) WalletBalance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	balance, err := h.settlement.Balance(r.Context(), address)
	if errors.Is(err, settlement.ErrInvalidAddress) {
		h.Error(w, http.StatusBadRequest, "wallet address must be 0x followed by 40 hex characters")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("wallet", address).Msg("balance lookup failed")
		h.Error(w, http.StatusInternalServerError, "balance lookup failed")
		return
	}

	h.JSON(w, http.StatusOK, balance)
}
