package handlers

import (
	"net/http"

	"wallet/internal/middleware"
	"wallet/internal/money"
)

// OpenAccount creates the caller's funded account. Calling it again returns
// the existing account with 200 instead of 201.
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, created, err := h.transfers.OpenAccount(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, accountPayload{
		AccountID: account.ID,
		UserID:    account.UserID,
		Balance:   money.Number(account.Balance),
		Currency:  account.Currency,
		CreatedAt: account.CreatedAt,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balance, err := h.statements.GetBalance(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balancePayload{
		AccountID: balance.AccountID,
		Balance:   money.Number(balance.Balance),
		Currency:  balance.Currency,
		AsOf:      balance.AsOf,
	})
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	check, err := h.statements.Reconcile(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reconciliationPayload{
		AccountID:         check.AccountID,
		Currency:          check.Currency,
		StoredBalance:     money.Number(check.StoredBalance),
		CalculatedBalance: money.Number(check.CalculatedBalance),
		Difference:        money.Number(check.Difference),
		Consistent:        check.Difference == 0,
	})
}
