package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"wallet/internal/middleware"
	"wallet/internal/services"
)

const idempotencyHeader = "Idempotency-Key"

type transferRequest struct {
	DestinationID  string          `json:"destinationId"`
	Amount         json.RawMessage `json:"amount"`
	Description    string          `json:"description"`
	Notes          string          `json:"notes"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// Transfer moves funds from the caller to destinationId (a user id). The
// Idempotency-Key header wins over the idempotencyKey body field.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	destination := strings.TrimSpace(req.DestinationID)
	if destination == "" {
		respondError(w, http.StatusBadRequest, "destination_required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	result, err := h.transfers.Transfer(r.Context(), services.TransferRequest{
		CallerUserID:      userID,
		DestinationUserID: destination,
		Amount:            amount,
		Description:       strings.TrimSpace(req.Description),
		Notes:             strings.TrimSpace(req.Notes),
		IdempotencyKey:    key,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, newTransferPayload(result))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.statements.ListTransactions(r.Context(), services.ListRequest{
		CallerUserID: userID,
		Page:         page,
		PageSize:     pageSize,
		Type:         strings.TrimSpace(r.URL.Query().Get("type")),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transactionListPayload{
		Transactions: newViewPayloads(result.Transactions),
		Pagination:   result.Pagination,
	})
}

// Statement reports completed activity between the start and end dates,
// both inclusive, in YYYY-MM-DD form.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	statement, err := h.statements.GetStatement(r.Context(), userID, query.Get("start"), query.Get("end"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newStatementPayload(statement))
}
