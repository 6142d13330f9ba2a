package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"wallet/internal/services"
)

const retryAfterSeconds = "1"

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{"error": code})
}

// respondServiceError maps a service error onto its HTTP status and stable
// error code. Server-side failures are logged; client mistakes are not.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusConflict && code != "idempotency_key_reused" {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	respondError(w, status, code)
}

func errorStatus(err error) (int, string) {
	var failed *services.TransferFailedError
	switch {
	case errors.As(err, &failed):
		if failed.Reason == services.ReasonTimeout {
			return http.StatusGatewayTimeout, "transfer_failed_timeout"
		}
		return http.StatusConflict, "transfer_failed_contention"
	case errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, services.ErrSelfTransferNotAllowed):
		return http.StatusBadRequest, "self_transfer_not_allowed"
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_funds"
	case errors.Is(err, services.ErrInvalidDateRange):
		return http.StatusBadRequest, "invalid_date_range"
	case errors.Is(err, services.ErrInvalidTransactionType):
		return http.StatusBadRequest, "invalid_transaction_type"
	case errors.Is(err, services.ErrInvalidPagination):
		return http.StatusBadRequest, "invalid_pagination"
	case errors.Is(err, services.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, services.ErrAccountDisabled):
		return http.StatusForbidden, "account_disabled"
	case errors.Is(err, services.ErrIdempotencyKeyReused):
		return http.StatusConflict, "idempotency_key_reused"
	case errors.Is(err, services.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
