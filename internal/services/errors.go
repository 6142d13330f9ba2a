package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to own account")
	ErrAccountNotFound        = errors.New("account not found")
	ErrCallerAccountMissing   = errors.New("caller has no account")
	ErrAccountDisabled        = errors.New("account disabled")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrIdempotencyKeyReused   = errors.New("idempotency key already used for a different transfer")
	ErrInvalidDateRange       = errors.New("invalid date range")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidPagination      = errors.New("invalid pagination")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrTransferFailed         = errors.New("transfer failed")
)

type FailureReason string

const (
	ReasonContention FailureReason = "contention"
	ReasonTimeout    FailureReason = "timeout"
)

// TransferFailedError reports a transfer abandoned after its retry budget
// ran out. It matches ErrTransferFailed.
type TransferFailedError struct {
	Reason   FailureReason
	Attempts int
	Err      error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("transfer failed after %d attempts (%s): %v", e.Attempts, e.Reason, e.Err)
}

func (e *TransferFailedError) Is(target error) bool {
	return target == ErrTransferFailed
}

func (e *TransferFailedError) Unwrap() error {
	return e.Err
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
