package store

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrDuplicateReference = errors.New("duplicate reference")
	ErrDuplicateAccount   = errors.New("account already exists")
)
