package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"wallet/internal/db"
	"wallet/internal/models"
)

const accountColumns = `id, user_id, currency, balance, version, created_at, updated_at, disabled_at`

type balanceState struct {
	Balance    int64      `db:"balance"`
	Version    int64      `db:"version"`
	DisabledAt *time.Time `db:"disabled_at"`
}

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts a new account for userID. A second account for the same
// user fails with ErrDuplicateAccount.
func (s *AccountStore) Create(ctx context.Context, tx Getter, userID, currency string, balance int64) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		INSERT INTO accounts (id, user_id, currency, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		uuid.NewString(), userID, currency, balance)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.Account{}, ErrDuplicateAccount
		}
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	return s.Get(ctx, s.db, accountID)
}

// Get reads an account through q, which may be the pool or an open transaction.
func (s *AccountStore) Get(ctx context.Context, q Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := q.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

// ApplyDelta adds delta to the balance only if the row still carries
// expectedVersion and the result stays non-negative. When nothing matches,
// the row is re-read to tell the caller which precondition failed.
func (s *AccountStore) ApplyDelta(ctx context.Context, tx Getter, accountID string, delta, expectedVersion int64) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		UPDATE accounts
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND balance + $1 >= 0 AND disabled_at IS NULL
		RETURNING `+accountColumns,
		delta, accountID, expectedVersion)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, err
	}

	var current balanceState
	err = tx.GetContext(ctx, &current, `SELECT balance, version, disabled_at FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	switch {
	case current.Version != expectedVersion:
		return models.Account{}, ErrVersionConflict
	case current.DisabledAt != nil:
		return models.Account{}, ErrAccountDisabled
	case current.Balance+delta < 0:
		return models.Account{}, ErrInsufficientFunds
	default:
		return models.Account{}, ErrVersionConflict
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
