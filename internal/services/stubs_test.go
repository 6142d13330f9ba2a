package services

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"

	"wallet/internal/models"
	"wallet/internal/store"
	"wallet/internal/websocket"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubAccountStore struct {
	getByIDFn    func(ctx context.Context, accountID string) (models.Account, error)
	getByUserFn  func(ctx context.Context, userID string) (models.Account, error)
	getFn        func(ctx context.Context, q store.Getter, accountID string) (models.Account, error)
	createFn     func(ctx context.Context, tx store.Getter, userID, currency string, balance int64) (models.Account, error)
	applyDeltaFn func(ctx context.Context, tx store.Getter, accountID string, delta, expectedVersion int64) (models.Account, error)
}

func (s stubAccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	if s.getByIDFn == nil {
		return models.Account{}, store.ErrNotFound
	}
	return s.getByIDFn(ctx, accountID)
}

func (s stubAccountStore) GetByUser(ctx context.Context, userID string) (models.Account, error) {
	if s.getByUserFn == nil {
		return models.Account{}, store.ErrNotFound
	}
	return s.getByUserFn(ctx, userID)
}

func (s stubAccountStore) Get(ctx context.Context, q store.Getter, accountID string) (models.Account, error) {
	if s.getFn == nil {
		return models.Account{}, store.ErrNotFound
	}
	return s.getFn(ctx, q, accountID)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Getter, userID, currency string, balance int64) (models.Account, error) {
	return s.createFn(ctx, tx, userID, currency, balance)
}

func (s stubAccountStore) ApplyDelta(ctx context.Context, tx store.Getter, accountID string, delta, expectedVersion int64) (models.Account, error) {
	return s.applyDeltaFn(ctx, tx, accountID, delta, expectedVersion)
}

type stubLedgerStore struct {
	appendFn          func(ctx context.Context, tx store.Getter, input store.AppendInput) (models.Transaction, error)
	findByReferenceFn func(ctx context.Context, reference string) (models.Transaction, error)
	queryFn           func(ctx context.Context, filter store.Filter, page store.Page) ([]store.LedgerRow, int, error)
	sumsFn            func(ctx context.Context, accountID string) (store.LedgerSums, error)
}

func (s stubLedgerStore) Append(ctx context.Context, tx store.Getter, input store.AppendInput) (models.Transaction, error) {
	if s.appendFn == nil {
		return transactionFromInput(input), nil
	}
	return s.appendFn(ctx, tx, input)
}

func (s stubLedgerStore) FindByReference(ctx context.Context, reference string) (models.Transaction, error) {
	if s.findByReferenceFn == nil {
		return models.Transaction{}, store.ErrNotFound
	}
	return s.findByReferenceFn(ctx, reference)
}

func (s stubLedgerStore) Query(ctx context.Context, filter store.Filter, page store.Page) ([]store.LedgerRow, int, error) {
	if s.queryFn == nil {
		return nil, 0, nil
	}
	return s.queryFn(ctx, filter, page)
}

func (s stubLedgerStore) SumsByAccount(ctx context.Context, accountID string) (store.LedgerSums, error) {
	if s.sumsFn == nil {
		return store.LedgerSums{}, nil
	}
	return s.sumsFn(ctx, accountID)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, entry store.AuditEntry) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, entry store.AuditEntry) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, entry)
}

type stubHub struct {
	mu    sync.Mutex
	users []string
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	s.calls = append(s.calls, update)
}

func transactionFromInput(input store.AppendInput) models.Transaction {
	return models.Transaction{
		ID:                    input.ID,
		Reference:             input.Reference,
		SenderAccountID:       input.SenderAccountID,
		RecipientAccountID:    input.RecipientAccountID,
		Type:                  input.Type,
		Amount:                input.Amount,
		Currency:              input.Currency,
		Status:                input.Status,
		SenderBalanceAfter:    input.SenderBalanceAfter,
		RecipientBalanceAfter: input.RecipientBalanceAfter,
		Description:           input.Description,
		Notes:                 input.Notes,
	}
}
