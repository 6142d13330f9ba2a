package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"wallet/internal/models"
	"wallet/internal/store"
)

// memDB is an in-memory stand-in for PostgreSQL under read committed with
// versioned rows. Writes are applied in place and undone on rollback; a row
// written by an open transaction rejects other writers the way a row lock
// followed by a failed version check would.
type memDB struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	byUser   map[string]string
	users    map[string]models.Counterparty
	entries  map[string]models.Transaction
	refs     map[string]string
	audits   int
	owners   map[string]*sqlx.Tx
	undo     map[*sqlx.Tx][]func()
	clock    time.Time
}

func newMemDB() *memDB {
	return &memDB{
		accounts: map[string]models.Account{},
		byUser:   map[string]string{},
		users:    map[string]models.Counterparty{},
		entries:  map[string]models.Transaction{},
		refs:     map[string]string{},
		owners:   map[string]*sqlx.Tx{},
		undo:     map[*sqlx.Tx][]func(){},
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memDB) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &sqlx.Tx{}
	if err := fn(tx); err != nil {
		m.finish(tx, true)
		return err
	}
	m.finish(tx, false)
	return nil
}

func (m *memDB) finish(tx *sqlx.Tx, rollback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rollback {
		ops := m.undo[tx]
		for i := len(ops) - 1; i >= 0; i-- {
			ops[i]()
		}
	}
	delete(m.undo, tx)
	for id, owner := range m.owners {
		if owner == tx {
			delete(m.owners, id)
		}
	}
}

func (m *memDB) record(q store.Getter, op func()) {
	if tx, ok := q.(*sqlx.Tx); ok && tx != nil {
		m.undo[tx] = append(m.undo[tx], op)
	}
}

// setClock moves the time stamped on subsequent entries and accounts.
func (m *memDB) setClock(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = t
}

func (m *memDB) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memDB) addUser(userID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = models.Counterparty{UserID: userID, Name: name, Email: name + "@example.com"}
}

func (m *memDB) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[m.byUser[userID]].Balance
}

func (m *memDB) totalBalance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, account := range m.accounts {
		total += account.Balance
	}
	return total
}

func (m *memDB) entriesWhere(match func(models.Transaction) bool) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, entry := range m.entries {
		if match(entry) {
			out = append(out, entry)
		}
	}
	return out
}

type memAccounts struct{ *memDB }

func (m memAccounts) GetByID(_ context.Context, accountID string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (m memAccounts) GetByUser(ctx context.Context, userID string) (models.Account, error) {
	m.mu.Lock()
	id, ok := m.byUser[userID]
	m.mu.Unlock()
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m memAccounts) Get(ctx context.Context, _ store.Getter, accountID string) (models.Account, error) {
	return m.GetByID(ctx, accountID)
}

func (m memAccounts) Create(_ context.Context, tx store.Getter, userID, currency string, balance int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUser[userID]; exists {
		return models.Account{}, store.ErrDuplicateAccount
	}
	now := m.tick()
	account := models.Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		Balance:   balance,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.accounts[account.ID] = account
	m.byUser[userID] = account.ID
	m.record(tx, func() {
		delete(m.accounts, account.ID)
		delete(m.byUser, userID)
	})
	return account, nil
}

func (m memAccounts) ApplyDelta(_ context.Context, tx store.Getter, accountID string, delta, expectedVersion int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	self, _ := tx.(*sqlx.Tx)
	if owner, locked := m.owners[accountID]; locked && owner != self {
		return models.Account{}, store.ErrVersionConflict
	}
	if account.Version != expectedVersion {
		return models.Account{}, store.ErrVersionConflict
	}
	if account.Balance+delta < 0 {
		return models.Account{}, store.ErrInsufficientFunds
	}
	previous := account.Balance
	account.Balance += delta
	account.Version++
	account.UpdatedAt = m.tick()
	m.accounts[accountID] = account
	if self != nil {
		m.owners[accountID] = self
	}
	m.record(tx, func() {
		restored := m.accounts[accountID]
		restored.Balance = previous
		restored.Version++
		m.accounts[accountID] = restored
	})
	return account, nil
}

type memLedger struct{ *memDB }

func (m memLedger) Append(_ context.Context, tx store.Getter, input store.AppendInput) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.refs[input.Reference]; exists {
		return models.Transaction{}, store.ErrDuplicateReference
	}
	entry := transactionFromInput(input)
	entry.CreatedAt = m.tick()
	m.entries[entry.ID] = entry
	m.refs[entry.Reference] = entry.ID
	m.record(tx, func() {
		delete(m.entries, entry.ID)
		delete(m.refs, entry.Reference)
	})
	return entry, nil
}

func (m memLedger) FindByReference(_ context.Context, reference string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.refs[reference]
	if !ok {
		return models.Transaction{}, store.ErrNotFound
	}
	return m.entries[id], nil
}

func (m memLedger) Query(_ context.Context, filter store.Filter, page store.Page) ([]store.LedgerRow, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Transaction
	for _, entry := range m.entries {
		if !sameAccount(entry.SenderAccountID, filter.AccountID) && !sameAccount(entry.RecipientAccountID, filter.AccountID) {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.Start != nil && entry.CreatedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && entry.CreatedAt.After(*filter.End) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	if page.Limit > 0 {
		start := min(page.Offset, total)
		end := min(start+page.Limit, total)
		matched = matched[start:end]
	}
	rows := make([]store.LedgerRow, 0, len(matched))
	for _, entry := range matched {
		row := store.LedgerRow{Transaction: entry}
		other := entry.SenderAccountID
		if sameAccount(entry.SenderAccountID, filter.AccountID) {
			other = entry.RecipientAccountID
		}
		if other != nil {
			if account, ok := m.accounts[*other]; ok {
				user := m.users[account.UserID]
				row.CounterpartyAccountID = &account.ID
				row.CounterpartyUserID = &account.UserID
				row.CounterpartyName = &user.Name
				row.CounterpartyEmail = &user.Email
			}
		}
		rows = append(rows, row)
	}
	return rows, total, nil
}

func (m memLedger) SumsByAccount(_ context.Context, accountID string) (store.LedgerSums, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sums store.LedgerSums
	for _, entry := range m.entries {
		if entry.Status != models.StatusCompleted {
			continue
		}
		if sameAccount(entry.RecipientAccountID, accountID) {
			sums.Incoming += entry.Amount
		}
		if sameAccount(entry.SenderAccountID, accountID) {
			sums.Outgoing += entry.Amount
		}
	}
	return sums, nil
}

type memAudit struct{ *memDB }

func (m memAudit) Log(_ context.Context, tx store.Execer, _ store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits++
	if getter, ok := tx.(store.Getter); ok {
		m.record(getter, func() { m.audits-- })
	}
	return nil
}

type memWallet struct {
	db        *memDB
	transfers *TransferService
	statement *StatementService
	hub       *stubHub
}

func newMemWallet(maxAttempts int) *memWallet {
	mem := newMemDB()
	hub := &stubHub{}
	transfers := NewTransferService(mem, memAccounts{mem}, memLedger{mem}, memAudit{mem}, hub, TransferConfig{
		Currency:        "USD",
		StartingBalance: 100000,
		MaxAttempts:     maxAttempts,
		StorageTimeout:  time.Second,
	}, nil)
	transfers.now = func() time.Time {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		return mem.clock
	}
	return &memWallet{
		db:        mem,
		transfers: transfers,
		statement: NewStatementService(memAccounts{mem}, memLedger{mem}, time.Second, nil),
		hub:       hub,
	}
}

// open registers users and opens their funded accounts.
func (w *memWallet) open(userIDs ...string) {
	for _, userID := range userIDs {
		w.db.addUser(userID, userID)
		if _, _, err := w.transfers.OpenAccount(context.Background(), userID); err != nil {
			panic(fmt.Sprintf("open %s: %v", userID, err))
		}
	}
}
