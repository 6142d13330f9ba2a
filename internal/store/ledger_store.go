package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"wallet/internal/db"
	"wallet/internal/models"
)

const transactionColumns = `id, reference, sender_account_id, recipient_account_id, type, amount, currency, status,
	sender_balance_after, recipient_balance_after, description, notes, created_at`

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type AppendInput struct {
	ID                    string
	Reference             string
	SenderAccountID       *string
	RecipientAccountID    *string
	Type                  models.TransactionType
	Amount                int64
	Currency              string
	Status                models.TransactionStatus
	SenderBalanceAfter    *int64
	RecipientBalanceAfter *int64
	Description           string
	Notes                 string
}

// Append writes one ledger entry. A reused reference fails with
// ErrDuplicateReference and leaves the ledger untouched.
func (s *LedgerStore) Append(ctx context.Context, tx Getter, input AppendInput) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		INSERT INTO transactions (id, reference, sender_account_id, recipient_account_id, type, amount, currency, status,
		                          sender_balance_after, recipient_balance_after, description, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+transactionColumns,
		input.ID, input.Reference, input.SenderAccountID, input.RecipientAccountID, input.Type, input.Amount,
		input.Currency, input.Status, input.SenderBalanceAfter, input.RecipientBalanceAfter,
		input.Description, input.Notes,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.Transaction{}, ErrDuplicateReference
		}
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *LedgerStore) FindByReference(ctx context.Context, reference string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	return row, nil
}

// Filter selects the entries an account took part in. Zero values are ignored.
type Filter struct {
	AccountID string
	Type      models.TransactionType
	Status    models.TransactionStatus
	Start     *time.Time
	End       *time.Time
}

// Page bounds a query. A zero Limit returns every matching row.
type Page struct {
	Limit  int
	Offset int
}

// LedgerRow is an entry joined with the public identity of the other party.
type LedgerRow struct {
	models.Transaction
	CounterpartyAccountID *string `db:"counterparty_account_id"`
	CounterpartyUserID    *string `db:"counterparty_user_id"`
	CounterpartyName      *string `db:"counterparty_name"`
	CounterpartyEmail     *string `db:"counterparty_email"`
}

type pagedRow struct {
	LedgerRow
	TotalCount int `db:"total_count"`
}

// Query returns one page of entries for filter, newest first, together with
// the number of entries matching the filter overall. The count comes from the
// same statement as the page so both see one snapshot.
func (s *LedgerStore) Query(ctx context.Context, filter Filter, page Page) ([]LedgerRow, int, error) {
	where, args := filter.where()

	query := `
		SELECT t.id, t.reference, t.sender_account_id, t.recipient_account_id, t.type, t.amount, t.currency, t.status,
		       t.sender_balance_after, t.recipient_balance_after, t.description, t.notes, t.created_at,
		       cp.id AS counterparty_account_id, cp.user_id AS counterparty_user_id,
		       u.name AS counterparty_name, u.email AS counterparty_email,
		       COUNT(*) OVER () AS total_count
		FROM transactions t
		LEFT JOIN accounts cp ON cp.id = CASE WHEN t.sender_account_id = $1 THEN t.recipient_account_id ELSE t.sender_account_id END
		LEFT JOIN users u ON u.id = cp.user_id
		WHERE ` + where + `
		ORDER BY t.created_at DESC, t.id DESC`
	pageArgs := args
	if page.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1) + " OFFSET " + placeholder(len(args)+2)
		pageArgs = append(append([]any{}, args...), page.Limit, page.Offset)
	}

	paged := []pagedRow{}
	if err := s.db.SelectContext(ctx, &paged, query, pageArgs...); err != nil {
		return nil, 0, err
	}
	rows := make([]LedgerRow, 0, len(paged))
	for _, row := range paged {
		rows = append(rows, row.LedgerRow)
	}
	if len(paged) > 0 {
		return rows, paged[0].TotalCount, nil
	}
	if page.Offset == 0 {
		return rows, 0, nil
	}

	// A page past the end carries no window count.
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions t WHERE `+where, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

type LedgerSums struct {
	Incoming int64 `db:"incoming"`
	Outgoing int64 `db:"outgoing"`
}

// SumsByAccount totals completed value that flowed into and out of accountID.
func (s *LedgerStore) SumsByAccount(ctx context.Context, accountID string) (LedgerSums, error) {
	var sums LedgerSums
	err := s.db.GetContext(ctx, &sums, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE recipient_account_id = $1), 0) AS incoming,
		       COALESCE(SUM(amount) FILTER (WHERE sender_account_id = $1), 0) AS outgoing
		FROM transactions
		WHERE status = 'completed' AND (sender_account_id = $1 OR recipient_account_id = $1)
	`, accountID)
	return sums, err
}

func (f Filter) where() (string, []any) {
	clauses := []string{"(t.sender_account_id = $1 OR t.recipient_account_id = $1)"}
	args := []any{f.AccountID}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, clause+placeholder(len(args)))
	}
	if f.Type != "" {
		add("t.type = ", f.Type)
	}
	if f.Status != "" {
		add("t.status = ", f.Status)
	}
	if f.Start != nil {
		add("t.created_at >= ", *f.Start)
	}
	if f.End != nil {
		add("t.created_at <= ", *f.End)
	}
	return strings.Join(clauses, " AND "), args
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
