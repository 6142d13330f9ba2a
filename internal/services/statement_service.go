package services

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"wallet/internal/models"
	"wallet/internal/money"
	"wallet/internal/store"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	dateLayout      = "2006-01-02"
)

// StatementService answers read-only questions about an account. It never
// takes locks and only sees committed ledger entries.
type StatementService struct {
	accounts       AccountStore
	ledger         LedgerStore
	storageTimeout time.Duration
	logger         *zap.Logger
}

// NewStatementService bounds every storage read by storageTimeout, five
// seconds when unset.
func NewStatementService(accounts AccountStore, ledger LedgerStore, storageTimeout time.Duration, logger *zap.Logger) *StatementService {
	if storageTimeout <= 0 {
		storageTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{accounts: accounts, ledger: ledger, storageTimeout: storageTimeout, logger: logger}
}

type Balance struct {
	AccountID string
	Balance   int64
	Currency  string
	AsOf      time.Time
}

func (s *StatementService) GetBalance(ctx context.Context, callerUserID string) (Balance, error) {
	account, err := s.callerAccount(ctx, callerUserID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		AccountID: account.ID,
		Balance:   account.Balance,
		Currency:  account.Currency,
		AsOf:      account.UpdatedAt,
	}, nil
}

type ListRequest struct {
	CallerUserID string
	Page         int
	PageSize     int
	Type         string
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

type TransactionPage struct {
	Transactions []models.TransactionView
	Pagination   Pagination
}

// ListTransactions returns one page of the caller's history, newest first.
// Zero Page and PageSize fall back to the first page of DefaultPageSize.
func (s *StatementService) ListTransactions(ctx context.Context, req ListRequest) (TransactionPage, error) {
	page, pageSize := req.Page, req.PageSize
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize || page > math.MaxInt/pageSize {
		return TransactionPage{}, ErrInvalidPagination
	}
	txType := models.TransactionType(req.Type)
	if txType != "" && !txType.Valid() {
		return TransactionPage{}, ErrInvalidTransactionType
	}

	account, err := s.callerAccount(ctx, req.CallerUserID)
	if err != nil {
		return TransactionPage{}, err
	}
	rows, total, err := s.query(ctx, store.Filter{AccountID: account.ID, Type: txType}, store.Page{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return TransactionPage{}, storageFailure(err)
	}
	return TransactionPage{
		Transactions: viewsFor(account.ID, rows),
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalPages: (total + pageSize - 1) / pageSize,
			TotalItems: total,
		},
	}, nil
}

type DateRange struct {
	Start time.Time
	End   time.Time
}

type StatementSummary struct {
	TotalTransactions int
	TotalAmount       int64
	AvgAmount         int64
}

type Statement struct {
	AccountID    string
	Currency     string
	DateRange    DateRange
	Summary      StatementSummary
	Breakdown    map[models.TransactionType]int
	Transactions []models.TransactionView
}

// GetStatement summarises completed entries between two calendar dates
// (YYYY-MM-DD, UTC), both inclusive. TotalAmount is signed from the caller's
// point of view; AvgAmount is the mean of unsigned entry amounts.
func (s *StatementService) GetStatement(ctx context.Context, callerUserID, start, end string) (Statement, error) {
	dateRange, err := ParseDateRange(start, end)
	if err != nil {
		return Statement{}, err
	}
	account, err := s.callerAccount(ctx, callerUserID)
	if err != nil {
		return Statement{}, err
	}
	windowEnd := endOfDay(dateRange.End)
	rows, _, err := s.query(ctx, store.Filter{
		AccountID: account.ID,
		Status:    models.StatusCompleted,
		Start:     &dateRange.Start,
		End:       &windowEnd,
	}, store.Page{})
	if err != nil {
		return Statement{}, storageFailure(err)
	}

	views := viewsFor(account.ID, rows)
	breakdown := make(map[models.TransactionType]int, len(models.TransactionTypes))
	for _, txType := range models.TransactionTypes {
		breakdown[txType] = 0
	}
	var signed, absolute int64
	for _, view := range views {
		breakdown[view.Type]++
		absolute += view.Amount
		if view.Direction == models.DirectionIncoming {
			signed += view.Amount
		} else {
			signed -= view.Amount
		}
	}
	return Statement{
		AccountID: account.ID,
		Currency:  account.Currency,
		DateRange: dateRange,
		Summary: StatementSummary{
			TotalTransactions: len(views),
			TotalAmount:       signed,
			AvgAmount:         money.Average(absolute, len(views)),
		},
		Breakdown:    breakdown,
		Transactions: views,
	}, nil
}

type Reconciliation struct {
	AccountID         string
	Currency          string
	StoredBalance     int64
	CalculatedBalance int64
	Difference        int64
}

// Reconcile compares the stored balance with the balance derived from
// completed ledger entries. A healthy account has zero difference.
func (s *StatementService) Reconcile(ctx context.Context, callerUserID string) (Reconciliation, error) {
	account, err := s.callerAccount(ctx, callerUserID)
	if err != nil {
		return Reconciliation{}, err
	}
	sumsCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	sums, err := s.ledger.SumsByAccount(sumsCtx, account.ID)
	if err != nil {
		return Reconciliation{}, storageFailure(err)
	}
	calculated := sums.Incoming - sums.Outgoing
	if calculated != account.Balance {
		s.logger.Warn("balance drift",
			zap.String("account_id", account.ID),
			zap.Int64("stored", account.Balance),
			zap.Int64("calculated", calculated),
		)
	}
	return Reconciliation{
		AccountID:         account.ID,
		Currency:          account.Currency,
		StoredBalance:     account.Balance,
		CalculatedBalance: calculated,
		Difference:        account.Balance - calculated,
	}, nil
}

// ParseDateRange validates a pair of YYYY-MM-DD dates in UTC.
func ParseDateRange(start, end string) (DateRange, error) {
	startDate, err := time.ParseInLocation(dateLayout, start, time.UTC)
	if err != nil {
		return DateRange{}, ErrInvalidDateRange
	}
	endDate, err := time.ParseInLocation(dateLayout, end, time.UTC)
	if err != nil {
		return DateRange{}, ErrInvalidDateRange
	}
	if startDate.After(endDate) {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{Start: startDate, End: endDate}, nil
}

// endOfDay is the last instant PostgreSQL can store on day's date.
func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Microsecond)
}

func (s *StatementService) callerAccount(ctx context.Context, callerUserID string) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	account, err := s.accounts.GetByUser(ctx, callerUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, storageFailure(err)
	}
	return account, nil
}

func (s *StatementService) query(ctx context.Context, filter store.Filter, page store.Page) ([]store.LedgerRow, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	return s.ledger.Query(ctx, filter, page)
}

func viewsFor(accountID string, rows []store.LedgerRow) []models.TransactionView {
	views := make([]models.TransactionView, 0, len(rows))
	for _, row := range rows {
		view := models.TransactionView{
			Transaction: row.Transaction,
			Direction:   row.DirectionFor(accountID),
		}
		if row.CounterpartyAccountID != nil {
			view.Counterparty = &models.Counterparty{
				AccountID: *row.CounterpartyAccountID,
				UserID:    derefString(row.CounterpartyUserID),
				Name:      derefString(row.CounterpartyName),
				Email:     derefString(row.CounterpartyEmail),
			}
		}
		views = append(views, view)
	}
	return views
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
