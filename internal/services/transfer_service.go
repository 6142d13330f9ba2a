package services

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"wallet/internal/db"
	"wallet/internal/models"
	"wallet/internal/money"
	"wallet/internal/store"
	"wallet/internal/websocket"
)

const defaultTransferDescription = "Funds transfer"

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetByUser(ctx context.Context, userID string) (models.Account, error)
	Get(ctx context.Context, q store.Getter, accountID string) (models.Account, error)
	Create(ctx context.Context, tx store.Getter, userID, currency string, balance int64) (models.Account, error)
	ApplyDelta(ctx context.Context, tx store.Getter, accountID string, delta, expectedVersion int64) (models.Account, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx store.Getter, input store.AppendInput) (models.Transaction, error)
	FindByReference(ctx context.Context, reference string) (models.Transaction, error)
	Query(ctx context.Context, filter store.Filter, page store.Page) ([]store.LedgerRow, int, error)
	SumsByAccount(ctx context.Context, accountID string) (store.LedgerSums, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, entry store.AuditEntry) error
}

// BalanceNotifier receives post-commit balances for live delivery.
type BalanceNotifier interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type TransferConfig struct {
	Currency        string
	StartingBalance int64
	MaxAttempts     int
	RetryBackoff    time.Duration
	StorageTimeout  time.Duration
}

type TransferService struct {
	txRunner db.TxRunner
	accounts AccountStore
	ledger   LedgerStore
	audit    AuditStore
	notifier BalanceNotifier
	cfg      TransferConfig
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewTransferService(txRunner db.TxRunner, accounts AccountStore, ledger LedgerStore, audit AuditStore, notifier BalanceNotifier, cfg TransferConfig, logger *zap.Logger) *TransferService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		txRunner: txRunner,
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

type TransferRequest struct {
	CallerUserID      string
	DestinationUserID string
	Amount            int64
	Description       string
	Notes             string
	IdempotencyKey    string
}

type TransferLeg struct {
	AccountID    string
	UserID       string
	BalanceAfter int64
}

type TransferResult struct {
	Transaction models.Transaction
	Sender      TransferLeg
	Recipient   TransferLeg
	Replayed    bool
}

// Transfer moves Amount from the caller's account to the destination user's
// account and records one completed ledger entry. Repeating a request with the
// same IdempotencyKey returns the original entry without moving funds again.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	started := s.now()
	result, err := s.transfer(ctx, req)
	observeTransfer(result, err, s.now().Sub(started))
	return result, err
}

func (s *TransferService) transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.Amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if req.CallerUserID == req.DestinationUserID {
		return TransferResult{}, ErrSelfTransferNotAllowed
	}
	sender, err := s.accountOf(ctx, req.CallerUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TransferResult{}, ErrCallerAccountMissing
		}
		return TransferResult{}, lookupFailure(err)
	}
	recipient, err := s.accountOf(ctx, req.DestinationUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TransferResult{}, ErrAccountNotFound
		}
		return TransferResult{}, lookupFailure(err)
	}
	if sender.Disabled() || recipient.Disabled() {
		return TransferResult{}, ErrAccountDisabled
	}

	if req.IdempotencyKey != "" {
		existing, err := s.entryFor(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return replayResult(existing, sender, recipient, req.Amount)
		case !errors.Is(err, store.ErrNotFound):
			return TransferResult{}, lookupFailure(err)
		}
	}

	if sender.Balance < req.Amount {
		return TransferResult{}, ErrInsufficientFunds
	}

	reference := req.IdempotencyKey
	if reference == "" {
		reference = newReference(transferPrefix, s.now())
	}
	description := req.Description
	if description == "" {
		description = defaultTransferDescription
	}

	var (
		lastErr        error
		lastReason     FailureReason
		attempts       int
		maybeCommitted bool
	)
	for attempts = 1; attempts <= s.cfg.MaxAttempts; attempts++ {
		result, err := s.attempt(ctx, req, sender.ID, recipient.ID, reference, description)
		if err == nil {
			s.notify(result)
			return result, nil
		}
		if errors.Is(err, store.ErrDuplicateReference) {
			return s.resolveDuplicate(ctx, reference, sender, recipient, req.Amount, !maybeCommitted)
		}
		reason, retryable := classifyAttemptError(err)
		if !retryable {
			return TransferResult{}, translateAttemptError(err)
		}
		lastErr, lastReason = err, reason
		if reason == ReasonTimeout {
			maybeCommitted = true
		}
		if ctx.Err() != nil || attempts == s.cfg.MaxAttempts {
			break
		}
		transferRetries.WithLabelValues(string(reason)).Inc()
		s.logger.Debug("retrying transfer",
			zap.String("reference", reference),
			zap.Int("attempt", attempts),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		if err := s.sleep(ctx, s.backoff(attempts)); err != nil {
			lastErr, lastReason = err, ReasonTimeout
			break
		}
	}
	s.recordFailure(ctx, req, sender.ID, recipient.ID, description, lastReason)
	s.logger.Warn("transfer abandoned",
		zap.String("reference", reference),
		zap.String("sender_account_id", sender.ID),
		zap.String("recipient_account_id", recipient.ID),
		zap.Int("attempts", attempts),
		zap.String("reason", string(lastReason)),
		zap.Error(lastErr),
	)
	return TransferResult{}, &TransferFailedError{Reason: lastReason, Attempts: attempts, Err: lastErr}
}

// attempt runs one optimistic pass inside a single database transaction. The
// entry is appended before the balance checks so a reference committed by an
// earlier unacknowledged attempt is found ahead of any funds rejection.
func (s *TransferService) attempt(ctx context.Context, req TransferRequest, senderID, recipientID, reference, description string) (TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	var result TransferResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		sender, err := s.accounts.Get(ctx, tx, senderID)
		if err != nil {
			return err
		}
		recipient, err := s.accounts.Get(ctx, tx, recipientID)
		if err != nil {
			return err
		}
		senderAfter := sender.Balance - req.Amount
		recipientAfter := recipient.Balance + req.Amount

		entry, err := s.ledger.Append(ctx, tx, store.AppendInput{
			ID:                    uuid.NewString(),
			Reference:             reference,
			SenderAccountID:       &sender.ID,
			RecipientAccountID:    &recipient.ID,
			Type:                  models.TypeTransfer,
			Amount:                req.Amount,
			Currency:              sender.Currency,
			Status:                models.StatusCompleted,
			SenderBalanceAfter:    &senderAfter,
			RecipientBalanceAfter: &recipientAfter,
			Description:           description,
			Notes:                 req.Notes,
		})
		if err != nil {
			return err
		}
		if sender.Disabled() || recipient.Disabled() {
			return ErrAccountDisabled
		}
		if sender.Balance < req.Amount {
			return ErrInsufficientFunds
		}

		updated, err := s.applyInOrder(ctx, tx, []balanceChange{
			{account: sender, delta: -req.Amount},
			{account: recipient, delta: req.Amount},
		})
		if err != nil {
			return err
		}

		if err := s.audit.Log(ctx, tx, store.AuditEntry{
			ActorUserID: req.CallerUserID,
			Action:      "transfer.completed",
			EntityType:  "transaction",
			EntityID:    entry.ID,
			Data: map[string]any{
				"reference":            reference,
				"amount":               req.Amount,
				"sender_account_id":    sender.ID,
				"recipient_account_id": recipient.ID,
			},
		}); err != nil {
			return err
		}

		result = TransferResult{
			Transaction: entry,
			Sender:      TransferLeg{AccountID: sender.ID, UserID: sender.UserID, BalanceAfter: updated[sender.ID].Balance},
			Recipient:   TransferLeg{AccountID: recipient.ID, UserID: recipient.UserID, BalanceAfter: updated[recipient.ID].Balance},
		}
		return nil
	})
	if err == nil {
		return result, nil
	}
	// The attempt deadline surfaces as a driver error or a context error
	// depending on where it fired.
	if ctx.Err() != nil && !isOutcomeKnown(err) {
		return TransferResult{}, errors.Join(context.DeadlineExceeded, err)
	}
	return TransferResult{}, err
}

type balanceChange struct {
	account models.Account
	delta   int64
}

// applyInOrder writes balance changes in ascending account id order so two
// transfers touching the same pair always contend in the same sequence.
func (s *TransferService) applyInOrder(ctx context.Context, tx store.Getter, changes []balanceChange) (map[string]models.Account, error) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].account.ID < changes[j].account.ID
	})
	updated := make(map[string]models.Account, len(changes))
	for _, change := range changes {
		account, err := s.accounts.ApplyDelta(ctx, tx, change.account.ID, change.delta, change.account.Version)
		if err != nil {
			return nil, err
		}
		updated[account.ID] = account
	}
	return updated, nil
}

// resolveDuplicate handles a reference that is already in the ledger. Either
// an earlier attempt of this call committed without acknowledgement, or a
// concurrent request carried the same idempotency key.
func (s *TransferService) resolveDuplicate(ctx context.Context, reference string, sender, recipient models.Account, amount int64, replayed bool) (TransferResult, error) {
	existing, err := s.entryFor(ctx, reference)
	if err != nil {
		return TransferResult{}, lookupFailure(err)
	}
	result, err := replayResult(existing, sender, recipient, amount)
	if err != nil {
		return TransferResult{}, err
	}
	result.Replayed = replayed
	if !replayed {
		s.notify(result)
	}
	return result, nil
}

func replayResult(existing models.Transaction, sender, recipient models.Account, amount int64) (TransferResult, error) {
	if existing.Status != models.StatusCompleted ||
		existing.Amount != amount ||
		!sameAccount(existing.SenderAccountID, sender.ID) ||
		!sameAccount(existing.RecipientAccountID, recipient.ID) {
		return TransferResult{}, ErrIdempotencyKeyReused
	}
	return TransferResult{
		Transaction: existing,
		Sender:      TransferLeg{AccountID: sender.ID, UserID: sender.UserID, BalanceAfter: derefInt64(existing.SenderBalanceAfter)},
		Recipient:   TransferLeg{AccountID: recipient.ID, UserID: recipient.UserID, BalanceAfter: derefInt64(existing.RecipientBalanceAfter)},
		Replayed:    true,
	}, nil
}

// recordFailure appends a failed entry so abandoned transfers stay visible in
// history. It must not change the error returned to the caller.
func (s *TransferService) recordFailure(ctx context.Context, req TransferRequest, senderID, recipientID, description string, reason FailureReason) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StorageTimeout)
	defer cancel()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.ledger.Append(ctx, tx, store.AppendInput{
			ID:                 uuid.NewString(),
			Reference:          newReference(transferPrefix, s.now()),
			SenderAccountID:    &senderID,
			RecipientAccountID: &recipientID,
			Type:               models.TypeTransfer,
			Amount:             req.Amount,
			Currency:           s.cfg.Currency,
			Status:             models.StatusFailed,
			Description:        description,
			Notes:              "abandoned: " + string(reason),
		})
		return err
	})
	if err != nil {
		s.logger.Warn("record failed transfer", zap.Error(err))
	}
}

func (s *TransferService) notify(result TransferResult) {
	if s.notifier == nil {
		return
	}
	currency := result.Transaction.Currency
	for _, leg := range []TransferLeg{result.Sender, result.Recipient} {
		s.notifier.BroadcastBalance(leg.UserID, websocket.BalanceUpdate{
			AccountID: leg.AccountID,
			Balance:   money.Number(leg.BalanceAfter),
			Currency:  currency,
			Reference: result.Transaction.Reference,
		})
	}
}

// backoff grows quadratically with the attempt number plus up to one base
// interval of jitter.
func (s *TransferService) backoff(attempt int) time.Duration {
	base := s.cfg.RetryBackoff
	if base <= 0 {
		return 0
	}
	return time.Duration(attempt*attempt)*base + time.Duration(rand.Int63n(int64(base)))
}

// OpenAccount creates the caller's account funded with the starting balance.
// An existing account is returned unchanged with created set to false.
func (s *TransferService) OpenAccount(ctx context.Context, userID string) (models.Account, bool, error) {
	existing, err := s.accountOf(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Account{}, false, storageFailure(err)
	}

	var account models.Account
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	err = s.txRunner.WithTx(txCtx, func(tx *sqlx.Tx) error {
		created, err := s.accounts.Create(txCtx, tx, userID, s.cfg.Currency, s.cfg.StartingBalance)
		if err != nil {
			return err
		}
		account = created
		if s.cfg.StartingBalance > 0 {
			opening := s.cfg.StartingBalance
			if _, err := s.ledger.Append(txCtx, tx, store.AppendInput{
				ID:                    uuid.NewString(),
				Reference:             newReference(openingPrefix, s.now()),
				RecipientAccountID:    &created.ID,
				Type:                  models.TypeBonus,
				Amount:                opening,
				Currency:              created.Currency,
				Status:                models.StatusCompleted,
				RecipientBalanceAfter: &opening,
				Description:           "Opening balance",
			}); err != nil {
				return err
			}
		}
		return s.audit.Log(txCtx, tx, store.AuditEntry{
			ActorUserID: userID,
			Action:      "account.opened",
			EntityType:  "account",
			EntityID:    created.ID,
			Data:        map[string]any{"starting_balance": s.cfg.StartingBalance, "currency": created.Currency},
		})
	})
	if errors.Is(err, store.ErrDuplicateAccount) {
		existing, err := s.accountOf(ctx, userID)
		if err != nil {
			return models.Account{}, false, storageFailure(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Account{}, false, storageFailure(err)
	}
	s.logger.Info("account opened", zap.String("user_id", userID), zap.String("account_id", account.ID))
	return account, true, nil
}

// accountOf and entryFor are the reads made outside a transaction. Each is
// bounded by the storage timeout like an attempt.
func (s *TransferService) accountOf(ctx context.Context, userID string) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	return s.accounts.GetByUser(ctx, userID)
}

func (s *TransferService) entryFor(ctx context.Context, reference string) (models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	return s.ledger.FindByReference(ctx, reference)
}

// lookupFailure reports a read that ran out of time as a timed-out transfer.
func lookupFailure(err error) error {
	if reason, _ := classifyAttemptError(err); reason == ReasonTimeout {
		return &TransferFailedError{Reason: ReasonTimeout, Err: err}
	}
	return storageFailure(err)
}

// classifyAttemptError reports whether a failed attempt may succeed if run
// again, and why it failed.
func classifyAttemptError(err error) (FailureReason, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), db.IsCanceled(err):
		return ReasonTimeout, true
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, db.ErrRetryLimitExceeded), db.IsRetryable(err):
		return ReasonContention, true
	default:
		return "", false
	}
}

func translateAttemptError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, store.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, ErrAccountDisabled), errors.Is(err, store.ErrAccountDisabled):
		return ErrAccountDisabled
	case errors.Is(err, store.ErrNotFound):
		return ErrAccountNotFound
	default:
		return storageFailure(err)
	}
}

// isOutcomeKnown reports errors that describe the data rather than the
// connection, so they stand even when the deadline fired at the same time.
func isOutcomeKnown(err error) bool {
	for _, target := range []error{
		store.ErrDuplicateReference, store.ErrInsufficientFunds, store.ErrAccountDisabled, store.ErrNotFound,
		ErrInsufficientFunds, ErrAccountDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func sameAccount(id *string, accountID string) bool {
	return id != nil && *id == accountID
}

func derefInt64(value *int64) int64 {
	if value == nil {
		return 0
	}
	return *value
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
