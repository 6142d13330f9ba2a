package models

import "time"

type TransactionType string

const (
	TypeTransfer   TransactionType = "transfer"
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeFee        TransactionType = "fee"
	TypeBonus      TransactionType = "bonus"
	TypeRefund     TransactionType = "refund"
)

// TransactionTypes lists every ledger entry kind in display order.
var TransactionTypes = []TransactionType{
	TypeTransfer, TypeDeposit, TypeWithdrawal, TypeFee, TypeBonus, TypeRefund,
}

func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

type Account struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Currency   string     `db:"currency" json:"currency"`
	Balance    int64      `db:"balance" json:"balance"`
	Version    int64      `db:"version" json:"version"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DisabledAt *time.Time `db:"disabled_at" json:"disabled_at,omitempty"`
}

func (a Account) Disabled() bool {
	return a.DisabledAt != nil
}

// Transaction is one immutable ledger entry. Amount is always positive; the
// direction of a movement is derived from the reader's role in it.
type Transaction struct {
	ID                    string            `db:"id" json:"id"`
	Reference             string            `db:"reference" json:"reference"`
	SenderAccountID       *string           `db:"sender_account_id" json:"sender_account_id,omitempty"`
	RecipientAccountID    *string           `db:"recipient_account_id" json:"recipient_account_id,omitempty"`
	Type                  TransactionType   `db:"type" json:"type"`
	Amount                int64             `db:"amount" json:"amount"`
	Currency              string            `db:"currency" json:"currency"`
	Status                TransactionStatus `db:"status" json:"status"`
	SenderBalanceAfter    *int64            `db:"sender_balance_after" json:"sender_balance_after,omitempty"`
	RecipientBalanceAfter *int64            `db:"recipient_balance_after" json:"recipient_balance_after,omitempty"`
	Description           string            `db:"description" json:"description"`
	Notes                 string            `db:"notes" json:"notes"`
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
}

// DirectionFor reports whether the entry moved value into or out of accountID.
func (t Transaction) DirectionFor(accountID string) Direction {
	if t.RecipientAccountID != nil && *t.RecipientAccountID == accountID {
		return DirectionIncoming
	}
	return DirectionOutgoing
}

// Counterparty is the public identity of the other side of an entry.
type Counterparty struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// TransactionView is a ledger entry as seen by one of its parties.
type TransactionView struct {
	Transaction
	Direction    Direction     `json:"direction"`
	Counterparty *Counterparty `json:"counterparty,omitempty"`
}
