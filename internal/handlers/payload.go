package handlers

import (
	"encoding/json"
	"time"

	"wallet/internal/models"
	"wallet/internal/money"
	"wallet/internal/services"
)

const dateLayout = "2006-01-02"

type counterpartyPayload struct {
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type transactionPayload struct {
	ID                 string               `json:"id"`
	Reference          string               `json:"reference"`
	Type               string               `json:"type"`
	Status             string               `json:"status"`
	Amount             json.Number          `json:"amount"`
	Currency           string               `json:"currency"`
	Direction          string               `json:"direction,omitempty"`
	SenderAccountID    string               `json:"senderAccountId,omitempty"`
	RecipientAccountID string               `json:"recipientAccountId,omitempty"`
	Description        string               `json:"description"`
	Notes              string               `json:"notes,omitempty"`
	Counterparty       *counterpartyPayload `json:"counterparty,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
}

func newTransactionPayload(tx models.Transaction) transactionPayload {
	payload := transactionPayload{
		ID:          tx.ID,
		Reference:   tx.Reference,
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		Amount:      money.Number(tx.Amount),
		Currency:    tx.Currency,
		Description: tx.Description,
		Notes:       tx.Notes,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.SenderAccountID != nil {
		payload.SenderAccountID = *tx.SenderAccountID
	}
	if tx.RecipientAccountID != nil {
		payload.RecipientAccountID = *tx.RecipientAccountID
	}
	return payload
}

func newViewPayloads(views []models.TransactionView) []transactionPayload {
	payloads := make([]transactionPayload, 0, len(views))
	for _, view := range views {
		payload := newTransactionPayload(view.Transaction)
		payload.Direction = string(view.Direction)
		if view.Counterparty != nil {
			payload.Counterparty = &counterpartyPayload{
				AccountID: view.Counterparty.AccountID,
				UserID:    view.Counterparty.UserID,
				Name:      view.Counterparty.Name,
				Email:     view.Counterparty.Email,
			}
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

type legPayload struct {
	AccountID    string      `json:"accountId"`
	UserID       string      `json:"userId"`
	BalanceAfter json.Number `json:"balanceAfter"`
}

type transferPayload struct {
	Transaction transactionPayload `json:"transaction"`
	Sender      legPayload         `json:"sender"`
	Recipient   legPayload         `json:"recipient"`
	NewBalance  json.Number        `json:"newBalance"`
	Replayed    bool               `json:"replayed"`
}

func newTransferPayload(result services.TransferResult) transferPayload {
	return transferPayload{
		Transaction: newTransactionPayload(result.Transaction),
		Sender: legPayload{
			AccountID:    result.Sender.AccountID,
			UserID:       result.Sender.UserID,
			BalanceAfter: money.Number(result.Sender.BalanceAfter),
		},
		Recipient: legPayload{
			AccountID:    result.Recipient.AccountID,
			UserID:       result.Recipient.UserID,
			BalanceAfter: money.Number(result.Recipient.BalanceAfter),
		},
		NewBalance: money.Number(result.Sender.BalanceAfter),
		Replayed:   result.Replayed,
	}
}

type accountPayload struct {
	AccountID string      `json:"accountId"`
	UserID    string      `json:"userId"`
	Balance   json.Number `json:"balance"`
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"createdAt"`
}

type balancePayload struct {
	AccountID string      `json:"accountId"`
	Balance   json.Number `json:"balance"`
	Currency  string      `json:"currency"`
	AsOf      time.Time   `json:"asOf"`
}

type transactionListPayload struct {
	Transactions []transactionPayload `json:"transactions"`
	Pagination   services.Pagination  `json:"pagination"`
}

type dateRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type summaryPayload struct {
	TotalTransactions int         `json:"totalTransactions"`
	TotalAmount       json.Number `json:"totalAmount"`
	AvgAmount         json.Number `json:"avgAmount"`
}

type statementPayload struct {
	AccountID    string               `json:"accountId"`
	Currency     string               `json:"currency"`
	DateRange    dateRangePayload     `json:"dateRange"`
	Summary      summaryPayload       `json:"summary"`
	Breakdown    map[string]int       `json:"breakdown"`
	Transactions []transactionPayload `json:"transactions"`
}

var breakdownKeys = map[models.TransactionType]string{
	models.TypeTransfer:   "transfers",
	models.TypeDeposit:    "deposits",
	models.TypeWithdrawal: "withdrawals",
	models.TypeFee:        "fees",
	models.TypeBonus:      "bonuses",
	models.TypeRefund:     "refunds",
}

func newStatementPayload(statement services.Statement) statementPayload {
	breakdown := make(map[string]int, len(statement.Breakdown))
	for txType, count := range statement.Breakdown {
		breakdown[breakdownKeys[txType]] = count
	}
	return statementPayload{
		AccountID: statement.AccountID,
		Currency:  statement.Currency,
		DateRange: dateRangePayload{
			Start: statement.DateRange.Start.Format(dateLayout),
			End:   statement.DateRange.End.Format(dateLayout),
		},
		Summary: summaryPayload{
			TotalTransactions: statement.Summary.TotalTransactions,
			TotalAmount:       money.Number(statement.Summary.TotalAmount),
			AvgAmount:         money.Number(statement.Summary.AvgAmount),
		},
		Breakdown:    breakdown,
		Transactions: newViewPayloads(statement.Transactions),
	}
}

type reconciliationPayload struct {
	AccountID         string      `json:"accountId"`
	Currency          string      `json:"currency"`
	StoredBalance     json.Number `json:"storedBalance"`
	CalculatedBalance json.Number `json:"calculatedBalance"`
	Difference        json.Number `json:"difference"`
	Consistent        bool        `json:"consistent"`
}
