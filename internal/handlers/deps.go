package handlers

import (
	"context"

	"wallet/internal/models"
	"wallet/internal/services"
)

type TransferService interface {
	Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	OpenAccount(ctx context.Context, userID string) (models.Account, bool, error)
}

type StatementService interface {
	GetBalance(ctx context.Context, callerUserID string) (services.Balance, error)
	ListTransactions(ctx context.Context, req services.ListRequest) (services.TransactionPage, error)
	GetStatement(ctx context.Context, callerUserID, start, end string) (services.Statement, error)
	Reconcile(ctx context.Context, callerUserID string) (services.Reconciliation, error)
}
