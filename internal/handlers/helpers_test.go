package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wallet/internal/auth"
	"wallet/internal/config"
	"wallet/internal/models"
	"wallet/internal/services"
	"wallet/internal/websocket"
)

const testSecret = "secret"

type stubTransferService struct {
	transferFn func(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	openFn     func(ctx context.Context, userID string) (models.Account, bool, error)
}

func (s stubTransferService) Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error) {
	if s.transferFn == nil {
		return services.TransferResult{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubTransferService) OpenAccount(ctx context.Context, userID string) (models.Account, bool, error) {
	if s.openFn == nil {
		return models.Account{}, false, nil
	}
	return s.openFn(ctx, userID)
}

type stubStatementService struct {
	balanceFn   func(ctx context.Context, userID string) (services.Balance, error)
	listFn      func(ctx context.Context, req services.ListRequest) (services.TransactionPage, error)
	statementFn func(ctx context.Context, userID, start, end string) (services.Statement, error)
	reconcileFn func(ctx context.Context, userID string) (services.Reconciliation, error)
}

func (s stubStatementService) GetBalance(ctx context.Context, userID string) (services.Balance, error) {
	if s.balanceFn == nil {
		return services.Balance{}, nil
	}
	return s.balanceFn(ctx, userID)
}

func (s stubStatementService) ListTransactions(ctx context.Context, req services.ListRequest) (services.TransactionPage, error) {
	if s.listFn == nil {
		return services.TransactionPage{}, nil
	}
	return s.listFn(ctx, req)
}

func (s stubStatementService) GetStatement(ctx context.Context, userID, start, end string) (services.Statement, error) {
	if s.statementFn == nil {
		return services.Statement{}, nil
	}
	return s.statementFn(ctx, userID, start, end)
}

func (s stubStatementService) Reconcile(ctx context.Context, userID string) (services.Reconciliation, error) {
	if s.reconcileFn == nil {
		return services.Reconciliation{}, nil
	}
	return s.reconcileFn(ctx, userID)
}

func newTestHandler(transfers TransferService, statements StatementService) *Handler {
	return New(config.Config{JWTSecret: testSecret, AllowedOrigins: "*"}, transfers, statements, websocket.NewHub(nil), nil)
}

// serve sends a request through the full router as userID. An empty userID
// sends no credentials.
func serve(t *testing.T, h *Handler, method, target, userID string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return serveWithHeader(t, h, method, target, userID, body, nil)
}

func serveWithHeader(t *testing.T, h *Handler, method, target, userID string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func stringPtr(value string) *string {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}
