package handler

import (
	"context"
	"io"
	"testing"

	authapp "credit-ledger/internal/application/auth"
	redemptionapp "credit-ledger/internal/application/code_redemption"
	historyapp "credit-ledger/internal/application/history"
	ledgerapp "credit-ledger/internal/application/ledger"
	paymentapp "credit-ledger/internal/application/payment"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	restmiddleware "credit-ledger/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"
)

// MockLedgerService モック台帳サービス
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetBalance(ctx context.Context, req *ledgerapp.GetBalanceRequest) (*ledgerapp.GetBalanceResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.GetBalanceResponse), args.Error(1)
}

func (m *MockLedgerService) Consume(ctx context.Context, req *ledgerapp.ConsumeRequest) (*ledgerapp.ConsumeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.ConsumeResponse), args.Error(1)
}

// MockPaymentService モック購入確定サービス
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) ConfirmPurchase(ctx context.Context, req *paymentapp.ConfirmPurchaseRequest) (*paymentapp.ConfirmPurchaseResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.ConfirmPurchaseResponse), args.Error(1)
}

// MockCodeRedemptionService モックコード引き換えサービス
type MockCodeRedemptionService struct {
	mock.Mock
}

func (m *MockCodeRedemptionService) Redeem(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (*redemptionapp.RedeemCodeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redemptionapp.RedeemCodeResponse), args.Error(1)
}

func (m *MockCodeRedemptionService) CreateCode(ctx context.Context, req *redemptionapp.CreateCodeRequest) (*redemptionapp.CodeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redemptionapp.CodeResponse), args.Error(1)
}

func (m *MockCodeRedemptionService) GetCode(ctx context.Context, req *redemptionapp.GetCodeRequest) (*redemptionapp.CodeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redemptionapp.CodeResponse), args.Error(1)
}

// MockHistoryService モック履歴サービス
type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) GetUsageHistory(ctx context.Context, req *historyapp.GetUsageHistoryRequest) (*historyapp.GetUsageHistoryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*historyapp.GetUsageHistoryResponse), args.Error(1)
}

// MockAuthService モックトークン発行サービス
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) GenerateToken(ctx context.Context, req *authapp.GenerateTokenRequest) (*authapp.GenerateTokenResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authapp.GenerateTokenResponse), args.Error(1)
}

// newTestEcho エラーハンドリングミドルウェアを設定したechoを作成
func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	logger := otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"), otelinfra.WithOutput(io.Discard))
	e := echo.New()
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
	return e
}

// asUser 認証ミドルウェアの代わりにユーザーIDを設定する
// 空文字の場合は未認証として扱う
func asUser(userID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if userID != "" {
				c.Set(restmiddleware.ContextKeyUserID, userID)
			}
			return next(c)
		}
	}
}
