package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authapp "credit-ledger/internal/application/auth"
	redemptionapp "credit-ledger/internal/application/code_redemption"
	historyapp "credit-ledger/internal/application/history"
	ledgerapp "credit-ledger/internal/application/ledger"
	paymentapp "credit-ledger/internal/application/payment"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/presentation/openapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	testSecret = "router-test-secret"
	testIssuer = "credit-ledger"
	testAPIKey = "service-key"
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

type testRouter struct {
	router     *Router
	ledger     *MockLedgerService
	payment    *MockPaymentService
	redemption *MockCodeRedemptionService
	history    *MockHistoryService
}

func newTestRouter(t *testing.T, ping func(ctx context.Context) error) *testRouter {
	t.Helper()
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:     testSecret,
			Expiration: time.Hour,
			Issuer:     testIssuer,
		},
		AdminAPI: config.AdminAPIConfig{
			Enabled: true,
			APIKey:  testAPIKey,
		},
	}
	logger := otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"), otelinfra.WithOutput(io.Discard))

	tr := &testRouter{
		ledger:     new(MockLedgerService),
		payment:    new(MockPaymentService),
		redemption: new(MockCodeRedemptionService),
		history:    new(MockHistoryService),
	}
	router, err := NewRouter(cfg, logger, nil, Services{
		Ledger:     tr.ledger,
		Payment:    tr.payment,
		Redemption: tr.redemption,
		History:    tr.history,
		Auth:       authapp.NewAuthApplicationService(&cfg.JWT, logger),
		Ping:       ping,
	})
	require.NoError(t, err)
	tr.router = router
	return tr
}

func (tr *testRouter) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	tok, err := identity.Mint(testSecret, testIssuer, userID, time.Hour, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		ping       func(ctx context.Context) error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "正常系: Pingなし",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "正常系: Ping成功",
			ping:       func(ctx context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "異常系: Ping失敗",
			ping:       func(ctx context.Context) error { return errors.New("db down") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter(t, tt.ping)
			rec := tr.do(http.MethodGet, "/health", nil, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["status"])
		})
	}
}

func TestRouter_TokenThenBalance(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(http.MethodPost, "/api/v1/auth/token", map[string]string{"user_id": "user-1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.Equal(t, "Bearer", tok.TokenType)

	tr.ledger.On("GetBalance", mock.Anything, &ledgerapp.GetBalanceRequest{UserID: "user-1"}).
		Return(&ledgerapp.GetBalanceResponse{UserID: "user-1", Balance: 3}, nil)

	rec = tr.do(http.MethodGet, "/api/v1/credits/balance", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"user-1","balance":3}`, rec.Body.String())
	tr.ledger.AssertExpectations(t)
}

func TestRouter_UserRoutesRequireBearer(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/credits/balance"},
		{http.MethodPost, "/api/v1/credits/consume"},
		{http.MethodPost, "/api/v1/codes/redeem"},
		{http.MethodGet, "/api/v1/history"},
	}

	for _, r := range routes {
		t.Run("異常系: "+r.method+" "+r.path, func(t *testing.T) {
			tr := newTestRouter(t, nil)
			rec := tr.do(r.method, r.path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRouter_ServiceRoutesRequireAPIKey(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/service/credits/user-1"},
		{http.MethodPost, "/api/v1/service/credits/consume"},
		{http.MethodGet, "/api/v1/service/history/user-1"},
		{http.MethodPost, "/api/v1/webhooks/purchase"},
		{http.MethodPost, "/api/v1/admin/codes"},
		{http.MethodGet, "/api/v1/admin/codes/WELCOME"},
	}

	for _, r := range routes {
		t.Run("異常系: "+r.method+" "+r.path, func(t *testing.T) {
			tr := newTestRouter(t, nil)

			rec := tr.do(r.method, r.path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			// ユーザーのJWTではサービス経路を利用できない
			rec = tr.do(r.method, r.path, nil, bearer(t, "user-1"))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRouter_ConsumeInsufficientFunds(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.ledger.On("Consume", mock.Anything, &ledgerapp.ConsumeRequest{
		UserID: "user-1",
		Amount: 1,
		Action: "job_analysis",
	}).Return(&ledgerapp.ConsumeResponse{
		Success: false,
		Reason:  ledgerapp.ReasonInsufficientFunds,
		Balance: 0,
	}, nil)

	rec := tr.do(http.MethodPost, "/api/v1/credits/consume",
		map[string]interface{}{"amount": 1, "action": "job_analysis"}, bearer(t, "user-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"reason":"insufficient_funds","balance":0}`, rec.Body.String())
	tr.ledger.AssertExpectations(t)
}

func TestRouter_ServiceBalance(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.ledger.On("GetBalance", mock.Anything, &ledgerapp.GetBalanceRequest{UserID: "user-9"}).
		Return(&ledgerapp.GetBalanceResponse{UserID: "user-9", Balance: 12}, nil)

	rec := tr.do(http.MethodGet, "/api/v1/service/credits/user-9", nil, map[string]string{"X-API-Key": testAPIKey})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"user-9","balance":12}`, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	tr.ledger.AssertExpectations(t)
}

func TestRouter_PurchaseWebhook(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.payment.On("ConfirmPurchase", mock.Anything, &paymentapp.ConfirmPurchaseRequest{
		OrderID:   "order-1",
		UserID:    "user-1",
		PackageID: "pack_10",
	}).Return(&paymentapp.ConfirmPurchaseResponse{
		OrderID:      "order-1",
		UserID:       "user-1",
		PackageID:    "pack_10",
		Credits:      10,
		EntryID:      "entry-1",
		BalanceAfter: 13,
	}, nil)

	rec := tr.do(http.MethodPost, "/api/v1/webhooks/purchase", map[string]string{
		"order_id":   "order-1",
		"user_id":    "user-1",
		"package_id": "pack_10",
	}, map[string]string{"X-API-Key": testAPIKey})

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(13), body["balance_after"])
	tr.payment.AssertExpectations(t)
}

func TestRouter_UnknownRoute(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
	}{
		{name: "異常系: 認証なしの未知のパス", method: http.MethodGet, path: "/api/v1/nope"},
		{name: "異常系: 未知のサービス配下のパス", method: http.MethodPost, path: "/api/v1/service/unknown"},
		{name: "異常系: 有効なJWTでも未知のパス", method: http.MethodGet, path: "/api/v1/nope", headers: bearer(t, "user-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter(t, nil)
			rec := tr.do(tt.method, tt.path, nil, tt.headers)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestRouter_OpenAPISpec(t *testing.T) {
	tr := newTestRouter(t, nil)
	rec := tr.do(http.MethodGet, "/openapi.yaml", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, openapi.Spec, rec.Body.Bytes())
	assert.Contains(t, rec.Body.String(), "/credits/consume")
}
