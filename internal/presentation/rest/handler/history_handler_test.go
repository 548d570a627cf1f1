package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	historyapp "credit-ledger/internal/application/history"
	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHistoryHandler_GetUsageHistory(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	consumed := usage.MustNewEntry(usage.EntryParams{
		EntryID:        "entry-2",
		UserID:         "user123",
		Type:           usage.EntryTypeConsume,
		Amount:         1,
		BalanceBefore:  3,
		BalanceAfter:   2,
		Status:         usage.EntryStatusCompleted,
		Action:         credit.ActionTypeJobAnalysis,
		IdempotencyKey: "key-1",
		CreatedAt:      createdAt,
	})
	purchased := usage.MustNewEntry(usage.EntryParams{
		EntryID:       "entry-1",
		UserID:        "user123",
		Type:          usage.EntryTypePurchase,
		Amount:        10,
		BalanceBefore: 0,
		BalanceAfter:  10,
		Status:        usage.EntryStatusCompleted,
		Reference:     "ord-1",
		CreatedAt:     createdAt.Add(-time.Hour),
	})

	tests := []struct {
		name             string
		tokenUserID      string
		query            string
		setupMock        func(*MockHistoryService)
		expectedStatus   int
		validateResponse func(*testing.T, UsageHistoryResponse)
	}{
		{
			name:        "正常系: デフォルトのページング",
			tokenUserID: "user123",
			setupMock: func(m *MockHistoryService) {
				m.On("GetUsageHistory", mock.Anything, &historyapp.GetUsageHistoryRequest{UserID: "user123", Limit: 50, Offset: 0}).
					Return(&historyapp.GetUsageHistoryResponse{
						Entries: []*usage.Entry{consumed, purchased},
						Total:   2,
						Limit:   50,
						Offset:  0,
					}, nil)
			},
			expectedStatus: http.StatusOK,
			validateResponse: func(t *testing.T, resp UsageHistoryResponse) {
				require.Len(t, resp.Entries, 2)
				assert.Equal(t, 2, resp.Total)
				assert.Equal(t, UsageEntryItem{
					EntryID:        "entry-2",
					EntryType:      "consume",
					Amount:         1,
					BalanceBefore:  3,
					BalanceAfter:   2,
					Status:         "completed",
					Action:         "job_analysis",
					IdempotencyKey: "key-1",
					CreatedAt:      "2024-01-01T12:00:00Z",
				}, resp.Entries[0])
				assert.Equal(t, "purchase", resp.Entries[1].EntryType)
				assert.Equal(t, "ord-1", resp.Entries[1].Reference)
				assert.Empty(t, resp.Entries[1].Action)
			},
		},
		{
			name:        "正常系: 種別フィルタとページング",
			tokenUserID: "user123",
			query:       "?limit=10&offset=5&entry_type=consume",
			setupMock: func(m *MockHistoryService) {
				m.On("GetUsageHistory", mock.Anything, &historyapp.GetUsageHistoryRequest{UserID: "user123", Limit: 10, Offset: 5, EntryType: "consume"}).
					Return(&historyapp.GetUsageHistoryResponse{Entries: []*usage.Entry{}, Total: 2, Limit: 10, Offset: 5}, nil)
			},
			expectedStatus: http.StatusOK,
			validateResponse: func(t *testing.T, resp UsageHistoryResponse) {
				assert.Empty(t, resp.Entries)
				assert.NotNil(t, resp.Entries)
				assert.Equal(t, 10, resp.Limit)
				assert.Equal(t, 5, resp.Offset)
			},
		},
		{
			name:           "異常系: 未認証",
			tokenUserID:    "",
			setupMock:      func(m *MockHistoryService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "異常系: limitが範囲外",
			tokenUserID:    "user123",
			query:          "?limit=101",
			setupMock:      func(m *MockHistoryService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "異常系: offsetが負",
			tokenUserID:    "user123",
			query:          "?offset=-1",
			setupMock:      func(m *MockHistoryService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "異常系: 未知の種別",
			tokenUserID:    "user123",
			query:          "?entry_type=refund",
			setupMock:      func(m *MockHistoryService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockHistoryService)
			tt.setupMock(svc)

			e := newTestEcho(t)
			h := NewHistoryHandler(svc)
			e.GET("/api/v1/history", h.GetUsageHistory, asUser(tt.tokenUserID))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/history"+tt.query, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.validateResponse != nil {
				var resp UsageHistoryResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				tt.validateResponse(t, resp)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHistoryHandler_GetUsageHistoryAsService(t *testing.T) {
	svc := new(MockHistoryService)
	svc.On("GetUsageHistory", mock.Anything, mock.MatchedBy(func(req *historyapp.GetUsageHistoryRequest) bool {
		return req.UserID == "user-9"
	})).Return(&historyapp.GetUsageHistoryResponse{Entries: []*usage.Entry{}, Limit: 50}, nil)

	e := newTestEcho(t)
	h := NewHistoryHandler(svc)
	e.GET("/api/v1/service/history/:user_id", h.GetUsageHistoryAsService)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/service/history/user-9", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}
