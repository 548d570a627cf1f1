package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"credit-ledger/internal/domain/credit"
)

// MockAccountRepository モックアカウントリポジトリ
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) FindByUserID(ctx context.Context, userID string) (*credit.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credit.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, a *credit.Account) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAccountRepository) Save(ctx context.Context, tx *sql.Tx, a *credit.Account) error {
	args := m.Called(ctx, tx, a)
	return args.Error(0)
}

func (m *MockAccountRepository) DecrementIfSufficient(ctx context.Context, tx *sql.Tx, userID string, amount int64) (int64, bool, error) {
	args := m.Called(ctx, tx, userID, amount)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func TestCreditService_EnsureAccount(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(*MockAccountRepository)
		wantBalance int64
		wantCreated bool
		wantError   bool
	}{
		{
			name: "正常系: 既存アカウント",
			setupMocks: func(m *MockAccountRepository) {
				m.On("FindByUserID", mock.Anything, "user123").Return(credit.MustNewAccount("user123", 7, 2), nil)
			},
			wantBalance: 7,
		},
		{
			name: "正常系: 初回は初期クレジットで作成",
			setupMocks: func(m *MockAccountRepository) {
				m.On("FindByUserID", mock.Anything, "user123").Return(nil, credit.ErrAccountNotFound).Once()
				m.On("Create", mock.Anything, mock.MatchedBy(func(a *credit.Account) bool {
					return a.UserID() == "user123" && a.Balance() == 3
				})).Return(nil)
				m.On("FindByUserID", mock.Anything, "user123").Return(credit.MustNewAccount("user123", 3, 0), nil).Once()
			},
			wantBalance: 3,
			wantCreated: true,
		},
		{
			name: "異常系: データベースエラー",
			setupMocks: func(m *MockAccountRepository) {
				m.On("FindByUserID", mock.Anything, "user123").Return(nil, errors.New("database error"))
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockAccountRepository)
			tt.setupMocks(mockRepo)

			svc := NewCreditService(mockRepo, DefaultStartingGrant)
			got, created, err := svc.EnsureAccount(context.Background(), "user123")

			if tt.wantError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantBalance, got.Balance())
				assert.Equal(t, tt.wantCreated, created)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestCreditService_HasSufficientBalance(t *testing.T) {
	mockRepo := new(MockAccountRepository)
	mockRepo.On("FindByUserID", mock.Anything, "user123").Return(credit.MustNewAccount("user123", 1, 0), nil)

	svc := NewCreditService(mockRepo, DefaultStartingGrant)

	ok, err := svc.HasSufficientBalance(context.Background(), "user123", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasSufficientBalance(context.Background(), "user123", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreditService_ActionCost(t *testing.T) {
	svc := NewCreditService(new(MockAccountRepository), -5)
	assert.Equal(t, int64(0), svc.StartingGrant())

	cost, err := svc.ActionCost(credit.ActionTypeEmailLookup)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cost)

	_, err = svc.ActionCost(credit.ActionType("unknown"))
	assert.ErrorIs(t, err, credit.ErrInvalidActionType)
}
