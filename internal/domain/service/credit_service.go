package service

import (
	"context"
	"errors"
	"fmt"

	"credit-ledger/internal/domain/credit"
)

// DefaultStartingGrant 新規ユーザーに付与される初期クレジット数
const DefaultStartingGrant int64 = 3

// CreditService クレジット関連のドメインサービス
type CreditService struct {
	accountRepo   credit.AccountRepository
	startingGrant int64
	costs         map[credit.ActionType]int64
}

// NewCreditService 新しいCreditServiceを作成
func NewCreditService(accountRepo credit.AccountRepository, startingGrant int64) *CreditService {
	if startingGrant < 0 {
		startingGrant = 0
	}
	return &CreditService{
		accountRepo:   accountRepo,
		startingGrant: startingGrant,
		costs: map[credit.ActionType]int64{
			credit.ActionTypeJobAnalysis:      1,
			credit.ActionTypeNetworkingSearch: 1,
			credit.ActionTypeEmailLookup:      1,
		},
	}
}

// StartingGrant 初期クレジット数を返す
func (s *CreditService) StartingGrant() int64 {
	return s.startingGrant
}

// ActionCost アクションの消費クレジット数を返す
func (s *CreditService) ActionCost(action credit.ActionType) (int64, error) {
	cost, ok := s.costs[action]
	if !ok {
		return 0, fmt.Errorf("%w: %s", credit.ErrInvalidActionType, action)
	}
	return cost, nil
}

// EnsureAccount アカウントを取得し、存在しない場合は初期クレジット付きで作成する
// 作成した場合はcreatedにtrueを返す
func (s *CreditService) EnsureAccount(ctx context.Context, userID string) (account *credit.Account, created bool, err error) {
	account, err = s.accountRepo.FindByUserID(ctx, userID)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, credit.ErrAccountNotFound) {
		return nil, false, err
	}

	account, err = credit.NewAccount(userID, s.startingGrant, 0)
	if err != nil {
		return nil, false, err
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	// 同時作成された場合に備えて再取得する
	stored, err := s.accountRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// HasSufficientBalance 指定されたクレジット数の残高があるかチェック
func (s *CreditService) HasSufficientBalance(ctx context.Context, userID string, amount int64) (bool, error) {
	account, _, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return false, err
	}
	return account.CanAfford(amount), nil
}
