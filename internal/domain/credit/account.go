package credit

import (
	"regexp"
	"time"
)

const (
	// MaxBalance 最大残高 (10億クレジット)
	MaxBalance = 1_000_000_000
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// ValidUserID ユーザーIDの形式が正しいかを返す
func ValidUserID(userID string) bool {
	return userIDRegex.MatchString(userID)
}

// Account クレジットアカウントエンティティ
// 残高はサーバー側で権威を持ち、マイナスにはならない
type Account struct {
	userID    string
	balance   int64
	version   int // 楽観的ロック用
	createdAt time.Time
	updatedAt time.Time
}

// NewAccount 新しいAccountエンティティを作成
func NewAccount(userID string, balance int64, version int) (*Account, error) {
	if !ValidUserID(userID) {
		return nil, ErrInvalidUserID
	}
	if balance < 0 || balance > MaxBalance {
		return nil, ErrBalanceOutOfRange
	}
	now := time.Now()
	return &Account{
		userID:    userID,
		balance:   balance,
		version:   version,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructAccount 永続化層からAccountを復元
func ReconstructAccount(userID string, balance int64, version int, createdAt, updatedAt time.Time) *Account {
	return &Account{
		userID:    userID,
		balance:   balance,
		version:   version,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// UserID ユーザーIDを返す
func (a *Account) UserID() string {
	return a.userID
}

// Balance 残高を返す
func (a *Account) Balance() int64 {
	return a.balance
}

// Version バージョンを返す（楽観的ロック用）
func (a *Account) Version() int {
	return a.version
}

// CreatedAt 作成日時を返す
func (a *Account) CreatedAt() time.Time {
	return a.createdAt
}

// UpdatedAt 更新日時を返す
func (a *Account) UpdatedAt() time.Time {
	return a.updatedAt
}

// CanAfford 指定されたクレジット数を消費できるかを返す
func (a *Account) CanAfford(amount int64) bool {
	return amount > 0 && a.balance >= amount
}

// Grant クレジットを付与する
func (a *Account) Grant(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	// オーバーフローチェック
	if a.balance > MaxBalance-amount {
		return ErrBalanceOutOfRange
	}
	a.balance += amount
	a.version++
	a.updatedAt = time.Now()
	return nil
}

// Consume クレジットを消費する（マイナス残高は許可しない）
func (a *Account) Consume(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.balance < amount {
		return ErrInsufficientBalance
	}
	a.balance -= amount
	a.version++
	a.updatedAt = time.Now()
	return nil
}

// MustNewAccount テスト用ヘルパー: NewAccountを呼び出し、エラーが発生した場合はpanicする
func MustNewAccount(userID string, balance int64, version int) *Account {
	a, err := NewAccount(userID, balance, version)
	if err != nil {
		panic(err)
	}
	return a
}
