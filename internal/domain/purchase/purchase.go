package purchase

import (
	"time"

	"credit-ledger/internal/domain/credit"
)

// Status 購入ステータス
type Status string

const (
	StatusPending   Status = "pending"   // 決済プロバイダからの確認待ち
	StatusCompleted Status = "completed" // クレジット付与済み
	StatusFailed    Status = "failed"    // 失敗
)

// String 文字列表現を返す
func (s Status) String() string {
	return string(s)
}

// Purchase 外部チェックアウトで確定したクレジット購入エンティティ
// orderIDごとに一度だけ付与される
type Purchase struct {
	orderID   string
	userID    string
	packageID string
	credits   int64
	status    Status
	createdAt time.Time
	updatedAt time.Time
}

// NewPurchase 新しいPurchaseエンティティを作成
func NewPurchase(orderID, userID, packageID string, credits int64) (*Purchase, error) {
	if orderID == "" || packageID == "" {
		return nil, ErrInvalidPurchase
	}
	if !credit.ValidUserID(userID) {
		return nil, credit.ErrInvalidUserID
	}
	if credits <= 0 {
		return nil, credit.ErrInvalidAmount
	}
	now := time.Now()
	return &Purchase{
		orderID:   orderID,
		userID:    userID,
		packageID: packageID,
		credits:   credits,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructPurchase 永続化層からPurchaseを復元
func ReconstructPurchase(orderID, userID, packageID string, credits int64, status Status, createdAt, updatedAt time.Time) *Purchase {
	return &Purchase{
		orderID:   orderID,
		userID:    userID,
		packageID: packageID,
		credits:   credits,
		status:    status,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// OrderID 注文IDを返す
func (p *Purchase) OrderID() string {
	return p.orderID
}

// UserID ユーザーIDを返す
func (p *Purchase) UserID() string {
	return p.userID
}

// PackageID パッケージIDを返す
func (p *Purchase) PackageID() string {
	return p.packageID
}

// Credits 付与クレジット数を返す
func (p *Purchase) Credits() int64 {
	return p.credits
}

// Status ステータスを返す
func (p *Purchase) Status() Status {
	return p.status
}

// CreatedAt 作成日時を返す
func (p *Purchase) CreatedAt() time.Time {
	return p.createdAt
}

// UpdatedAt 更新日時を返す
func (p *Purchase) UpdatedAt() time.Time {
	return p.updatedAt
}

// Complete 購入を完了状態にする
func (p *Purchase) Complete() error {
	if p.status == StatusCompleted {
		return ErrPurchaseAlreadyProcessed
	}
	p.status = StatusCompleted
	p.updatedAt = time.Now()
	return nil
}

// Fail 購入を失敗状態にする
func (p *Purchase) Fail() {
	p.status = StatusFailed
	p.updatedAt = time.Now()
}

// IsCompleted 完了状態かどうかを返す
func (p *Purchase) IsCompleted() bool {
	return p.status == StatusCompleted
}

// MustNewPurchase テスト用ヘルパー
func MustNewPurchase(orderID, userID, packageID string, credits int64) *Purchase {
	p, err := NewPurchase(orderID, userID, packageID, credits)
	if err != nil {
		panic(err)
	}
	return p
}
