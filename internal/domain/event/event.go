package event

import (
	"context"
	"time"
)

// Kind 残高変更の種類
type Kind string

const (
	KindConsumed  Kind = "consumed"  // 有料アクションでの消費
	KindRejected  Kind = "rejected"  // 残高不足による拒否
	KindGranted   Kind = "granted"   // 初期付与などの付与
	KindPurchased Kind = "purchased" // 購入確定
	KindRedeemed  Kind = "redeemed"  // コード引き換え
)

// SubjectBalanceChanged 残高変更イベントのサブジェクト
const SubjectBalanceChanged = "ledger.balance.changed"

// BalanceChanged 残高変更ドメインイベント
type BalanceChanged struct {
	UserID         string    `json:"user_id"`
	Kind           Kind      `json:"kind"`
	Delta          int64     `json:"delta"`
	Balance        int64     `json:"balance"`
	Action         string    `json:"action,omitempty"`
	AuditEmail     string    `json:"audit_email,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Reference      string    `json:"reference,omitempty"`
	EntryID        string    `json:"entry_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// IsCredit 残高が増えるイベントかどうかを返す
func (e BalanceChanged) IsCredit() bool {
	return e.Kind == KindGranted || e.Kind == KindPurchased || e.Kind == KindRedeemed
}

// Publisher ドメインイベントの発行インターフェース
type Publisher interface {
	PublishBalanceChanged(ctx context.Context, e BalanceChanged) error
}

// NopPublisher 何もしないPublisher（メッセージングが無効な環境用）
type NopPublisher struct{}

// PublishBalanceChanged 何もしない
func (NopPublisher) PublishBalanceChanged(context.Context, BalanceChanged) error {
	return nil
}
