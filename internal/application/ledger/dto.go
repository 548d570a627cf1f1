package ledger

import (
	"database/sql"

	"credit-ledger/internal/domain/usage"
)

// GetBalanceRequest 残高取得リクエスト
type GetBalanceRequest struct {
	UserID string
}

// GetBalanceResponse 残高取得レスポンス
type GetBalanceResponse struct {
	UserID  string
	Balance int64
}

// ConsumeRequest クレジット消費リクエスト
type ConsumeRequest struct {
	UserID         string
	Amount         int64
	Action         string
	IdempotencyKey string
	AuditEmail     string
}

// ConsumeResponse クレジット消費レスポンス
// 残高不足はエラーではなくSuccess=falseで返す
type ConsumeResponse struct {
	Success    bool
	NewBalance int64  // Success時の残高
	Reason     string // 拒否理由
	Balance    int64  // 拒否時の現在の残高
	EntryID    string
	Replayed   bool // 冪等キーによる再送で、再度課金していない
}

// ReasonInsufficientFunds 残高不足による拒否理由
const ReasonInsufficientFunds = "insufficient_funds"

// GrantRequest クレジット付与リクエスト
type GrantRequest struct {
	UserID    string
	Amount    int64
	Type      usage.EntryType // grant, purchase, redeemのいずれか
	Reference string          // 注文IDや引き換えコード
}

// GrantResponse クレジット付与レスポンス
type GrantResponse struct {
	EntryID      string
	BalanceAfter int64
}

// AttachFunc 付与と同じトランザクションで実行する追加の書き込み
// entryIDは作成される利用履歴のID
type AttachFunc func(tx *sql.Tx, entryID string) error
