package ledgerclient

import (
	"context"

	"credit-ledger/internal/domain/credit"
)

// ReasonInsufficientFunds リモート台帳が残高不足で拒否した場合の理由
const ReasonInsufficientFunds = "insufficient_funds"

// RemoteConsumeRequest リモート台帳への減算リクエスト
type RemoteConsumeRequest struct {
	UserID         string
	Amount         int64
	Action         credit.ActionType
	IdempotencyKey string
	AuditEmail     string
	// AuthToken 空の場合は匿名（サービスAPIキー）経路を使う
	AuthToken string
}

// RemoteConsumeResponse リモート台帳からの減算レスポンス
type RemoteConsumeResponse struct {
	Success    bool
	NewBalance int64
	Reason     string
	// Balance 拒否時にサーバーが返した現在残高
	Balance *int64
}

// Remote リモート台帳サービスのRPC
type Remote interface {
	// Consume 権威ある減算を1回だけ試みる
	Consume(ctx context.Context, req RemoteConsumeRequest) (*RemoteConsumeResponse, error)
	// GetBalance 権威ある残高を取得
	GetBalance(ctx context.Context, userID, authToken string) (int64, error)
}
