package code_redemption

import (
	"time"
)

// RedeemCodeRequest コード引き換えリクエスト
type RedeemCodeRequest struct {
	Code   string
	UserID string
}

// RedeemCodeResponse コード引き換えレスポンス
type RedeemCodeResponse struct {
	RedemptionID string
	EntryID      string
	Code         string
	Credits      int64
	BalanceAfter int64
}

// CreateCodeRequest 引き換えコード作成リクエスト
type CreateCodeRequest struct {
	Code       string
	CodeType   string
	Credits    int64
	MaxUses    int
	ValidFrom  time.Time
	ValidUntil time.Time
}

// CodeResponse 引き換えコードの表示用レスポンス
type CodeResponse struct {
	Code        string
	CodeType    string
	Credits     int64
	MaxUses     int
	CurrentUses int
	ValidFrom   time.Time
	ValidUntil  time.Time
	Status      string
	CreatedAt   time.Time
}

// GetCodeRequest 引き換えコード取得リクエスト
type GetCodeRequest struct {
	Code string
}
