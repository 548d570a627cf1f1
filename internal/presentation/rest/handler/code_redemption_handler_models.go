package handler

// RedeemCodeRequest コード引き換えリクエスト
// @Description コード引き換えリクエスト。user_idはトークンから取得する
type RedeemCodeRequest struct {
	Code string `json:"code" example:"WELCOME10"`
}

// RedeemCodeResponse コード引き換えレスポンス
// @Description コード引き換えレスポンス
type RedeemCodeResponse struct {
	RedemptionID string `json:"redemption_id" example:"5f0c9a4e-3b71-4c1d-8d6e-1e2f3a4b5c6d"`
	EntryID      string `json:"entry_id" example:"c3a4f2de-8f0e-4e0d-a0f4-2c8b9d6f7e11"`
	Code         string `json:"code" example:"WELCOME10"`
	Credits      int64  `json:"credits" example:"10"`
	BalanceAfter int64  `json:"balance_after" example:"13"`
}

// CreateCodeRequest 引き換えコード作成リクエスト
// @Description 引き換えコード作成リクエスト。max_usesが0の場合は無制限
type CreateCodeRequest struct {
	Code       string `json:"code" example:"WELCOME10"`
	CodeType   string `json:"code_type" example:"promotion" enums:"promotion,gift,event"`
	Credits    int64  `json:"credits" example:"10"`
	MaxUses    int    `json:"max_uses" example:"100"`
	ValidFrom  string `json:"valid_from" example:"2024-01-01T00:00:00Z"`
	ValidUntil string `json:"valid_until" example:"2024-12-31T23:59:59Z"`
}

// CodeResponse 引き換えコードレスポンス
// @Description 引き換えコードレスポンス
type CodeResponse struct {
	Code        string `json:"code" example:"WELCOME10"`
	CodeType    string `json:"code_type" example:"promotion"`
	Credits     int64  `json:"credits" example:"10"`
	MaxUses     int    `json:"max_uses" example:"100"`
	CurrentUses int    `json:"current_uses" example:"0"`
	ValidFrom   string `json:"valid_from" example:"2024-01-01T00:00:00Z"`
	ValidUntil  string `json:"valid_until" example:"2024-12-31T23:59:59Z"`
	Status      string `json:"status" example:"active" enums:"active,expired,disabled"`
	CreatedAt   string `json:"created_at" example:"2024-01-01T00:00:00Z"`
}
