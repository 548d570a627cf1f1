package handler

import restmiddleware "credit-ledger/internal/presentation/rest/middleware"

// ErrorResponse エラーレスポンス
// @Description エラーレスポンス
type ErrorResponse = restmiddleware.ErrorResponse

// ConsumeCreditRequest クレジット消費リクエスト
// @Description クレジット消費リクエスト。ユーザー経路ではuser_idは省略可能で、指定する場合はトークンと一致する必要がある
type ConsumeCreditRequest struct {
	UserID         string `json:"user_id,omitempty" example:"user123"`
	Amount         int64  `json:"amount" example:"1"`
	Action         string `json:"action" example:"job_analysis" enums:"job_analysis,networking_search,email_lookup"`
	IdempotencyKey string `json:"idempotency_key" example:"0b8f7c1e-4a52-4a0e-9a53-1f7c8f3f1f2a"`
	AuditEmail     string `json:"audit_email,omitempty" example:"jane@example.com"`
}

// ConsumeCreditResponse クレジット消費レスポンス
// @Description 成功時は{success:true,new_balance}、残高不足時は{success:false,reason,balance}
type ConsumeCreditResponse struct {
	Success    bool   `json:"success" example:"true"`
	NewBalance *int64 `json:"new_balance,omitempty" example:"2"`
	Reason     string `json:"reason,omitempty" example:"insufficient_funds"`
	Balance    *int64 `json:"balance,omitempty" example:"0"`
	EntryID    string `json:"entry_id,omitempty" example:"c3a4f2de-8f0e-4e0d-a0f4-2c8b9d6f7e11"`
	Replayed   bool   `json:"replayed,omitempty" example:"false"`
}

// BalanceResponse 残高レスポンス
// @Description 残高レスポンス
type BalanceResponse struct {
	UserID  string `json:"user_id" example:"user123"`
	Balance int64  `json:"balance" example:"3"`
}
