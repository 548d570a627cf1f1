package handler

// UsageEntryItem 利用履歴アイテム
// @Description 利用履歴アイテム。付与はamountが正、消費は負ではなくentry_typeで区別する
type UsageEntryItem struct {
	EntryID        string `json:"entry_id" example:"c3a4f2de-8f0e-4e0d-a0f4-2c8b9d6f7e11"`
	EntryType      string `json:"entry_type" example:"consume" enums:"consume,grant,purchase,redeem"`
	Amount         int64  `json:"amount" example:"1"`
	BalanceBefore  int64  `json:"balance_before" example:"3"`
	BalanceAfter   int64  `json:"balance_after" example:"2"`
	Status         string `json:"status" example:"completed" enums:"completed,rejected"`
	Action         string `json:"action,omitempty" example:"job_analysis"`
	IdempotencyKey string `json:"idempotency_key,omitempty" example:"0b8f7c1e-4a52-4a0e-9a53-1f7c8f3f1f2a"`
	Reference      string `json:"reference,omitempty" example:"ord_20240101_0001"`
	AuditEmail     string `json:"audit_email,omitempty" example:"jane@example.com"`
	CreatedAt      string `json:"created_at" example:"2024-01-01T12:00:00Z"`
}

// UsageHistoryResponse 利用履歴レスポンス
// @Description 利用履歴レスポンス。totalはフィルタ前の件数
type UsageHistoryResponse struct {
	Entries []UsageEntryItem `json:"entries"`
	Total   int              `json:"total" example:"1"`
	Limit   int              `json:"limit" example:"50"`
	Offset  int              `json:"offset" example:"0"`
}
