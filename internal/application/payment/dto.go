package payment

// ConfirmPurchaseRequest 購入確定リクエスト（決済プロバイダのWebhookから）
type ConfirmPurchaseRequest struct {
	OrderID   string
	UserID    string
	PackageID string
}

// ConfirmPurchaseResponse 購入確定レスポンス
type ConfirmPurchaseResponse struct {
	OrderID          string
	UserID           string
	PackageID        string
	Credits          int64
	EntryID          string
	BalanceAfter     int64
	AlreadyProcessed bool
}
