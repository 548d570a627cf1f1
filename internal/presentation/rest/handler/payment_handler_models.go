package handler

// PurchaseWebhookRequest 購入確定Webhookリクエスト
// @Description 決済プロバイダのチェックアウト完了通知
type PurchaseWebhookRequest struct {
	OrderID   string `json:"order_id" example:"ord_20240101_0001"`
	UserID    string `json:"user_id" example:"user123"`
	PackageID string `json:"package_id" example:"starter" enums:"starter,pro,max"`
}

// PurchaseWebhookResponse 購入確定Webhookレスポンス
// @Description 同じorder_idの再送ではalready_processed=trueで最初の結果を返す
type PurchaseWebhookResponse struct {
	OrderID          string `json:"order_id" example:"ord_20240101_0001"`
	UserID           string `json:"user_id" example:"user123"`
	PackageID        string `json:"package_id" example:"starter"`
	Credits          int64  `json:"credits" example:"10"`
	EntryID          string `json:"entry_id,omitempty" example:"c3a4f2de-8f0e-4e0d-a0f4-2c8b9d6f7e11"`
	BalanceAfter     int64  `json:"balance_after" example:"13"`
	AlreadyProcessed bool   `json:"already_processed" example:"false"`
}
