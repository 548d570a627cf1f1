package history

import "credit-ledger/internal/domain/usage"

// GetUsageHistoryRequest 利用履歴取得リクエスト
type GetUsageHistoryRequest struct {
	UserID    string
	Limit     int
	Offset    int
	EntryType string // optional: "consume", "grant", "purchase", "redeem"
}

// GetUsageHistoryResponse 利用履歴取得レスポンス
type GetUsageHistoryResponse struct {
	Entries []*usage.Entry
	Total   int
	Limit   int
	Offset  int
}
