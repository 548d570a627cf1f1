package purchase

import (
	"context"
	"database/sql"
)

// PurchaseRepository 購入リポジトリインターフェース
type PurchaseRepository interface {
	// Save 購入を新規保存する
	// 同じ注文IDが既に存在する場合はErrPurchaseAlreadyProcessedを返す
	Save(ctx context.Context, tx *sql.Tx, purchase *Purchase) error

	// FindByOrderID 注文IDで購入を取得
	FindByOrderID(ctx context.Context, orderID string) (*Purchase, error)
}
