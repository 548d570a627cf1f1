package credit

import (
	"context"
	"database/sql"
)

// AccountRepository クレジットアカウントリポジトリインターフェース
// txがnilの場合はトランザクション外で実行される
type AccountRepository interface {
	// FindByUserID ユーザーIDでアカウントを取得
	FindByUserID(ctx context.Context, userID string) (*Account, error)

	// Create 新しいアカウントを作成（既に存在する場合は何もしない）
	Create(ctx context.Context, account *Account) error

	// Save アカウントを保存（更新、楽観的ロック対応）
	Save(ctx context.Context, tx *sql.Tx, account *Account) error

	// DecrementIfSufficient 残高が足りる場合のみ原子的に減算する
	// 減算後（拒否時は現在）の残高と、減算されたかどうかを返す
	DecrementIfSufficient(ctx context.Context, tx *sql.Tx, userID string, amount int64) (balance int64, applied bool, err error)
}
