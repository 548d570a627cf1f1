package usage

import (
	"context"
	"database/sql"
)

// EntryRepository 利用履歴リポジトリインターフェース
type EntryRepository interface {
	// Save 利用履歴を保存（txがnilの場合はトランザクション外）
	Save(ctx context.Context, tx *sql.Tx, entry *Entry) error

	// FindByIdempotencyKey 冪等キーで利用履歴を取得
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Entry, error)

	// FindByUserID ユーザーIDで利用履歴一覧を取得（ページネーション対応）
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*Entry, error)

	// CountByUserID ユーザーIDで利用履歴の件数を取得
	CountByUserID(ctx context.Context, userID string) (int, error)
}
