package redemption_code

import (
	"context"
	"database/sql"
	"time"
)

// CodeRedemption コード引き換え履歴エンティティ
type CodeRedemption struct {
	redemptionID string
	code         string
	userID       string
	entryID      string // 付与時の利用履歴ID
	redeemedAt   time.Time
}

// NewCodeRedemption 新しいCodeRedemptionエンティティを作成
func NewCodeRedemption(redemptionID, code, userID, entryID string) *CodeRedemption {
	return &CodeRedemption{
		redemptionID: redemptionID,
		code:         code,
		userID:       userID,
		entryID:      entryID,
		redeemedAt:   time.Now(),
	}
}

// RedemptionID 引き換えIDを返す
func (cr *CodeRedemption) RedemptionID() string {
	return cr.redemptionID
}

// Code コードを返す
func (cr *CodeRedemption) Code() string {
	return cr.code
}

// UserID ユーザーIDを返す
func (cr *CodeRedemption) UserID() string {
	return cr.userID
}

// EntryID 利用履歴IDを返す
func (cr *CodeRedemption) EntryID() string {
	return cr.entryID
}

// RedeemedAt 引き換え日時を返す
func (cr *CodeRedemption) RedeemedAt() time.Time {
	return cr.redeemedAt
}

// RedemptionCodeRepository 引き換えコードリポジトリインターフェース
type RedemptionCodeRepository interface {
	// FindByCode コードで引き換えコードを取得
	FindByCode(ctx context.Context, code string) (*RedemptionCode, error)

	// Create 引き換えコードを新規作成
	// 同じコードが存在する場合はErrCodeAlreadyExistsを返す
	Create(ctx context.Context, code *RedemptionCode) error

	// Update 引き換えコードの使用回数とステータスを更新
	Update(ctx context.Context, tx *sql.Tx, code *RedemptionCode) error

	// HasUserRedeemed ユーザーが既にこのコードを引き換え済みかチェック
	HasUserRedeemed(ctx context.Context, code string, userID string) (bool, error)

	// SaveRedemption 引き換え履歴を保存
	SaveRedemption(ctx context.Context, tx *sql.Tx, redemption *CodeRedemption) error
}
