package usage

import (
	"fmt"
)

// EntryType 利用履歴タイプを表す値オブジェクト
type EntryType string

const (
	EntryTypeConsume  EntryType = "consume"  // 有料アクションによる消費
	EntryTypeGrant    EntryType = "grant"    // 初期付与や手動付与
	EntryTypePurchase EntryType = "purchase" // 購入による付与
	EntryTypeRedeem   EntryType = "redeem"   // コード引き換えによる付与
)

// NewEntryType 新しいEntryTypeを作成
func NewEntryType(s string) (EntryType, error) {
	switch s {
	case "consume", "grant", "purchase", "redeem":
		return EntryType(s), nil
	default:
		return "", fmt.Errorf("invalid usage entry type: %s", s)
	}
}

// String 文字列表現を返す
func (et EntryType) String() string {
	return string(et)
}

// Valid 有効な利用履歴タイプかどうかを返す
func (et EntryType) Valid() bool {
	switch et {
	case EntryTypeConsume, EntryTypeGrant, EntryTypePurchase, EntryTypeRedeem:
		return true
	default:
		return false
	}
}

// IsCredit 残高を増やすタイプかどうかを返す
func (et EntryType) IsCredit() bool {
	return et == EntryTypeGrant || et == EntryTypePurchase || et == EntryTypeRedeem
}
