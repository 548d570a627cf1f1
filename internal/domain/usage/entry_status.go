package usage

import (
	"fmt"
)

// EntryStatus 利用履歴ステータスを表す値オブジェクト
type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "completed" // 残高に反映済み
	EntryStatusRejected  EntryStatus = "rejected"  // 残高不足で拒否
)

// NewEntryStatus 新しいEntryStatusを作成
func NewEntryStatus(s string) (EntryStatus, error) {
	switch s {
	case "completed", "rejected":
		return EntryStatus(s), nil
	default:
		return "", fmt.Errorf("invalid usage entry status: %s", s)
	}
}

// String 文字列表現を返す
func (es EntryStatus) String() string {
	return string(es)
}

// Valid 有効なステータスかどうかを返す
func (es EntryStatus) Valid() bool {
	return es == EntryStatusCompleted || es == EntryStatusRejected
}

// IsCompleted 完了状態かどうかを返す
func (es EntryStatus) IsCompleted() bool {
	return es == EntryStatusCompleted
}
