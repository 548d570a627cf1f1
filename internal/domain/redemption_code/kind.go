package redemption_code

import (
	"fmt"
)

// CodeType コードの配布経路を表す値オブジェクト
type CodeType string

const (
	CodeTypePromotion CodeType = "promotion" // キャンペーン
	CodeTypeGift      CodeType = "gift"      // ギフト
	CodeTypeEvent     CodeType = "event"     // イベント配布
)

// NewCodeType 新しいCodeTypeを作成
func NewCodeType(s string) (CodeType, error) {
	ct := CodeType(s)
	if !ct.Valid() {
		return "", fmt.Errorf("%w: unknown code type %s", ErrInvalidCode, s)
	}
	return ct, nil
}

// String 文字列表現を返す
func (ct CodeType) String() string {
	return string(ct)
}

// Valid 有効なコードタイプかどうかを返す
func (ct CodeType) Valid() bool {
	return ct == CodeTypePromotion || ct == CodeTypeGift || ct == CodeTypeEvent
}

// CodeStatus コードの状態を表す値オブジェクト
type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusExpired  CodeStatus = "expired"
	CodeStatusDisabled CodeStatus = "disabled"
)

// NewCodeStatus 新しいCodeStatusを作成
func NewCodeStatus(s string) (CodeStatus, error) {
	cs := CodeStatus(s)
	switch cs {
	case CodeStatusActive, CodeStatusExpired, CodeStatusDisabled:
		return cs, nil
	default:
		return "", fmt.Errorf("invalid code status: %s", s)
	}
}

// String 文字列表現を返す
func (cs CodeStatus) String() string {
	return string(cs)
}

// IsActive 有効状態かどうかを返す
func (cs CodeStatus) IsActive() bool {
	return cs == CodeStatusActive
}
