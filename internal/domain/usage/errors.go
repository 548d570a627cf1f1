package usage

import "errors"

var (
	// ErrEntryNotFound 利用履歴が見つからないエラー
	ErrEntryNotFound = errors.New("usage entry not found")
	// ErrInvalidEntryID 利用履歴IDが無効
	ErrInvalidEntryID = errors.New("invalid usage entry id")
	// ErrInvalidUserID ユーザーIDが無効
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidAmount クレジット数が無効
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrBalanceOutOfRange 残高が範囲外
	ErrBalanceOutOfRange = errors.New("balance out of range")
	// ErrDuplicateIdempotencyKey 冪等キーの重複エラー
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)
