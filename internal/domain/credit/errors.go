package credit

import "errors"

var (
	// ErrInsufficientBalance 残高不足エラー
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount 無効なクレジット数エラー
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidUserID ユーザーIDが無効
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrBalanceOutOfRange 残高が範囲外
	ErrBalanceOutOfRange = errors.New("balance out of range")
	// ErrAccountNotFound アカウントが見つからないエラー
	ErrAccountNotFound = errors.New("credit account not found")
	// ErrVersionConflict 楽観的ロックの競合エラー
	ErrVersionConflict = errors.New("credit account version conflict")
	// ErrInvalidActionType 無効なアクションタイプ
	ErrInvalidActionType = errors.New("invalid action type")
)
