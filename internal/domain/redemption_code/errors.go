package redemption_code

import "errors"

var (
	// ErrCodeNotFound 引き換えコードが見つからないエラー
	ErrCodeNotFound = errors.New("code not found")
	// ErrCodeAlreadyExists 同じコードが既に存在するエラー
	ErrCodeAlreadyExists = errors.New("code already exists")
	// ErrInvalidCode 不正な引き換えコード
	ErrInvalidCode = errors.New("invalid code")
	// ErrCodeExpired 引き換えコードが期限切れエラー
	ErrCodeExpired = errors.New("code expired")
	// ErrCodeNotYetValid 引き換えコードの有効期間前エラー
	ErrCodeNotYetValid = errors.New("code not yet valid")
	// ErrCodeDisabled 引き換えコードが無効化されているエラー
	ErrCodeDisabled = errors.New("code disabled")
	// ErrCodeMaxUsesReached 引き換えコードの使用上限に達しているエラー
	ErrCodeMaxUsesReached = errors.New("code max uses reached")
	// ErrUserAlreadyRedeemed ユーザーが既にこのコードを引き換え済みエラー
	ErrUserAlreadyRedeemed = errors.New("user already redeemed")
)
