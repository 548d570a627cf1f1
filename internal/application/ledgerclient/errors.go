package ledgerclient

import (
	"context"
	"errors"
)

var (
	// ErrInvalidUserID ユーザーIDが空
	ErrInvalidUserID = errors.New("user id is required")
	// ErrInvalidAmount 消費クレジット数が正の整数でない
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrNegativeBalance キャッシュにマイナス残高を書き込もうとした
	ErrNegativeBalance = errors.New("balance must not be negative")
	// ErrAuthTokenUnavailable 認証トークンがなく匿名アクセスも許可されていない
	ErrAuthTokenUnavailable = errors.New("auth token unavailable")
	// ErrUnauthorized リモート台帳が認証情報を拒否した
	ErrUnauthorized = errors.New("ledger rejected credentials")
	// ErrMalformedResponse リモート台帳のレスポンスが不正
	ErrMalformedResponse = errors.New("malformed ledger response")
	// ErrServerError リモート台帳の5xxエラー
	ErrServerError = errors.New("ledger server error")
	// ErrRejected 残高不足以外の理由でリモート台帳が消費を拒否した
	ErrRejected = errors.New("ledger rejected consumption")
)

// classify 一時的エラーの原因からエラーコードを決定
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ErrAuthTokenUnavailable), errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrMalformedResponse):
		return CodeMalformedResponse
	case errors.Is(err, ErrServerError):
		return CodeServerError
	case errors.Is(err, ErrRejected):
		return CodeRejected
	default:
		return CodeNetworkError
	}
}
