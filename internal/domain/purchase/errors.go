package purchase

import "errors"

var (
	// ErrPurchaseNotFound 購入が見つからないエラー
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrPurchaseAlreadyProcessed 既に処理済みエラー
	ErrPurchaseAlreadyProcessed = errors.New("purchase already processed")
	// ErrInvalidPurchase 無効な購入エラー
	ErrInvalidPurchase = errors.New("invalid purchase")
	// ErrUnknownPackage 未知のクレジットパッケージ
	ErrUnknownPackage = errors.New("unknown credit package")
)
