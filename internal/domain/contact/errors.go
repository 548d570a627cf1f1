package contact

import "errors"

var (
	// ErrInvalidName 名前が空または使用できない文字のみ
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidDomain ドメインが不正
	ErrInvalidDomain = errors.New("invalid domain")
)
