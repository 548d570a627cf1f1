package auth

import "time"

// GenerateTokenRequest 開発用IDプロバイダへのトークン発行要求
type GenerateTokenRequest struct {
	UserID string
	// TTL 0以下なら設定の有効期限を使い、設定値を超える指定は設定値に切り詰める
	TTL time.Duration
}

// GenerateTokenResponse 発行したトークンと、その主張の要約
type GenerateTokenResponse struct {
	Token     string
	TokenType string // "Bearer"
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn 発行時点からの有効秒数
func (r *GenerateTokenResponse) ExpiresIn() int64 {
	return int64(r.ExpiresAt.Sub(r.IssuedAt) / time.Second)
}
