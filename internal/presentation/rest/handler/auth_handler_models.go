package handler

// GenerateTokenRequest トークン生成リクエスト
// @Description トークン生成リクエスト
type GenerateTokenRequest struct {
	UserID     string `json:"user_id" example:"user123"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty" example:"3600"` // 省略時はサーバー設定の有効期限
}

// GenerateTokenResponse トークン生成レスポンス
// @Description トークン生成レスポンス
type GenerateTokenResponse struct {
	Token     string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJ1c2VyX2lkIjoidXNlcjEyMyJ9.signature"`
	TokenType string `json:"token_type" example:"Bearer"`
	ExpiresIn int64  `json:"expires_in" example:"86400"`
	ExpiresAt int64  `json:"expires_at" example:"1700086400"`
	Issuer    string `json:"issuer" example:"credit-ledger"`
}
