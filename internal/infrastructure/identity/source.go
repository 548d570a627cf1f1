package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoToken トークンが取得できない
var ErrNoToken = errors.New("no auth token available")

// StaticSource 設定または環境変数で与えられたトークンを返す
type StaticSource struct {
	token string
}

// NewStaticSource 新しいStaticSourceを作成
func NewStaticSource(token string) *StaticSource {
	return &StaticSource{token: strings.TrimSpace(token)}
}

// Token トークンを返す
func (s *StaticSource) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// JWTSource 共有シークレットでローカルにトークンを発行する（開発用）
// 期限の手前まではキャッシュしたトークンを返す
type JWTSource struct {
	secret string
	issuer string
	userID string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewJWTSource 新しいJWTSourceを作成
func NewJWTSource(secret, issuer, userID string, ttl time.Duration) *JWTSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTSource{
		secret: secret,
		issuer: issuer,
		userID: userID,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Token トークンを返す
func (s *JWTSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(time.Minute).Before(s.expiresAt) {
		return s.cached, nil
	}
	token, err := Mint(s.secret, s.issuer, s.userID, s.ttl, now)
	if err != nil {
		return "", err
	}
	s.cached = token
	s.expiresAt = now.Add(s.ttl)
	return token, nil
}

// ServerSource 台帳サービスの /api/v1/auth/token からトークンを取得する
type ServerSource struct {
	baseURL string
	userID  string
	client  *http.Client
	now     func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewServerSource 新しいServerSourceを作成
func NewServerSource(baseURL, userID string, client *http.Client) *ServerSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ServerSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		client:  client,
		now:     time.Now,
	}
}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	TokenType string `json:"token_type"`
}

// Token トークンを返す
func (s *ServerSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(time.Minute).Before(s.expiresAt) {
		return s.cached, nil
	}

	body, err := json.Marshal(tokenRequest{UserID: s.userID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrNoToken, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Token == "" {
		return "", ErrNoToken
	}

	s.cached = tr.Token
	s.expiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return tr.Token, nil
}

// Forget キャッシュしたトークンを破棄する（サインアウト時）
func (s *ServerSource) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = ""
	s.expiresAt = time.Time{}
}
