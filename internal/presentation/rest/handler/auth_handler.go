package handler

import (
	"context"
	"net/http"
	"time"

	authapp "credit-ledger/internal/application/auth"

	"github.com/labstack/echo/v4"
)

// AuthService ハンドラーが利用するトークン発行サービス
type AuthService interface {
	GenerateToken(ctx context.Context, req *authapp.GenerateTokenRequest) (*authapp.GenerateTokenResponse, error)
}

// AuthHandler 認証関連ハンドラー
type AuthHandler struct {
	authService AuthService
}

// NewAuthHandler 新しいAuthHandlerを作成
func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// GenerateToken トークン生成ハンドラー
// @Summary 認証トークンを生成
// @Description 開発用のIDプロバイダ。ユーザーIDを元にJWT認証トークンを生成します
// @Tags auth
// @Accept json
// @Produce json
// @Param request body GenerateTokenRequest true "トークン生成リクエスト"
// @Success 200 {object} GenerateTokenResponse "トークン生成成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Router /auth/token [post]
func (h *AuthHandler) GenerateToken(c echo.Context) error {
	var reqBody GenerateTokenRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if reqBody.TTLSeconds < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ttl_seconds must not be negative")
	}

	resp, err := h.authService.GenerateToken(c.Request().Context(), &authapp.GenerateTokenRequest{
		UserID: reqBody.UserID,
		TTL:    time.Duration(reqBody.TTLSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, GenerateTokenResponse{
		Token:     resp.Token,
		TokenType: resp.TokenType,
		ExpiresIn: resp.ExpiresIn(),
		ExpiresAt: resp.ExpiresAt.Unix(),
		Issuer:    resp.Issuer,
	})
}
