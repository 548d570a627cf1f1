package middleware

import (
	"net/http"

	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
)

// ContextKeyUserID 認証済みユーザーIDをecho.Contextに格納するキー
const ContextKeyUserID = "user_id"

// AuthMiddleware JWT認証ミドルウェア
// 検証したuser_idはecho.Contextとリクエストのcontext.Contextの両方に設定する
func AuthMiddleware(cfg *config.JWTConfig, logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				logger.Warn(ctx, "Missing authorization header", nil)
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "Missing authorization header",
				})
			}

			tokenString, err := identity.BearerToken(authHeader)
			if err != nil {
				logger.Warn(ctx, "Invalid authorization header format", nil)
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "Invalid authorization header format",
				})
			}

			userID, err := identity.ParseUserID(cfg.Secret, tokenString)
			if err != nil {
				logger.Warn(ctx, "Invalid token", map[string]interface{}{
					"error": err.Error(),
				})
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "Invalid or expired token",
				})
			}

			c.Set(ContextKeyUserID, userID)
			c.SetRequest(c.Request().WithContext(identity.WithUserID(ctx, userID)))

			return next(c)
		}
	}
}

// UserID AuthMiddlewareが設定したユーザーIDを返す
func UserID(c echo.Context) (string, bool) {
	userID, ok := c.Get(ContextKeyUserID).(string)
	return userID, ok && userID != ""
}
