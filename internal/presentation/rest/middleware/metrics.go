package middleware

import (
	"errors"
	"net/http"
	"time"

	otelinfra "credit-ledger/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
)

// MetricsMiddleware メトリクス記録ミドルウェア
func MetricsMiddleware(metrics *otelinfra.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()

			// パスはルート定義（/api/v1/service/credits/:user_id など）で記録し、カーディナリティを抑える
			metrics.RecordRequest(ctx, c.Request().Method, c.Path())

			err := next(c)

			metrics.RecordResponseTime(ctx, c.Request().Method, c.Path(), time.Since(start).Seconds())

			// 4xx, 5xxの場合のみエラーとして記録
			if errorType := errorClass(responseStatus(c, err)); errorType != "" {
				metrics.RecordError(ctx, errorType)
			}

			return err
		}
	}
}

// responseStatus ハンドラーの結果からレスポンスステータスを決める
// エラーがまだレスポンスに書き込まれていない場合はエラーから推定する
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}

func errorClass(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}
