package middleware

import (
	"context"
	"errors"
	"net/http"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/purchase"
	"credit-ledger/internal/domain/redemption_code"
	"credit-ledger/internal/domain/usage"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
)

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// domainError ドメインエラーとHTTPレスポンスの対応
type domainError struct {
	err    error
	status int
	kind   string
	code   string
}

// domainErrors 上から順にerrors.Isで判定する
var domainErrors = []domainError{
	{err: credit.ErrInsufficientBalance, status: http.StatusConflict, kind: "insufficient_balance"},
	{err: credit.ErrInvalidAmount, status: http.StatusBadRequest, kind: "invalid_amount"},
	{err: usage.ErrInvalidAmount, status: http.StatusBadRequest, kind: "invalid_amount"},
	{err: credit.ErrInvalidUserID, status: http.StatusBadRequest, kind: "invalid_user_id"},
	{err: usage.ErrInvalidUserID, status: http.StatusBadRequest, kind: "invalid_user_id"},
	{err: credit.ErrInvalidActionType, status: http.StatusBadRequest, kind: "invalid_action"},
	{err: credit.ErrBalanceOutOfRange, status: http.StatusUnprocessableEntity, kind: "balance_out_of_range"},
	{err: usage.ErrBalanceOutOfRange, status: http.StatusUnprocessableEntity, kind: "balance_out_of_range"},
	{err: credit.ErrAccountNotFound, status: http.StatusNotFound, kind: "account_not_found"},
	{err: credit.ErrVersionConflict, status: http.StatusConflict, kind: "version_conflict"},
	{err: usage.ErrEntryNotFound, status: http.StatusNotFound, kind: "usage_entry_not_found"},
	{err: usage.ErrDuplicateIdempotencyKey, status: http.StatusConflict, kind: "duplicate_idempotency_key"},
	{err: purchase.ErrPurchaseNotFound, status: http.StatusNotFound, kind: "purchase_not_found"},
	{err: purchase.ErrPurchaseAlreadyProcessed, status: http.StatusConflict, kind: "purchase_already_processed"},
	{err: purchase.ErrInvalidPurchase, status: http.StatusBadRequest, kind: "invalid_purchase"},
	{err: purchase.ErrUnknownPackage, status: http.StatusBadRequest, kind: "unknown_package"},
	{err: redemption_code.ErrCodeNotFound, status: http.StatusNotFound, kind: "code_not_found"},
	{err: redemption_code.ErrCodeAlreadyExists, status: http.StatusConflict, kind: "code_already_exists"},
	{err: redemption_code.ErrInvalidCode, status: http.StatusBadRequest, kind: "invalid_code"},
	{err: redemption_code.ErrCodeExpired, status: http.StatusBadRequest, kind: "code_not_redeemable", code: "code_expired"},
	{err: redemption_code.ErrCodeNotYetValid, status: http.StatusBadRequest, kind: "code_not_redeemable", code: "code_not_yet_valid"},
	{err: redemption_code.ErrCodeDisabled, status: http.StatusBadRequest, kind: "code_not_redeemable", code: "code_disabled"},
	{err: redemption_code.ErrCodeMaxUsesReached, status: http.StatusBadRequest, kind: "code_not_redeemable", code: "code_max_uses_reached"},
	{err: redemption_code.ErrUserAlreadyRedeemed, status: http.StatusBadRequest, kind: "user_already_redeemed"},
}

// ErrorHandlerMiddleware エラーハンドリングミドルウェア
func ErrorHandlerMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			return handleError(c, err, logger)
		}
	}
}

// handleError エラーを処理して適切なHTTPレスポンスを返す
func handleError(c echo.Context, err error, logger *otelinfra.Logger) error {
	ctx := c.Request().Context()

	for _, de := range domainErrors {
		if errors.Is(err, de.err) {
			logger.Warn(ctx, "Request rejected by domain rule", map[string]interface{}{
				"error": err.Error(),
				"kind":  de.kind,
			})
			return c.JSON(de.status, ErrorResponse{
				Error:   de.kind,
				Message: de.err.Error(),
				Code:    de.code,
			})
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn(ctx, "Request timed out", map[string]interface{}{
			"path": c.Request().URL.Path,
		})
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error:   "timeout",
			Message: "The request timed out",
		})
	}

	// EchoのHTTPエラー
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		logger.Warn(ctx, "HTTP error", map[string]interface{}{
			"status_code": httpErr.Code,
			"message":     httpErr.Message,
		})
		message, ok := httpErr.Message.(string)
		if !ok {
			message = http.StatusText(httpErr.Code)
		}
		return c.JSON(httpErr.Code, ErrorResponse{
			Error:   http.StatusText(httpErr.Code),
			Message: message,
		})
	}

	// 予期しないエラー
	logger.Error(ctx, "Internal server error", err, map[string]interface{}{
		"path": c.Request().URL.Path,
	})
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_server_error",
		Message: "An unexpected error occurred",
	})
}
