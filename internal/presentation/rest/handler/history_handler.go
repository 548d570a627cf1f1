package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	historyapp "credit-ledger/internal/application/history"
	"credit-ledger/internal/domain/usage"
	restmiddleware "credit-ledger/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
)

// HistoryService ハンドラーが利用する履歴サービス
type HistoryService interface {
	GetUsageHistory(ctx context.Context, req *historyapp.GetUsageHistoryRequest) (*historyapp.GetUsageHistoryResponse, error)
}

// HistoryHandler 履歴関連ハンドラー
type HistoryHandler struct {
	historyService HistoryService
}

// NewHistoryHandler 新しいHistoryHandlerを作成
func NewHistoryHandler(historyService HistoryService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
	}
}

// GetUsageHistory 利用履歴取得ハンドラー（ユーザーAPI用）
// @Summary 利用履歴を取得
// @Description 自分の利用履歴を新しい順に取得します。ページネーションと種別フィルタに対応しています
// @Tags history
// @Produce json
// @Security Bearer
// @Param limit query int false "取得件数（デフォルト: 50, 最大: 100)" default(50) example(50)
// @Param offset query int false "オフセット（デフォルト: 0)" default(0) example(0)
// @Param entry_type query string false "種別でフィルタ（consume/grant/purchase/redeem）" example(consume)
// @Success 200 {object} UsageHistoryResponse "履歴取得成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /history [get]
func (h *HistoryHandler) GetUsageHistory(c echo.Context) error {
	userID, ok := restmiddleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}
	return h.getUsageHistory(c, userID)
}

// GetUsageHistoryAsService 利用履歴取得ハンドラー（サービスAPI用）
// @Summary 利用履歴を取得（サービスAPI）
// @Tags service
// @Produce json
// @Param user_id path string true "ユーザーID" example(user123)
// @Param X-API-Key header string true "APIキー"
// @Param limit query int false "取得件数（デフォルト: 50, 最大: 100)" default(50) example(50)
// @Param offset query int false "オフセット（デフォルト: 0)" default(0) example(0)
// @Param entry_type query string false "種別でフィルタ（consume/grant/purchase/redeem）" example(consume)
// @Success 200 {object} UsageHistoryResponse "履歴取得成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /service/history/{user_id} [get]
func (h *HistoryHandler) GetUsageHistoryAsService(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return h.getUsageHistory(c, userID)
}

func (h *HistoryHandler) getUsageHistory(c echo.Context, userID string) error {
	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
		}
	}

	offset := 0
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		var err error
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset parameter")
		}
	}

	entryType := c.QueryParam("entry_type")
	if entryType != "" {
		if _, err := usage.NewEntryType(entryType); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entry_type parameter")
		}
	}

	resp, err := h.historyService.GetUsageHistory(c.Request().Context(), &historyapp.GetUsageHistoryRequest{
		UserID:    userID,
		Limit:     limit,
		Offset:    offset,
		EntryType: entryType,
	})
	if err != nil {
		return err
	}

	entries := make([]UsageEntryItem, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = UsageEntryItem{
			EntryID:        e.EntryID(),
			EntryType:      e.Type().String(),
			Amount:         e.Amount(),
			BalanceBefore:  e.BalanceBefore(),
			BalanceAfter:   e.BalanceAfter(),
			Status:         e.Status().String(),
			Action:         e.Action().String(),
			IdempotencyKey: deref(e.IdempotencyKey()),
			Reference:      deref(e.Reference()),
			AuditEmail:     deref(e.AuditEmail()),
			CreatedAt:      e.CreatedAt().UTC().Format(time.RFC3339),
		}
	}

	return c.JSON(http.StatusOK, UsageHistoryResponse{
		Entries: entries,
		Total:   resp.Total,
		Limit:   resp.Limit,
		Offset:  resp.Offset,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
