package handler

import (
	"context"
	"net/http"

	paymentapp "credit-ledger/internal/application/payment"

	"github.com/labstack/echo/v4"
)

// PaymentService ハンドラーが利用する購入確定サービス
type PaymentService interface {
	ConfirmPurchase(ctx context.Context, req *paymentapp.ConfirmPurchaseRequest) (*paymentapp.ConfirmPurchaseResponse, error)
}

// PaymentHandler 購入関連ハンドラー
type PaymentHandler struct {
	paymentService PaymentService
}

// NewPaymentHandler 新しいPaymentHandlerを作成
func NewPaymentHandler(paymentService PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// PurchaseWebhook 購入確定Webhookハンドラー
// @Summary 購入を確定
// @Description 外部チェックアウトの完了通知を受けてパッケージのクレジットを付与します。order_idごとに一度だけ付与されます
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-API-Key header string true "APIキー"
// @Param request body PurchaseWebhookRequest true "購入確定リクエスト"
// @Success 200 {object} PurchaseWebhookResponse "購入確定成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト・未知のパッケージ"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /webhooks/purchase [post]
func (h *PaymentHandler) PurchaseWebhook(c echo.Context) error {
	var reqBody PurchaseWebhookRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.OrderID == "" || reqBody.UserID == "" || reqBody.PackageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id, user_id and package_id are required")
	}

	resp, err := h.paymentService.ConfirmPurchase(c.Request().Context(), &paymentapp.ConfirmPurchaseRequest{
		OrderID:   reqBody.OrderID,
		UserID:    reqBody.UserID,
		PackageID: reqBody.PackageID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, PurchaseWebhookResponse{
		OrderID:          resp.OrderID,
		UserID:           resp.UserID,
		PackageID:        resp.PackageID,
		Credits:          resp.Credits,
		EntryID:          resp.EntryID,
		BalanceAfter:     resp.BalanceAfter,
		AlreadyProcessed: resp.AlreadyProcessed,
	})
}
