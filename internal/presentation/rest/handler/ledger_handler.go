package handler

import (
	"context"
	"net/http"

	ledgerapp "credit-ledger/internal/application/ledger"
	restmiddleware "credit-ledger/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
)

// LedgerService ハンドラーが利用する台帳サービス
type LedgerService interface {
	GetBalance(ctx context.Context, req *ledgerapp.GetBalanceRequest) (*ledgerapp.GetBalanceResponse, error)
	Consume(ctx context.Context, req *ledgerapp.ConsumeRequest) (*ledgerapp.ConsumeResponse, error)
}

// LedgerHandler クレジット残高・消費ハンドラー
type LedgerHandler struct {
	ledgerService LedgerService
}

// NewLedgerHandler 新しいLedgerHandlerを作成
func NewLedgerHandler(ledgerService LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

// GetBalance 残高取得ハンドラー（ユーザーAPI用）
// @Summary 残高を取得
// @Description トークンのユーザーの残高を取得します。アカウントがなければ初期付与付きで作成されます
// @Tags credits
// @Produce json
// @Security Bearer
// @Success 200 {object} BalanceResponse "残高取得成功"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /credits/balance [get]
func (h *LedgerHandler) GetBalance(c echo.Context) error {
	userID, ok := restmiddleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}
	return h.getBalance(c, userID)
}

// GetBalanceAsService 残高取得ハンドラー（サービスAPI用）
// @Summary 残高を取得（サービスAPI）
// @Description 指定されたユーザーの残高を取得します
// @Tags service
// @Produce json
// @Param user_id path string true "ユーザーID" example(user123)
// @Param X-API-Key header string true "APIキー"
// @Success 200 {object} BalanceResponse "残高取得成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /service/credits/{user_id} [get]
func (h *LedgerHandler) GetBalanceAsService(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return h.getBalance(c, userID)
}

func (h *LedgerHandler) getBalance(c echo.Context, userID string) error {
	resp, err := h.ledgerService.GetBalance(c.Request().Context(), &ledgerapp.GetBalanceRequest{UserID: userID})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BalanceResponse{
		UserID:  resp.UserID,
		Balance: resp.Balance,
	})
}

// Consume クレジット消費ハンドラー（ユーザーAPI用）
// @Summary クレジットを消費
// @Description トークンのユーザーのクレジットを消費します。残高不足は200でsuccess=falseを返します。同じidempotency_keyの再送は再課金せず最初の結果を返します
// @Tags credits
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body ConsumeCreditRequest true "消費リクエスト"
// @Success 200 {object} ConsumeCreditResponse "消費結果"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Failure 403 {object} ErrorResponse "user_id不一致"
// @Router /credits/consume [post]
func (h *LedgerHandler) Consume(c echo.Context) error {
	userID, ok := restmiddleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	var reqBody ConsumeCreditRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.UserID != "" && reqBody.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "user_id mismatch")
	}

	return h.consume(c, userID, reqBody)
}

// ConsumeAsService クレジット消費ハンドラー（サービスAPI用）
// @Summary クレジットを消費（サービスAPI）
// @Description APIキーで認証し、リクエストのuser_idのクレジットを消費します
// @Tags service
// @Accept json
// @Produce json
// @Param X-API-Key header string true "APIキー"
// @Param request body ConsumeCreditRequest true "消費リクエスト"
// @Success 200 {object} ConsumeCreditResponse "消費結果"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /service/credits/consume [post]
func (h *LedgerHandler) ConsumeAsService(c echo.Context) error {
	var reqBody ConsumeCreditRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	return h.consume(c, reqBody.UserID, reqBody)
}

func (h *LedgerHandler) consume(c echo.Context, userID string, reqBody ConsumeCreditRequest) error {
	if reqBody.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	if reqBody.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}

	resp, err := h.ledgerService.Consume(c.Request().Context(), &ledgerapp.ConsumeRequest{
		UserID:         userID,
		Amount:         reqBody.Amount,
		Action:         reqBody.Action,
		IdempotencyKey: reqBody.IdempotencyKey,
		AuditEmail:     reqBody.AuditEmail,
	})
	if err != nil {
		return err
	}

	out := ConsumeCreditResponse{
		Success:  resp.Success,
		EntryID:  resp.EntryID,
		Replayed: resp.Replayed,
	}
	if resp.Success {
		newBalance := resp.NewBalance
		out.NewBalance = &newBalance
	} else {
		balance := resp.Balance
		out.Reason = resp.Reason
		out.Balance = &balance
	}
	return c.JSON(http.StatusOK, out)
}
