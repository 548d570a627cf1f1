package handler

import (
	"context"
	"net/http"
	"time"

	redemptionapp "credit-ledger/internal/application/code_redemption"
	restmiddleware "credit-ledger/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
)

// CodeRedemptionService ハンドラーが利用するコード引き換えサービス
type CodeRedemptionService interface {
	Redeem(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (*redemptionapp.RedeemCodeResponse, error)
	CreateCode(ctx context.Context, req *redemptionapp.CreateCodeRequest) (*redemptionapp.CodeResponse, error)
	GetCode(ctx context.Context, req *redemptionapp.GetCodeRequest) (*redemptionapp.CodeResponse, error)
}

// CodeRedemptionHandler コード引き換え関連ハンドラー
type CodeRedemptionHandler struct {
	redemptionService CodeRedemptionService
}

// NewCodeRedemptionHandler 新しいCodeRedemptionHandlerを作成
func NewCodeRedemptionHandler(redemptionService CodeRedemptionService) *CodeRedemptionHandler {
	return &CodeRedemptionHandler{
		redemptionService: redemptionService,
	}
}

// RedeemCode コード引き換えハンドラー
// @Summary コードを引き換え
// @Description 引き換えコードのクレジットをトークンのユーザーに付与します。1ユーザー1回まで
// @Tags codes
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body RedeemCodeRequest true "引き換えリクエスト"
// @Success 200 {object} RedeemCodeResponse "引き換え成功"
// @Failure 400 {object} ErrorResponse "引き換え不可"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Failure 404 {object} ErrorResponse "コードが見つからない"
// @Router /codes/redeem [post]
func (h *CodeRedemptionHandler) RedeemCode(c echo.Context) error {
	userID, ok := restmiddleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	var reqBody RedeemCodeRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}

	resp, err := h.redemptionService.Redeem(c.Request().Context(), &redemptionapp.RedeemCodeRequest{
		Code:   reqBody.Code,
		UserID: userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RedeemCodeResponse{
		RedemptionID: resp.RedemptionID,
		EntryID:      resp.EntryID,
		Code:         resp.Code,
		Credits:      resp.Credits,
		BalanceAfter: resp.BalanceAfter,
	})
}

// CreateCode 引き換えコード作成ハンドラー（管理API用）
// @Summary 引き換えコードを作成
// @Tags admin
// @Accept json
// @Produce json
// @Param X-API-Key header string true "APIキー"
// @Param request body CreateCodeRequest true "作成リクエスト"
// @Success 201 {object} CodeResponse "作成成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 409 {object} ErrorResponse "コードが既に存在する"
// @Router /admin/codes [post]
func (h *CodeRedemptionHandler) CreateCode(c echo.Context) error {
	var reqBody CreateCodeRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	validFrom, err := time.Parse(time.RFC3339, reqBody.ValidFrom)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid valid_from format")
	}
	validUntil, err := time.Parse(time.RFC3339, reqBody.ValidUntil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid valid_until format")
	}

	resp, err := h.redemptionService.CreateCode(c.Request().Context(), &redemptionapp.CreateCodeRequest{
		Code:       reqBody.Code,
		CodeType:   reqBody.CodeType,
		Credits:    reqBody.Credits,
		MaxUses:    reqBody.MaxUses,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toCodeResponse(resp))
}

// GetCode 引き換えコード取得ハンドラー（管理API用）
// @Summary 引き換えコードを取得
// @Tags admin
// @Produce json
// @Param X-API-Key header string true "APIキー"
// @Param code path string true "引き換えコード" example(WELCOME10)
// @Success 200 {object} CodeResponse "取得成功"
// @Failure 404 {object} ErrorResponse "コードが見つからない"
// @Router /admin/codes/{code} [get]
func (h *CodeRedemptionHandler) GetCode(c echo.Context) error {
	code := c.Param("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}

	resp, err := h.redemptionService.GetCode(c.Request().Context(), &redemptionapp.GetCodeRequest{Code: code})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toCodeResponse(resp))
}

func toCodeResponse(resp *redemptionapp.CodeResponse) CodeResponse {
	return CodeResponse{
		Code:        resp.Code,
		CodeType:    resp.CodeType,
		Credits:     resp.Credits,
		MaxUses:     resp.MaxUses,
		CurrentUses: resp.CurrentUses,
		ValidFrom:   resp.ValidFrom.UTC().Format(time.RFC3339),
		ValidUntil:  resp.ValidUntil.UTC().Format(time.RFC3339),
		Status:      resp.Status,
		CreatedAt:   resp.CreatedAt.UTC().Format(time.RFC3339),
	}
}
