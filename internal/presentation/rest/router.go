package rest

import (
	"context"
	"net/http"

	"credit-ledger/internal/infrastructure/config"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/presentation/rest/handler"
	restmiddleware "credit-ledger/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Services ルーターが公開するアプリケーションサービス
type Services struct {
	Ledger     handler.LedgerService
	Payment    handler.PaymentService
	Redemption handler.CodeRedemptionService
	History    handler.HistoryService
	Auth       handler.AuthService
	// Ping /healthで依存先（DB）の疎通を確認する。nilの場合は常にok
	Ping func(ctx context.Context) error
}

// Router REST APIルーター
type Router struct {
	echo *echo.Echo
}

// NewRouter 新しいRouterを作成
// metricsがnilの場合はメトリクスミドルウェアを設定しない
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	services Services,
) (*Router, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// ドメインエラーはエラーハンドリングミドルウェアで処理される
	// ここに届くのはRecoverなど外側のミドルウェアからのエラーのみ
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		logger.Error(c.Request().Context(), "Unhandled HTTP error", err, map[string]interface{}{
			"path": c.Request().URL.Path,
		})
		_ = c.JSON(http.StatusInternalServerError, restmiddleware.ErrorResponse{
			Error:   "internal_server_error",
			Message: "An unexpected error occurred",
		})
	}

	setupMiddleware(e, logger, metrics)
	setupRoutes(e, cfg, logger, services)
	SetupSwagger(e)

	return &Router{echo: e}, nil
}

// setupMiddleware ミドルウェアを設定
func setupMiddleware(e *echo.Echo, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			restmiddleware.HeaderAPIKey,
		},
	}))

	e.Use(middleware.RequestID())
	e.Use(restmiddleware.SecurityHeadersMiddleware())
	e.Use(restmiddleware.TracingMiddleware())
	if metrics != nil {
		e.Use(restmiddleware.MetricsMiddleware(metrics))
	}
	e.Use(restmiddleware.LoggingMiddleware(logger))
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func setupRoutes(e *echo.Echo, cfg *config.Config, logger *otelinfra.Logger, services Services) {
	ledgerHandler := handler.NewLedgerHandler(services.Ledger)
	paymentHandler := handler.NewPaymentHandler(services.Payment)
	redemptionHandler := handler.NewCodeRedemptionHandler(services.Redemption)
	historyHandler := handler.NewHistoryHandler(services.History)
	authHandler := handler.NewAuthHandler(services.Auth)

	api := e.Group("/api/v1")

	// 開発用IDプロバイダ（認証不要）
	api.POST("/auth/token", authHandler.GenerateToken)

	// 認証はルート単位で付与する。空プレフィックスのGroupは未知の/api/v1/*も捕捉してしまう
	requireUser := restmiddleware.AuthMiddleware(&cfg.JWT, logger)
	requireAPIKey := restmiddleware.APIKeyMiddleware(&cfg.AdminAPI, logger)

	// ユーザー経路（Bearer JWT）
	api.GET("/credits/balance", ledgerHandler.GetBalance, requireUser)
	api.POST("/credits/consume", ledgerHandler.Consume, requireUser)
	api.POST("/codes/redeem", redemptionHandler.RedeemCode, requireUser)
	api.GET("/history", historyHandler.GetUsageHistory, requireUser)

	// サービス経路（X-API-Key）
	api.GET("/service/credits/:user_id", ledgerHandler.GetBalanceAsService, requireAPIKey)
	api.POST("/service/credits/consume", ledgerHandler.ConsumeAsService, requireAPIKey)
	api.GET("/service/history/:user_id", historyHandler.GetUsageHistoryAsService, requireAPIKey)
	api.POST("/webhooks/purchase", paymentHandler.PurchaseWebhook, requireAPIKey)
	api.POST("/admin/codes", redemptionHandler.CreateCode, requireAPIKey)
	api.GET("/admin/codes/:code", redemptionHandler.GetCode, requireAPIKey)

	// ヘルスチェックエンドポイント（認証不要）
	e.GET("/health", func(c echo.Context) error {
		if services.Ping != nil {
			if err := services.Ping(c.Request().Context()); err != nil {
				logger.Warn(c.Request().Context(), "Health check failed", map[string]interface{}{
					"error": err.Error(),
				})
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ServeHTTP http.Handlerとしてリクエストを処理
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.echo.ServeHTTP(w, req)
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	return r.echo.Start(address)
}

// Shutdown 処理中のリクエストを待ってサーバーを停止
func (r *Router) Shutdown(ctx context.Context) error {
	return r.echo.Shutdown(ctx)
}
