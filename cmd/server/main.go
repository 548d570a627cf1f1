package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authapp "credit-ledger/internal/application/auth"
	redemptionapp "credit-ledger/internal/application/code_redemption"
	historyapp "credit-ledger/internal/application/history"
	ledgerapp "credit-ledger/internal/application/ledger"
	paymentapp "credit-ledger/internal/application/payment"
	"credit-ledger/internal/domain/event"
	"credit-ledger/internal/domain/purchase"
	"credit-ledger/internal/domain/service"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/messaging"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/infrastructure/persistence/mysql"
	grpcserver "credit-ledger/internal/presentation/grpc"
	"credit-ledger/internal/presentation/rest"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	meterShutdown, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	// ロガーとメトリクスの初期化
	tracer := otelinfra.Tracer("credit-ledger")
	logger := otelinfra.NewLogger(tracer,
		otelinfra.WithService(cfg.OpenTelemetry.ServiceName),
		otelinfra.WithMinLevel(otelinfra.ParseLogLevel(cfg.OpenTelemetry.LogLevel)),
	)
	metrics, err := otelinfra.NewMetrics("credit-ledger")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	ctx := context.Background()

	// データベース接続の初期化
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMetrics(metrics)

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 残高変更イベントの配信先
	var publisher event.Publisher = event.NopPublisher{}
	if cfg.NATS.Enabled {
		nc, err := messaging.Connect(cfg.NATS.URL, "credit-ledger-server")
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Drain()
		publisher = messaging.NewPublisher(nc, cfg.NATS.Subject)
	}

	catalog, err := purchase.ParseCatalog(cfg.Ledger.Packages)
	if err != nil {
		log.Fatalf("Failed to parse credit packages: %v", err)
	}

	// リポジトリの初期化
	accountRepo := mysql.NewAccountRepository(db)
	entryRepo := mysql.NewUsageEntryRepository(db)
	purchaseRepo := mysql.NewPurchaseRepository(db)
	redemptionCodeRepo := mysql.NewRedemptionCodeRepository(db)

	// トランザクションマネージャーの初期化
	txManager := mysql.NewTransactionManager(db)

	// ドメインサービスの初期化
	creditService := service.NewCreditService(accountRepo, cfg.Ledger.StartingGrant)

	// アプリケーションサービスの初期化
	ledgerAppService := ledgerapp.NewLedgerApplicationService(
		accountRepo,
		entryRepo,
		txManager,
		creditService,
		publisher,
		logger,
		metrics,
	)

	paymentAppService := paymentapp.NewPaymentApplicationService(
		purchaseRepo,
		ledgerAppService,
		catalog,
		logger,
		metrics,
	)

	redemptionAppService := redemptionapp.NewCodeRedemptionApplicationService(
		redemptionCodeRepo,
		ledgerAppService,
		logger,
		metrics,
	)

	historyAppService := historyapp.NewHistoryApplicationService(
		entryRepo,
		logger,
		metrics,
	)

	authAppService := authapp.NewAuthApplicationService(&cfg.JWT, logger)

	// REST APIルーターの初期化
	router, err := rest.NewRouter(cfg, logger, metrics, rest.Services{
		Ledger:     ledgerAppService,
		Payment:    paymentAppService,
		Redemption: redemptionAppService,
		History:    historyAppService,
		Auth:       authAppService,
		Ping:       db.HealthCheck,
	})
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	// gRPCサーバーの初期化
	grpcSrv, err := grpcserver.NewServer(cfg, logger, ledgerAppService)
	if err != nil {
		log.Fatalf("Failed to create gRPC server: %v", err)
	}

	// サーバーアドレスの設定
	address := fmt.Sprintf(":%d", cfg.Server.Port)

	// グレースフルシャットダウンの設定
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// REST APIサーバーを別ゴルーチンで起動
	go func() {
		logger.Info(ctx, "REST API server starting", map[string]interface{}{
			"address": address,
		})
		if err := router.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "REST API server error", err, nil)
		}
	}()

	// gRPCサーバーを別ゴルーチンで起動
	go func() {
		logger.Info(ctx, "gRPC server starting", map[string]interface{}{
			"port": grpcSrv.Port(),
		})
		if err := grpcSrv.Start(); err != nil {
			logger.Error(ctx, "gRPC server error", err, nil)
		}
	}()

	// シグナルを待機
	<-quit
	logger.Info(ctx, "Shutting down servers", nil)

	// グレースフルシャットダウン
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// REST APIサーバーのシャットダウン
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down REST API server", err, nil)
	}

	// gRPCサーバーのシャットダウン
	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down gRPC server", err, nil)
	}

	logger.Info(ctx, "Servers stopped", nil)
}
