// auditworker 残高変更イベントをPostgreSQLの監査テーブルへ同期する
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credit-ledger/internal/application/audit"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/messaging"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/infrastructure/persistence/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.NATS.Enabled || !cfg.Postgres.Enabled {
		log.Fatalf("auditworker requires NATS_ENABLED and AUDIT_POSTGRES_ENABLED")
	}

	cfg.OpenTelemetry.ServiceName = "credit-ledger-audit"
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	meterShutdown, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	logger := otelinfra.NewLogger(otelinfra.Tracer("credit-ledger-audit"),
		otelinfra.WithService(cfg.OpenTelemetry.ServiceName),
		otelinfra.WithMinLevel(otelinfra.ParseLogLevel(cfg.OpenTelemetry.LogLevel)),
	)
	metrics, err := otelinfra.NewMetrics("credit-ledger-audit")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate audit schema: %v", err)
	}

	nc, err := messaging.Connect(cfg.NATS.URL, "credit-ledger-audit")
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	worker := audit.NewWorker(postgres.NewAuditSink(pool), logger, metrics)
	subscriber := messaging.NewSubscriber(nc, cfg.NATS.Subject, cfg.NATS.QueueGroup, nil, logger)

	// ctxがキャンセルされるまでブロックし、終了時にDrainする
	if err := subscriber.Run(ctx, worker.Handle); err != nil {
		logger.Error(ctx, "Audit subscriber stopped with error", err, nil)
		os.Exit(1)
	}
	logger.Info(context.Background(), "Audit worker stopped", nil)
}
