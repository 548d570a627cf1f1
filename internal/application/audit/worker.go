package audit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/event"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// Recorder 監査ログの保存先
type Recorder interface {
	Record(ctx context.Context, e event.BalanceChanged) (bool, error)
}

// Worker 残高変更イベントを監査ログへ同期する
type Worker struct {
	recorder Recorder
	logger   *otelinfra.Logger
	metrics  *otelinfra.Metrics
	tracer   trace.Tracer
}

// NewWorker 新しいWorkerを作成
func NewWorker(recorder Recorder, logger *otelinfra.Logger, metrics *otelinfra.Metrics) *Worker {
	return &Worker{
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("audit-worker"),
	}
}

// Handle 1件のイベントを記録する
// 同じエントリーの再配信は記録済みとして成功扱いにする
func (w *Worker) Handle(ctx context.Context, e event.BalanceChanged) error {
	ctx, span := w.tracer.Start(ctx, "Worker.Handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", e.UserID),
		attribute.String("entry_id", e.EntryID),
		attribute.String("kind", string(e.Kind)),
	)

	inserted, err := w.recorder.Record(ctx, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		w.metrics.RecordError(ctx, "audit_record_failed")
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	if !inserted {
		w.logger.Debug(ctx, "Audit entry already recorded", map[string]interface{}{
			"entry_id": e.EntryID,
		})
		return nil
	}

	w.logger.Info(ctx, "Audit entry recorded", map[string]interface{}{
		"user_id":  e.UserID,
		"entry_id": e.EntryID,
		"kind":     string(e.Kind),
		"delta":    e.Delta,
		"balance":  e.Balance,
	})
	return nil
}
