package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/application/ledger"
	"credit-ledger/internal/domain/purchase"
	"credit-ledger/internal/domain/usage"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// Granter 同一トランザクションで追加の書き込みを行いながらクレジットを付与する
type Granter interface {
	GrantWith(ctx context.Context, req *ledger.GrantRequest, attach ledger.AttachFunc) (*ledger.GrantResponse, error)
}

// PaymentApplicationService 購入確定アプリケーションサービス
type PaymentApplicationService struct {
	purchaseRepo purchase.PurchaseRepository
	granter      Granter
	catalog      purchase.Catalog
	logger       *otelinfra.Logger
	metrics      *otelinfra.Metrics
	tracer       trace.Tracer
}

// NewPaymentApplicationService 新しいPaymentApplicationServiceを作成
func NewPaymentApplicationService(
	purchaseRepo purchase.PurchaseRepository,
	granter Granter,
	catalog purchase.Catalog,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *PaymentApplicationService {
	return &PaymentApplicationService{
		purchaseRepo: purchaseRepo,
		granter:      granter,
		catalog:      catalog,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("payment-service"),
	}
}

// ConfirmPurchase 外部チェックアウトで完了した注文のクレジットを付与する
// 同じ注文IDは一度だけ付与され、再送されたWebhookにはAlreadyProcessedを返す
func (s *PaymentApplicationService) ConfirmPurchase(ctx context.Context, req *ConfirmPurchaseRequest) (*ConfirmPurchaseResponse, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentApplicationService.ConfirmPurchase")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.String("user_id", req.UserID),
		attribute.String("package_id", req.PackageID),
	)

	s.logger.Info(ctx, "Confirming purchase", map[string]interface{}{
		"order_id":   req.OrderID,
		"user_id":    req.UserID,
		"package_id": req.PackageID,
	})

	credits, err := s.catalog.Credits(req.PackageID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	p, err := purchase.NewPurchase(req.OrderID, req.UserID, req.PackageID, credits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	// 既に処理済みの場合は、既存の結果を返す
	existing, err := s.purchaseRepo.FindByOrderID(ctx, req.OrderID)
	if err != nil && !errors.Is(err, purchase.ErrPurchaseNotFound) {
		return nil, s.confirmFailed(ctx, span, req, fmt.Errorf("failed to find purchase: %w", err))
	}
	if existing != nil {
		return s.alreadyProcessed(ctx, span, existing), nil
	}

	grant, err := s.granter.GrantWith(ctx, &ledger.GrantRequest{
		UserID:    p.UserID(),
		Amount:    p.Credits(),
		Type:      usage.EntryTypePurchase,
		Reference: p.OrderID(),
	}, func(tx *sql.Tx, entryID string) error {
		completed := *p
		if err := completed.Complete(); err != nil {
			return err
		}
		return s.purchaseRepo.Save(ctx, tx, &completed)
	})
	// 同じ注文の同時Webhookに負けた場合
	if errors.Is(err, purchase.ErrPurchaseAlreadyProcessed) {
		existing, ferr := s.purchaseRepo.FindByOrderID(ctx, req.OrderID)
		if ferr == nil {
			return s.alreadyProcessed(ctx, span, existing), nil
		}
	}
	if err != nil {
		return nil, s.confirmFailed(ctx, span, req, err)
	}

	s.metrics.RecordPurchase(ctx, p.PackageID())
	s.logger.Info(ctx, "Purchase confirmed", map[string]interface{}{
		"order_id":      p.OrderID(),
		"user_id":       p.UserID(),
		"credits":       p.Credits(),
		"entry_id":      grant.EntryID,
		"balance_after": grant.BalanceAfter,
	})

	return &ConfirmPurchaseResponse{
		OrderID:      p.OrderID(),
		UserID:       p.UserID(),
		PackageID:    p.PackageID(),
		Credits:      p.Credits(),
		EntryID:      grant.EntryID,
		BalanceAfter: grant.BalanceAfter,
	}, nil
}

func (s *PaymentApplicationService) alreadyProcessed(ctx context.Context, span trace.Span, p *purchase.Purchase) *ConfirmPurchaseResponse {
	span.SetAttributes(attribute.Bool("already_processed", true))
	s.logger.Info(ctx, "Purchase already processed", map[string]interface{}{
		"order_id": p.OrderID(),
		"status":   p.Status().String(),
	})
	return &ConfirmPurchaseResponse{
		OrderID:          p.OrderID(),
		UserID:           p.UserID(),
		PackageID:        p.PackageID(),
		Credits:          p.Credits(),
		AlreadyProcessed: true,
	}
}

func (s *PaymentApplicationService) confirmFailed(ctx context.Context, span trace.Span, req *ConfirmPurchaseRequest, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	s.logger.Error(ctx, "Failed to confirm purchase", err, map[string]interface{}{
		"order_id": req.OrderID,
		"user_id":  req.UserID,
	})
	s.metrics.RecordError(ctx, "purchase_confirm_failed")
	return err
}
