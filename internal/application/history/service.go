package history

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/usage"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// HistoryApplicationService 履歴アプリケーションサービス
type HistoryApplicationService struct {
	entryRepo usage.EntryRepository
	logger    *otelinfra.Logger
	metrics   *otelinfra.Metrics
	tracer    trace.Tracer
}

// NewHistoryApplicationService 新しいHistoryApplicationServiceを作成
func NewHistoryApplicationService(
	entryRepo usage.EntryRepository,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *HistoryApplicationService {
	return &HistoryApplicationService{
		entryRepo: entryRepo,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("history-service"),
	}
}

// GetUsageHistory 利用履歴を新しい順に取得
func (s *HistoryApplicationService) GetUsageHistory(ctx context.Context, req *GetUsageHistoryRequest) (*GetUsageHistoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "HistoryApplicationService.GetUsageHistory")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int("limit", req.Limit),
		attribute.Int("offset", req.Offset),
	)

	s.logger.Info(ctx, "Getting usage history", map[string]interface{}{
		"user_id":    req.UserID,
		"limit":      req.Limit,
		"offset":     req.Offset,
		"entry_type": req.EntryType,
	})

	if !credit.ValidUserID(req.UserID) {
		span.SetStatus(otelcodes.Error, credit.ErrInvalidUserID.Error())
		return nil, credit.ErrInvalidUserID
	}

	var filter usage.EntryType
	if req.EntryType != "" {
		t, err := usage.NewEntryType(req.EntryType)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		filter = t
	}

	limit, offset := req.Limit, req.Offset
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.entryRepo.FindByUserID(ctx, req.UserID, limit, offset)
	if err != nil {
		return nil, s.historyFailed(ctx, span, req, fmt.Errorf("failed to get usage history: %w", err))
	}
	total, err := s.entryRepo.CountByUserID(ctx, req.UserID)
	if err != nil {
		return nil, s.historyFailed(ctx, span, req, fmt.Errorf("failed to count usage history: %w", err))
	}

	if filter != "" {
		filtered := make([]*usage.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Type() == filter {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	span.SetAttributes(attribute.Int("total", total), attribute.Int("returned", len(entries)))
	return &GetUsageHistoryResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func (s *HistoryApplicationService) historyFailed(ctx context.Context, span trace.Span, req *GetUsageHistoryRequest, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	s.logger.Error(ctx, "Failed to get usage history", err, map[string]interface{}{
		"user_id": req.UserID,
	})
	s.metrics.RecordError(ctx, "history_failed")
	return err
}
