package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/event"
	"credit-ledger/internal/domain/service"
	"credit-ledger/internal/domain/usage"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// LedgerApplicationService クレジット台帳アプリケーションサービス
type LedgerApplicationService struct {
	accountRepo   credit.AccountRepository
	entryRepo     usage.EntryRepository
	txManager     usage.TransactionManager
	creditService *service.CreditService
	publisher     event.Publisher
	logger        *otelinfra.Logger
	metrics       *otelinfra.Metrics
	tracer        trace.Tracer
	maxRetries    int
	newID         func() string
}

// NewLedgerApplicationService 新しいLedgerApplicationServiceを作成
func NewLedgerApplicationService(
	accountRepo credit.AccountRepository,
	entryRepo usage.EntryRepository,
	txManager usage.TransactionManager,
	creditService *service.CreditService,
	publisher event.Publisher,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *LedgerApplicationService {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &LedgerApplicationService{
		accountRepo:   accountRepo,
		entryRepo:     entryRepo,
		txManager:     txManager,
		creditService: creditService,
		publisher:     publisher,
		logger:        logger,
		metrics:       metrics,
		tracer:        otel.Tracer("ledger-service"),
		maxRetries:    3,
		newID:         uuid.NewString,
	}
}

// GetBalance 残高を取得（アカウントがなければ初期クレジット付きで作成）
func (s *LedgerApplicationService) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.GetBalance")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", req.UserID))

	if !credit.ValidUserID(req.UserID) {
		span.SetStatus(otelcodes.Error, credit.ErrInvalidUserID.Error())
		return nil, credit.ErrInvalidUserID
	}

	account, err := s.ensureAccount(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to get balance", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		s.metrics.RecordError(ctx, "get_balance_failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int64("balance", account.Balance()))
	return &GetBalanceResponse{
		UserID:  account.UserID(),
		Balance: account.Balance(),
	}, nil
}

// ensureAccount アカウントを取得し、新規作成時は初期付与の履歴を残す
func (s *LedgerApplicationService) ensureAccount(ctx context.Context, userID string) (*credit.Account, error) {
	account, created, err := s.creditService.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}
	if !created || s.creditService.StartingGrant() == 0 {
		return account, nil
	}

	entry, err := usage.NewEntry(usage.EntryParams{
		EntryID:       s.newID(),
		UserID:        userID,
		Type:          usage.EntryTypeGrant,
		Amount:        s.creditService.StartingGrant(),
		BalanceBefore: 0,
		BalanceAfter:  s.creditService.StartingGrant(),
		Status:        usage.EntryStatusCompleted,
		Reference:     "starting_grant",
	})
	if err != nil {
		return nil, err
	}
	if err := s.entryRepo.Save(ctx, nil, entry); err != nil {
		// 初期付与の履歴が残せなくても残高自体は作成済み
		s.logger.Warn(ctx, "Failed to record starting grant", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return account, nil
	}

	s.metrics.RecordGrant(ctx, usage.EntryTypeGrant.String(), entry.Amount())
	s.logger.Info(ctx, "Account created with starting grant", map[string]interface{}{
		"user_id": userID,
		"balance": account.Balance(),
	})
	s.publish(ctx, event.BalanceChanged{
		UserID:     userID,
		Kind:       event.KindGranted,
		Delta:      entry.Amount(),
		Balance:    account.Balance(),
		Reference:  "starting_grant",
		EntryID:    entry.EntryID(),
		OccurredAt: entry.CreatedAt(),
	})
	return account, nil
}

// Consume クレジットを消費
// 残高が足りる場合のみ原子的に減算し、冪等キーが同じリクエストは最初の結果を返す
func (s *LedgerApplicationService) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.Consume")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int64("amount", req.Amount),
		attribute.String("action", req.Action),
		attribute.String("idempotency_key", req.IdempotencyKey),
	)

	s.logger.Info(ctx, "Consuming credits", map[string]interface{}{
		"user_id":         req.UserID,
		"amount":          req.Amount,
		"action":          req.Action,
		"idempotency_key": req.IdempotencyKey,
	})

	action, err := s.validateConsume(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if _, err := s.ensureAccount(ctx, req.UserID); err != nil {
		return nil, s.consumeFailed(ctx, span, req, err)
	}

	if req.IdempotencyKey != "" {
		replay, err := s.replay(ctx, req)
		if err != nil {
			return nil, s.consumeFailed(ctx, span, req, err)
		}
		if replay != nil {
			span.SetAttributes(attribute.Bool("replayed", true))
			return replay, nil
		}
	}

	entryID := s.newID()
	var resp *ConsumeResponse
	var entry *usage.Entry

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		balance, applied, err := s.accountRepo.DecrementIfSufficient(ctx, tx, req.UserID, req.Amount)
		if err != nil {
			return err
		}

		params := usage.EntryParams{
			EntryID:        entryID,
			UserID:         req.UserID,
			Type:           usage.EntryTypeConsume,
			Amount:         req.Amount,
			Action:         action,
			IdempotencyKey: req.IdempotencyKey,
			AuditEmail:     req.AuditEmail,
		}
		if applied {
			params.BalanceBefore = balance + req.Amount
			params.BalanceAfter = balance
			params.Status = usage.EntryStatusCompleted
			resp = &ConsumeResponse{Success: true, NewBalance: balance, EntryID: entryID}
		} else {
			params.BalanceBefore = balance
			params.BalanceAfter = balance
			params.Status = usage.EntryStatusRejected
			resp = &ConsumeResponse{Success: false, Reason: ReasonInsufficientFunds, Balance: balance, EntryID: entryID}
		}

		entry, err = usage.NewEntry(params)
		if err != nil {
			return err
		}
		return s.entryRepo.Save(ctx, tx, entry)
	})

	// 同じ冪等キーの同時リクエストに負けた場合は、勝った方の結果を返す
	if errors.Is(err, usage.ErrDuplicateIdempotencyKey) {
		replay, rerr := s.replay(ctx, req)
		if rerr == nil && replay != nil {
			return replay, nil
		}
	}
	if err != nil {
		return nil, s.consumeFailed(ctx, span, req, err)
	}

	kind := event.KindConsumed
	outcome := "success"
	if !resp.Success {
		kind = event.KindRejected
		outcome = ReasonInsufficientFunds
	}
	s.metrics.RecordConsume(ctx, action.String(), outcome)
	span.SetAttributes(
		attribute.Bool("success", resp.Success),
		attribute.Int64("balance_after", entry.BalanceAfter()),
	)

	s.publish(ctx, event.BalanceChanged{
		UserID:         req.UserID,
		Kind:           kind,
		Delta:          -(entry.BalanceBefore() - entry.BalanceAfter()),
		Balance:        entry.BalanceAfter(),
		Action:         action.String(),
		AuditEmail:     req.AuditEmail,
		IdempotencyKey: req.IdempotencyKey,
		EntryID:        entryID,
		OccurredAt:     entry.CreatedAt(),
	})

	s.logger.Info(ctx, "Credits consume evaluated", map[string]interface{}{
		"user_id":       req.UserID,
		"entry_id":      entryID,
		"success":       resp.Success,
		"balance_after": entry.BalanceAfter(),
	})

	return resp, nil
}

func (s *LedgerApplicationService) validateConsume(req *ConsumeRequest) (credit.ActionType, error) {
	if !credit.ValidUserID(req.UserID) {
		return "", credit.ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return "", credit.ErrInvalidAmount
	}
	action, err := credit.NewActionType(req.Action)
	if err != nil {
		return "", err
	}
	return action, nil
}

// replay 冪等キーで記録済みの結果を返す（未記録ならnil）
func (s *LedgerApplicationService) replay(ctx context.Context, req *ConsumeRequest) (*ConsumeResponse, error) {
	entry, err := s.entryRepo.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if errors.Is(err, usage.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	s.logger.Info(ctx, "Replaying consume by idempotency key", map[string]interface{}{
		"user_id":         req.UserID,
		"idempotency_key": req.IdempotencyKey,
		"entry_id":        entry.EntryID(),
	})

	if entry.Status() == usage.EntryStatusCompleted {
		return &ConsumeResponse{Success: true, NewBalance: entry.BalanceAfter(), EntryID: entry.EntryID(), Replayed: true}, nil
	}
	return &ConsumeResponse{
		Success:  false,
		Reason:   ReasonInsufficientFunds,
		Balance:  entry.BalanceAfter(),
		EntryID:  entry.EntryID(),
		Replayed: true,
	}, nil
}

func (s *LedgerApplicationService) consumeFailed(ctx context.Context, span trace.Span, req *ConsumeRequest, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	s.logger.Error(ctx, "Failed to consume credits", err, map[string]interface{}{
		"user_id": req.UserID,
		"amount":  req.Amount,
		"action":  req.Action,
	})
	s.metrics.RecordError(ctx, "consume_failed")
	return err
}

// Grant クレジットを付与
func (s *LedgerApplicationService) Grant(ctx context.Context, req *GrantRequest) (*GrantResponse, error) {
	return s.GrantWith(ctx, req, nil)
}

// GrantWith クレジットを付与し、同じトランザクションでattachを実行する
// 楽観的ロックの競合は指数バックオフで最大maxRetries回まで再試行する
func (s *LedgerApplicationService) GrantWith(ctx context.Context, req *GrantRequest, attach AttachFunc) (*GrantResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.Grant")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int64("amount", req.Amount),
		attribute.String("entry_type", req.Type.String()),
		attribute.String("reference", req.Reference),
	)

	s.logger.Info(ctx, "Granting credits", map[string]interface{}{
		"user_id":   req.UserID,
		"amount":    req.Amount,
		"type":      req.Type.String(),
		"reference": req.Reference,
	})

	if err := validateGrant(req); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	entryID := s.newID()
	var result *GrantResponse
	var balanceBefore int64
	var err error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			// 指数バックオフ
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 10 * time.Millisecond
			time.Sleep(backoff)
		}

		var account *credit.Account
		account, err = s.ensureAccount(ctx, req.UserID)
		if err != nil {
			break
		}
		balanceBefore = account.Balance()
		if err = account.Grant(req.Amount); err != nil {
			break
		}

		err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
			if err := s.accountRepo.Save(ctx, tx, account); err != nil {
				return err
			}
			entry, err := usage.NewEntry(usage.EntryParams{
				EntryID:       entryID,
				UserID:        req.UserID,
				Type:          req.Type,
				Amount:        req.Amount,
				BalanceBefore: balanceBefore,
				BalanceAfter:  account.Balance(),
				Status:        usage.EntryStatusCompleted,
				Reference:     req.Reference,
			})
			if err != nil {
				return err
			}
			if err := s.entryRepo.Save(ctx, tx, entry); err != nil {
				return fmt.Errorf("failed to save usage entry: %w", err)
			}
			if attach != nil {
				return attach(tx, entryID)
			}
			return nil
		})
		if errors.Is(err, credit.ErrVersionConflict) {
			s.logger.Warn(ctx, "Version conflict while granting, retrying", map[string]interface{}{
				"user_id": req.UserID,
				"attempt": attempt + 1,
			})
			continue
		}
		if err == nil {
			result = &GrantResponse{EntryID: entryID, BalanceAfter: account.Balance()}
		}
		break
	}

	if errors.Is(err, credit.ErrVersionConflict) {
		err = fmt.Errorf("failed to grant credits after %d retries: %w", s.maxRetries, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to grant credits", err, map[string]interface{}{
			"user_id": req.UserID,
			"amount":  req.Amount,
			"type":    req.Type.String(),
		})
		s.metrics.RecordError(ctx, "grant_failed")
		return nil, err
	}

	s.metrics.RecordGrant(ctx, req.Type.String(), req.Amount)
	s.publish(ctx, event.BalanceChanged{
		UserID:     req.UserID,
		Kind:       kindForEntry(req.Type),
		Delta:      req.Amount,
		Balance:    result.BalanceAfter,
		Reference:  req.Reference,
		EntryID:    entryID,
		OccurredAt: time.Now(),
	})

	s.logger.Info(ctx, "Credits granted successfully", map[string]interface{}{
		"user_id":       req.UserID,
		"entry_id":      entryID,
		"balance_after": result.BalanceAfter,
	})

	return result, nil
}

func validateGrant(req *GrantRequest) error {
	if !credit.ValidUserID(req.UserID) {
		return credit.ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return credit.ErrInvalidAmount
	}
	if !req.Type.IsCredit() {
		return fmt.Errorf("%w: entry type %s does not add credits", credit.ErrInvalidAmount, req.Type)
	}
	return nil
}

func kindForEntry(t usage.EntryType) event.Kind {
	switch t {
	case usage.EntryTypePurchase:
		return event.KindPurchased
	case usage.EntryTypeRedeem:
		return event.KindRedeemed
	default:
		return event.KindGranted
	}
}

// publish コミット後にイベントを発行する（失敗しても台帳の結果は変わらない）
func (s *LedgerApplicationService) publish(ctx context.Context, e event.BalanceChanged) {
	if err := s.publisher.PublishBalanceChanged(ctx, e); err != nil {
		s.logger.Warn(ctx, "Failed to publish balance changed event", map[string]interface{}{
			"user_id":  e.UserID,
			"kind":     string(e.Kind),
			"entry_id": e.EntryID,
			"error":    err.Error(),
		})
		s.metrics.RecordError(ctx, "publish_failed")
	}
}
