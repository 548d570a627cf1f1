package code_redemption

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/application/ledger"
	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/redemption_code"
	"credit-ledger/internal/domain/usage"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// Granter 同一トランザクションで追加の書き込みを行いながらクレジットを付与する
type Granter interface {
	GrantWith(ctx context.Context, req *ledger.GrantRequest, attach ledger.AttachFunc) (*ledger.GrantResponse, error)
}

// CodeRedemptionApplicationService コード引き換えアプリケーションサービス
type CodeRedemptionApplicationService struct {
	redemptionCodeRepo redemption_code.RedemptionCodeRepository
	granter            Granter
	logger             *otelinfra.Logger
	metrics            *otelinfra.Metrics
	tracer             trace.Tracer
	now                func() time.Time
	newID              func() string
}

// NewCodeRedemptionApplicationService 新しいCodeRedemptionApplicationServiceを作成
func NewCodeRedemptionApplicationService(
	redemptionCodeRepo redemption_code.RedemptionCodeRepository,
	granter Granter,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *CodeRedemptionApplicationService {
	return &CodeRedemptionApplicationService{
		redemptionCodeRepo: redemptionCodeRepo,
		granter:            granter,
		logger:             logger,
		metrics:            metrics,
		tracer:             otel.Tracer("code-redemption-service"),
		now:                time.Now,
		newID:              uuid.NewString,
	}
}

// Redeem コードを引き換えてクレジットを付与する
// 使用回数の更新と引き換え履歴は付与と同じトランザクションで書き込む
func (s *CodeRedemptionApplicationService) Redeem(ctx context.Context, req *RedeemCodeRequest) (*RedeemCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CodeRedemptionApplicationService.Redeem")
	defer span.End()

	codeValue := redemption_code.NormalizeCode(req.Code)
	span.SetAttributes(
		attribute.String("code", codeValue),
		attribute.String("user_id", req.UserID),
	)

	s.logger.Info(ctx, "Redeeming code", map[string]interface{}{
		"code":    codeValue,
		"user_id": req.UserID,
	})

	if !credit.ValidUserID(req.UserID) {
		span.SetStatus(otelcodes.Error, credit.ErrInvalidUserID.Error())
		return nil, credit.ErrInvalidUserID
	}
	if codeValue == "" {
		span.SetStatus(otelcodes.Error, redemption_code.ErrInvalidCode.Error())
		return nil, redemption_code.ErrInvalidCode
	}

	code, err := s.redemptionCodeRepo.FindByCode(ctx, codeValue)
	if err != nil {
		return nil, s.redeemFailed(ctx, span, req, err)
	}

	now := s.now()
	if err := code.CheckRedeemable(now); err != nil {
		return nil, s.redeemFailed(ctx, span, req, err)
	}

	hasRedeemed, err := s.redemptionCodeRepo.HasUserRedeemed(ctx, codeValue, req.UserID)
	if err != nil {
		return nil, s.redeemFailed(ctx, span, req, fmt.Errorf("failed to check redemption status: %w", err))
	}
	if hasRedeemed {
		return nil, s.redeemFailed(ctx, span, req, redemption_code.ErrUserAlreadyRedeemed)
	}

	redemptionID := s.newID()
	grant, err := s.granter.GrantWith(ctx, &ledger.GrantRequest{
		UserID:    req.UserID,
		Amount:    code.Credits(),
		Type:      usage.EntryTypeRedeem,
		Reference: codeValue,
	}, func(tx *sql.Tx, entryID string) error {
		// 付与がリトライされても元のエンティティは変更しない
		attempt := *code
		if err := attempt.Redeem(now); err != nil {
			return err
		}
		if err := s.redemptionCodeRepo.Update(ctx, tx, &attempt); err != nil {
			return err
		}
		return s.redemptionCodeRepo.SaveRedemption(ctx, tx,
			redemption_code.NewCodeRedemption(redemptionID, codeValue, req.UserID, entryID))
	})
	if err != nil {
		return nil, s.redeemFailed(ctx, span, req, err)
	}

	s.metrics.RecordRedemption(ctx, code.CodeType().String())
	s.logger.Info(ctx, "Code redeemed successfully", map[string]interface{}{
		"code":          codeValue,
		"user_id":       req.UserID,
		"redemption_id": redemptionID,
		"entry_id":      grant.EntryID,
	})

	return &RedeemCodeResponse{
		RedemptionID: redemptionID,
		EntryID:      grant.EntryID,
		Code:         codeValue,
		Credits:      code.Credits(),
		BalanceAfter: grant.BalanceAfter,
	}, nil
}

func (s *CodeRedemptionApplicationService) redeemFailed(ctx context.Context, span trace.Span, req *RedeemCodeRequest, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	if isRedemptionRejection(err) {
		s.logger.Warn(ctx, "Code redemption rejected", map[string]interface{}{
			"code":    req.Code,
			"user_id": req.UserID,
			"reason":  err.Error(),
		})
		return err
	}
	s.logger.Error(ctx, "Failed to redeem code", err, map[string]interface{}{
		"code":    req.Code,
		"user_id": req.UserID,
	})
	s.metrics.RecordError(ctx, "code_redemption_failed")
	return err
}

// isRedemptionRejection 利用者側の理由による拒否かどうか
func isRedemptionRejection(err error) bool {
	for _, target := range []error{
		redemption_code.ErrCodeNotFound,
		redemption_code.ErrCodeExpired,
		redemption_code.ErrCodeNotYetValid,
		redemption_code.ErrCodeDisabled,
		redemption_code.ErrCodeMaxUsesReached,
		redemption_code.ErrUserAlreadyRedeemed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CreateCode 引き換えコードを作成
func (s *CodeRedemptionApplicationService) CreateCode(ctx context.Context, req *CreateCodeRequest) (*CodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CodeRedemptionApplicationService.CreateCode")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", req.Code),
		attribute.String("code_type", req.CodeType),
		attribute.Int64("credits", req.Credits),
	)

	s.logger.Info(ctx, "Creating redemption code", map[string]interface{}{
		"code":        req.Code,
		"code_type":   req.CodeType,
		"credits":     req.Credits,
		"max_uses":    req.MaxUses,
		"valid_from":  req.ValidFrom,
		"valid_until": req.ValidUntil,
	})

	codeType, err := redemption_code.NewCodeType(req.CodeType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	rc, err := redemption_code.NewRedemptionCode(req.Code, codeType, req.Credits, req.MaxUses, req.ValidFrom, req.ValidUntil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if err := s.redemptionCodeRepo.Create(ctx, rc); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to create redemption code", err, map[string]interface{}{
			"code": rc.Code(),
		})
		s.metrics.RecordError(ctx, "code_create_failed")
		return nil, err
	}

	s.logger.Info(ctx, "Redemption code created", map[string]interface{}{
		"code": rc.Code(),
	})
	return toCodeResponse(rc), nil
}

// GetCode 引き換えコードを取得
func (s *CodeRedemptionApplicationService) GetCode(ctx context.Context, req *GetCodeRequest) (*CodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CodeRedemptionApplicationService.GetCode")
	defer span.End()

	codeValue := redemption_code.NormalizeCode(req.Code)
	span.SetAttributes(attribute.String("code", codeValue))

	rc, err := s.redemptionCodeRepo.FindByCode(ctx, codeValue)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return toCodeResponse(rc), nil
}

func toCodeResponse(rc *redemption_code.RedemptionCode) *CodeResponse {
	return &CodeResponse{
		Code:        rc.Code(),
		CodeType:    rc.CodeType().String(),
		Credits:     rc.Credits(),
		MaxUses:     rc.MaxUses(),
		CurrentUses: rc.CurrentUses(),
		ValidFrom:   rc.ValidFrom(),
		ValidUntil:  rc.ValidUntil(),
		Status:      rc.Status().String(),
		CreatedAt:   rc.CreatedAt(),
	}
}
