package auth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// AuthApplicationService 認証アプリケーションサービス（開発用のIDプロバイダ）
type AuthApplicationService struct {
	jwtConfig *config.JWTConfig
	logger    *otelinfra.Logger
	now       func() time.Time
}

// NewAuthApplicationService 新しいAuthApplicationServiceを作成
func NewAuthApplicationService(jwtConfig *config.JWTConfig, logger *otelinfra.Logger) *AuthApplicationService {
	return &AuthApplicationService{
		jwtConfig: jwtConfig,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateToken JWTトークンを生成
func (s *AuthApplicationService) GenerateToken(ctx context.Context, req *GenerateTokenRequest) (*GenerateTokenResponse, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "AuthApplicationService.GenerateToken")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
	)

	if !credit.ValidUserID(req.UserID) {
		err := credit.ErrInvalidUserID
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn(ctx, "Rejected token request with invalid user id", nil)
		return nil, err
	}

	now := s.now()
	ttl := s.tokenTTL(req.TTL)
	tokenString, err := identity.Mint(s.jwtConfig.Secret, s.jwtConfig.Issuer, req.UserID, ttl, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "Failed to generate token", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		return nil, err
	}

	resp := &GenerateTokenResponse{
		Token:     tokenString,
		TokenType: "Bearer",
		Subject:   req.UserID,
		Issuer:    s.jwtConfig.Issuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", resp.ExpiresIn()))
	s.logger.Info(ctx, "Token generated successfully", map[string]interface{}{
		"user_id":    req.UserID,
		"issuer":     resp.Issuer,
		"expires_at": resp.ExpiresAt.Unix(),
	})

	return resp, nil
}

// tokenTTL 要求されたTTLを設定の上限に収める
func (s *AuthApplicationService) tokenTTL(requested time.Duration) time.Duration {
	if requested <= 0 || requested > s.jwtConfig.Expiration {
		return s.jwtConfig.Expiration
	}
	return requested
}
