package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

func newTestAuthService(t *testing.T, cfg *config.JWTConfig, now time.Time) *AuthApplicationService {
	t.Helper()
	logger := otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"), otelinfra.WithOutput(io.Discard))
	svc := NewAuthApplicationService(cfg, logger)
	svc.now = func() time.Time { return now }
	return svc
}

func TestAuthApplicationService_GenerateToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	jwtConfig := &config.JWTConfig{
		Secret:     "ledger-dev-secret",
		Issuer:     "credit-ledger-dev",
		Expiration: 24 * time.Hour,
	}

	tests := []struct {
		name      string
		req       *GenerateTokenRequest
		jwtConfig *config.JWTConfig
		wantTTL   time.Duration
		wantErr   error
		wantFail  bool
	}{
		{
			name:      "正常系: TTL未指定なら設定の有効期限",
			req:       &GenerateTokenRequest{UserID: "user123"},
			jwtConfig: jwtConfig,
			wantTTL:   24 * time.Hour,
		},
		{
			name:      "正常系: 短いTTLの指定を尊重する",
			req:       &GenerateTokenRequest{UserID: "user123", TTL: 15 * time.Minute},
			jwtConfig: jwtConfig,
			wantTTL:   15 * time.Minute,
		},
		{
			name:      "正常系: 上限を超えるTTLは設定値に切り詰める",
			req:       &GenerateTokenRequest{UserID: "user123", TTL: 30 * 24 * time.Hour},
			jwtConfig: jwtConfig,
			wantTTL:   24 * time.Hour,
		},
		{
			name:      "異常系: ユーザーIDが空",
			req:       &GenerateTokenRequest{UserID: ""},
			jwtConfig: jwtConfig,
			wantErr:   credit.ErrInvalidUserID,
			wantFail:  true,
		},
		{
			name:      "異常系: シークレット未設定",
			req:       &GenerateTokenRequest{UserID: "user123"},
			jwtConfig: &config.JWTConfig{Issuer: "credit-ledger-dev", Expiration: time.Hour},
			wantFail:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(t, tt.jwtConfig, now)
			got, err := svc.GenerateToken(context.Background(), tt.req)

			if tt.wantFail {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Bearer", got.TokenType)
			assert.Equal(t, tt.req.UserID, got.Subject)
			assert.Equal(t, tt.jwtConfig.Issuer, got.Issuer)
			assert.Equal(t, now, got.IssuedAt)
			assert.Equal(t, now.Add(tt.wantTTL), got.ExpiresAt)
			assert.Equal(t, int64(tt.wantTTL/time.Second), got.ExpiresIn())

			// 期限の直前までは有効で、期限を過ぎると拒否される
			userID, err := identity.ParseUserIDAt(tt.jwtConfig.Secret, got.Token, got.ExpiresAt.Add(-time.Second))
			require.NoError(t, err)
			assert.Equal(t, tt.req.UserID, userID)
			_, err = identity.ParseUserIDAt(tt.jwtConfig.Secret, got.Token, got.ExpiresAt.Add(time.Second))
			assert.ErrorIs(t, err, identity.ErrInvalidToken)
		})
	}
}
