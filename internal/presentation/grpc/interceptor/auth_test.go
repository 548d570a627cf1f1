package interceptor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/presentation/grpc/pb"
)

func newTestLogger() *otelinfra.Logger {
	return otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"), otelinfra.WithOutput(io.Discard))
}

func signed(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthInterceptor(t *testing.T) {
	const secret = "test-secret"
	cfg := &config.JWTConfig{Secret: secret}

	valid, err := identity.Mint(secret, "credit-ledger", "user123", time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := identity.Mint(secret, "credit-ledger", "user123", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	wrongSecret, err := identity.Mint("other-secret", "credit-ledger", "user123", time.Hour, time.Now())
	require.NoError(t, err)
	noUser := signed(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	userNotString := signed(t, secret, jwt.MapClaims{"user_id": 123, "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name        string
		md          metadata.MD
		wantCode    codes.Code
		wantMessage string
		wantUserID  string
	}{
		{
			name:        "異常系: メタデータなし",
			md:          nil,
			wantCode:    codes.Unauthenticated,
			wantMessage: "missing metadata",
		},
		{
			name:        "異常系: Authorizationなし",
			md:          metadata.New(map[string]string{}),
			wantCode:    codes.Unauthenticated,
			wantMessage: "missing authorization header",
		},
		{
			name:        "異常系: Bearer形式ではない",
			md:          metadata.Pairs("authorization", "Token "+valid),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid authorization header format",
		},
		{
			name:        "異常系: 壊れたトークン",
			md:          metadata.Pairs("authorization", "Bearer not-a-jwt"),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid or expired token",
		},
		{
			name:        "異常系: 期限切れ",
			md:          metadata.Pairs("authorization", "Bearer "+expired),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid or expired token",
		},
		{
			name:        "異常系: 署名の秘密鍵が異なる",
			md:          metadata.Pairs("authorization", "Bearer "+wrongSecret),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid or expired token",
		},
		{
			name:        "異常系: user_idなし",
			md:          metadata.Pairs("authorization", "Bearer "+noUser),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid or expired token",
		},
		{
			name:        "異常系: user_idが文字列ではない",
			md:          metadata.Pairs("authorization", "Bearer "+userNotString),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid or expired token",
		},
		{
			name:       "正常系: 有効なトークン",
			md:         metadata.Pairs("authorization", "Bearer "+valid),
			wantCode:   codes.OK,
			wantUserID: "user123",
		},
		{
			name:       "正常系: 複数のAuthorizationは先頭を使う",
			md:         metadata.Pairs("authorization", "Bearer "+valid, "authorization", "Bearer invalid"),
			wantCode:   codes.OK,
			wantUserID: "user123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}

			var gotUserID string
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				gotUserID, _ = identity.UserIDFromContext(ctx)
				return "success", nil
			}
			info := &grpc.UnaryServerInfo{FullMethod: pb.LedgerService_GetBalance_FullMethodName}

			resp, err := AuthInterceptor(cfg, newTestLogger())(ctx, nil, info, handler)
			if tt.wantCode != codes.OK {
				st, ok := status.FromError(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantCode, st.Code())
				assert.Contains(t, st.Message(), tt.wantMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "success", resp)
			assert.Equal(t, tt.wantUserID, gotUserID)
		})
	}
}

func TestSelective(t *testing.T) {
	deny := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "success", nil
	}
	interceptor := Selective(IsServiceMethod, deny)

	t.Run("正常系: 対象外のメソッドは素通り", func(t *testing.T) {
		resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: pb.LedgerService_Consume_FullMethodName}, handler)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
	})

	t.Run("正常系: 対象メソッドには適用される", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: pb.LedgerService_ConsumeAsService_FullMethodName}, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})
}
