package interceptor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/presentation/grpc/pb"
)

// AuthInterceptor JWT認証インターセプター
func AuthInterceptor(cfg *config.JWTConfig, logger *otelinfra.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// メタデータからトークンを取得
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			logger.Warn(ctx, "Missing metadata", nil)
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			logger.Warn(ctx, "Missing authorization header", nil)
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		tokenString, err := identity.BearerToken(authHeaders[0])
		if err != nil {
			logger.Warn(ctx, "Invalid authorization header format", nil)
			return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
		}

		userID, err := identity.ParseUserID(cfg.Secret, tokenString)
		if err != nil {
			logger.Warn(ctx, "Invalid token", map[string]interface{}{
				"error":  err.Error(),
				"method": info.FullMethod,
			})
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		// ユーザーIDをコンテキストに設定
		return handler(identity.WithUserID(ctx, userID), req)
	}
}

// Selective matchがtrueを返すメソッドにだけinterceptorを適用する
func Selective(match func(fullMethod string) bool, interceptor grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !match(info.FullMethod) {
			return handler(ctx, req)
		}
		return interceptor(ctx, req, info, handler)
	}
}

// IsServiceMethod APIキー認証のサービス経路かどうかを返す
func IsServiceMethod(fullMethod string) bool {
	return fullMethod == pb.LedgerService_ConsumeAsService_FullMethodName ||
		fullMethod == pb.LedgerService_GetBalanceAsService_FullMethodName
}
