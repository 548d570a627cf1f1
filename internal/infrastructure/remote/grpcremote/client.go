package grpcremote

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"credit-ledger/internal/application/ledgerclient"
	"credit-ledger/internal/presentation/grpc/pb"
)

// Client 台帳サーバーのgRPCクライアント
// トークンがある場合はユーザー経路、ない場合はAPIキーでサービス経路を使う
type Client struct {
	rpc    pb.LedgerServiceClient
	conn   *grpc.ClientConn
	apiKey string
}

// Dial 台帳サーバーへ接続する
func Dial(target, apiKey string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return &Client{
		rpc:    pb.NewLedgerServiceClient(conn),
		conn:   conn,
		apiKey: apiKey,
	}, nil
}

// Close 接続を閉じる
func (c *Client) Close() error {
	return c.conn.Close()
}

// Consume 減算RPC
func (c *Client) Consume(ctx context.Context, req ledgerclient.RemoteConsumeRequest) (*ledgerclient.RemoteConsumeResponse, error) {
	in := &pb.ConsumeRequest{
		Amount:         req.Amount,
		Action:         req.Action.String(),
		IdempotencyKey: req.IdempotencyKey,
		AuditEmail:     req.AuditEmail,
	}

	var (
		out *pb.ConsumeResponse
		err error
	)
	if req.AuthToken != "" {
		out, err = c.rpc.Consume(c.outgoing(ctx, req.AuthToken), in)
	} else {
		in.UserId = req.UserID
		out, err = c.rpc.ConsumeAsService(c.outgoing(ctx, ""), in)
	}
	if err != nil {
		return nil, translate(err)
	}

	return &ledgerclient.RemoteConsumeResponse{
		Success:    out.Success,
		NewBalance: out.NewBalance,
		Reason:     out.Reason,
		Balance:    out.Balance,
	}, nil
}

// GetBalance 残高取得RPC
func (c *Client) GetBalance(ctx context.Context, userID, authToken string) (int64, error) {
	var (
		out *pb.GetBalanceResponse
		err error
	)
	if authToken != "" {
		out, err = c.rpc.GetBalance(c.outgoing(ctx, authToken), &pb.GetBalanceRequest{})
	} else {
		out, err = c.rpc.GetBalanceAsService(c.outgoing(ctx, ""), &pb.GetBalanceRequest{UserId: userID})
	}
	if err != nil {
		return 0, translate(err)
	}
	if out.UserId != "" && out.UserId != userID {
		return 0, fmt.Errorf("%w: balance for %q returned for %q", ledgerclient.ErrMalformedResponse, out.UserId, userID)
	}
	return out.Balance, nil
}

// outgoing 認証情報とトレースコンテキストをメタデータに載せる
func (c *Client) outgoing(ctx context.Context, token string) context.Context {
	md := metadata.MD{}
	if token != "" {
		md.Set("authorization", "Bearer "+token)
	} else {
		md.Set("x-api-key", c.apiKey)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		md.Set(k, v)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// translate gRPCステータスをクライアントのエラー分類へ変換
func translate(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ledgerclient.ErrUnauthorized, st.Message())
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unimplemented:
		return fmt.Errorf("%w: %s", ledgerclient.ErrServerError, st.Message())
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("ledger unavailable: %s", st.Message())
	default:
		return fmt.Errorf("%w: %s: %s", ledgerclient.ErrRejected, st.Code(), st.Message())
	}
}
