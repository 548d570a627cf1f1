package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	ledgerapp "credit-ledger/internal/application/ledger"
	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/usage"
	"credit-ledger/internal/infrastructure/identity"
	"credit-ledger/internal/presentation/grpc/pb"
)

// LedgerService ハンドラーが利用する台帳サービス
type LedgerService interface {
	GetBalance(ctx context.Context, req *ledgerapp.GetBalanceRequest) (*ledgerapp.GetBalanceResponse, error)
	Consume(ctx context.Context, req *ledgerapp.ConsumeRequest) (*ledgerapp.ConsumeResponse, error)
}

// LedgerHandler gRPC台帳サービスハンドラー
type LedgerHandler struct {
	pb.UnimplementedLedgerServiceServer
	ledgerService LedgerService
}

// NewLedgerHandler 新しいLedgerHandlerを作成
func NewLedgerHandler(ledgerService LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

// Consume トークンのユーザーでクレジットを消費
func (h *LedgerHandler) Consume(ctx context.Context, req *pb.ConsumeRequest) (*pb.ConsumeResponse, error) {
	userID, err := authenticatedUser(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return h.consume(ctx, userID, req)
}

// ConsumeAsService サービス経路でクレジットを消費（APIキー認証）
func (h *LedgerHandler) ConsumeAsService(ctx context.Context, req *pb.ConsumeRequest) (*pb.ConsumeResponse, error) {
	if req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return h.consume(ctx, req.UserId, req)
}

// GetBalance トークンのユーザーの残高を取得
func (h *LedgerHandler) GetBalance(ctx context.Context, req *pb.GetBalanceRequest) (*pb.GetBalanceResponse, error) {
	userID, err := authenticatedUser(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return h.getBalance(ctx, userID)
}

// GetBalanceAsService サービス経路で残高を取得（APIキー認証）
func (h *LedgerHandler) GetBalanceAsService(ctx context.Context, req *pb.GetBalanceRequest) (*pb.GetBalanceResponse, error) {
	if req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return h.getBalance(ctx, req.UserId)
}

func (h *LedgerHandler) consume(ctx context.Context, userID string, req *pb.ConsumeRequest) (*pb.ConsumeResponse, error) {
	if req.Amount <= 0 {
		return nil, status.Error(codes.InvalidArgument, "amount must be positive")
	}
	if req.Action == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}

	appResp, err := h.ledgerService.Consume(ctx, &ledgerapp.ConsumeRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Action:         req.Action,
		IdempotencyKey: req.IdempotencyKey,
		AuditEmail:     req.AuditEmail,
	})
	if err != nil {
		return nil, h.handleError(err)
	}

	if !appResp.Success {
		return &pb.ConsumeResponse{
			Success: false,
			Reason:  appResp.Reason,
			Balance: proto.Int64(appResp.Balance),
		}, nil
	}
	return &pb.ConsumeResponse{
		Success:    true,
		NewBalance: appResp.NewBalance,
	}, nil
}

func (h *LedgerHandler) getBalance(ctx context.Context, userID string) (*pb.GetBalanceResponse, error) {
	appResp, err := h.ledgerService.GetBalance(ctx, &ledgerapp.GetBalanceRequest{UserID: userID})
	if err != nil {
		return nil, h.handleError(err)
	}
	return &pb.GetBalanceResponse{
		UserId:  appResp.UserID,
		Balance: appResp.Balance,
	}, nil
}

// authenticatedUser インターセプターが設定したユーザーIDを返す
// リクエストにuser_idがある場合はトークンと一致しなければならない
func authenticatedUser(ctx context.Context, requested string) (string, error) {
	userID, ok := identity.UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "user not authenticated")
	}
	if requested != "" && requested != userID {
		return "", status.Error(codes.PermissionDenied, "user_id does not match token")
	}
	return userID, nil
}

// handleError エラーをgRPCステータスコードに変換
func (h *LedgerHandler) handleError(err error) error {
	switch {
	case errors.Is(err, credit.ErrInvalidUserID),
		errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidActionType),
		errors.Is(err, usage.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, credit.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, credit.ErrAccountNotFound), errors.Is(err, usage.ErrEntryNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, credit.ErrVersionConflict), errors.Is(err, usage.ErrDuplicateIdempotencyKey):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
