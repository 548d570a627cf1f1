package gate

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/application/ledgerclient"
	"credit-ledger/internal/domain/credit"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// ErrActionPending 同じアクションが処理中
var ErrActionPending = errors.New("action already in progress")

// Surface 呼び出し側が表示すべき画面
type Surface int

const (
	SurfaceNone    Surface = iota // 有料アクションを実行した
	SurfaceUpsell                 // クレジット購入・引き換えの案内
	SurfaceError                  // リトライ可能なエラー表示
	SurfacePending                // 処理中（二重実行の抑止）
)

// String 文字列表現を返す
func (s Surface) String() string {
	switch s {
	case SurfaceNone:
		return "none"
	case SurfaceUpsell:
		return "upsell"
	case SurfaceError:
		return "error"
	case SurfacePending:
		return "pending"
	default:
		return "unknown"
	}
}

// TokenSource IDプロバイダから短命トークンを取得する
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Ledger クレジット消費の窓口
type Ledger interface {
	UseCredit(ctx context.Context, req ledgerclient.ConsumeRequest) (ledgerclient.Result, error)
}

// Metrics ゲート判定の記録
type Metrics interface {
	ObserveDecision(action, surface string)
}

// PaidAction クレジット消費成功後にのみ実行される有料処理
type PaidAction func(ctx context.Context) error

// Request ゲートへのリクエスト
type Request struct {
	UserID     string
	Action     credit.ActionType
	Amount     int64 // 0の場合は1
	AuditEmail string
}

// Decision ゲートの判定結果
type Decision struct {
	Surface Surface
	Result  ledgerclient.Result
}

// Proceeded 有料アクションが実行されたかどうかを返す
func (d Decision) Proceeded() bool {
	return d.Surface == SurfaceNone
}

type inflightKey struct {
	userID string
	action credit.ActionType
}

// Gate 有料アクションをクレジット消費で保護する
type Gate struct {
	ledger   Ledger
	tokens   TokenSource
	logger   *otelinfra.Logger
	metrics  Metrics
	tracer   trace.Tracer
	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

// NewGate 新しいGateを作成
// tokensがnilの場合は常にトークンなしで消費を試みる
func NewGate(ledger Ledger, tokens TokenSource, logger *otelinfra.Logger, metrics Metrics) *Gate {
	return &Gate{
		ledger:   ledger,
		tokens:   tokens,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("action-gate"),
		inflight: make(map[inflightKey]struct{}),
	}
}

func (g *Gate) acquire(k inflightKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[k]; busy {
		return false
	}
	g.inflight[k] = struct{}{}
	return true
}

func (g *Gate) release(k inflightKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, k)
}

// Run クレジットを消費し、成功した場合のみpaidを1回実行する
// 返すerrorは二重実行（ErrActionPending）かpaid自身のエラーのみ
func (g *Gate) Run(ctx context.Context, req Request, paid PaidAction) (Decision, error) {
	ctx, span := g.tracer.Start(ctx, "Gate.Run")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("action", req.Action.String()),
	)

	key := inflightKey{userID: req.UserID, action: req.Action}
	if !g.acquire(key) {
		g.observe(req.Action, SurfacePending)
		return Decision{Surface: SurfacePending}, ErrActionPending
	}
	defer g.release(key)

	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	// トークン取得失敗は匿名扱い
	token := ""
	if g.tokens != nil {
		t, err := g.tokens.Token(ctx)
		if err != nil {
			g.logger.Warn(ctx, "Auth token unavailable, continuing without token", map[string]interface{}{
				"user_id": req.UserID,
				"error":   err.Error(),
			})
		} else {
			token = t
		}
	}

	result, err := g.ledger.UseCredit(ctx, ledgerclient.ConsumeRequest{
		UserID:     req.UserID,
		Amount:     amount,
		Action:     req.Action,
		AuthToken:  token,
		AuditEmail: req.AuditEmail,
	})
	if err != nil {
		result = ledgerclient.TransientResult(err)
	}

	if !result.Success() {
		surface := SurfaceError
		if result.IsInsufficientFunds() {
			surface = SurfaceUpsell
		}
		span.SetAttributes(attribute.String("error_code", result.ErrorCode()))
		g.logger.Info(ctx, "Paid action blocked", map[string]interface{}{
			"user_id":    req.UserID,
			"action":     req.Action.String(),
			"error_code": result.ErrorCode(),
			"surface":    surface.String(),
		})
		g.observe(req.Action, surface)
		return Decision{Surface: surface, Result: result}, nil
	}

	g.observe(req.Action, SurfaceNone)
	if err := paid(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		g.logger.Error(ctx, "Paid action failed after credit was consumed", err, map[string]interface{}{
			"user_id": req.UserID,
			"action":  req.Action.String(),
		})
		return Decision{Surface: SurfaceNone, Result: result}, err
	}
	return Decision{Surface: SurfaceNone, Result: result}, nil
}

func (g *Gate) observe(action credit.ActionType, s Surface) {
	if g.metrics != nil {
		g.metrics.ObserveDecision(action.String(), s.String())
	}
}
