package ledgerclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"credit-ledger/internal/domain/credit"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// DefaultRequestTimeout リモート台帳呼び出しのタイムアウト既定値
const DefaultRequestTimeout = 10 * time.Second

// Config クライアント設定
type Config struct {
	// RequestTimeout リモート呼び出し1回あたりのタイムアウト
	RequestTimeout time.Duration
	// AllowAnonymous トークンなしでの消費を匿名経路で許可する（縮退モード）
	AllowAnonymous bool
	// PurchaseThreshold 購入通知を出す増加量
	PurchaseThreshold int64
}

// ConsumeRequest クレジット消費リクエスト
type ConsumeRequest struct {
	UserID     string
	Amount     int64
	Action     credit.ActionType
	AuthToken  string
	AuditEmail string
}

// Option Clientのオプション
type Option func(*Client)

// WithNotifier 購入通知先を設定
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithMetrics メトリクス記録先を設定
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithIdempotencyKeyFunc 冪等キーの生成関数を設定
func WithIdempotencyKeyFunc(f func() string) Option {
	return func(c *Client) { c.newKey = f }
}

// Client クレジット台帳クライアント
// キャッシュへの書き込みは全てこの型を経由する
type Client struct {
	cache    BalanceCache
	remote   Remote
	detector PurchaseDetector
	notifier Notifier
	metrics  Metrics
	logger   *otelinfra.Logger
	tracer   trace.Tracer
	cfg      Config
	newKey   func() string
	refresh  singleflight.Group
}

// NewClient 新しいClientを作成
func NewClient(cache BalanceCache, remote Remote, logger *otelinfra.Logger, cfg Config, opts ...Option) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	c := &Client{
		cache:    cache,
		remote:   remote,
		detector: NewPurchaseDetector(cfg.PurchaseThreshold),
		metrics:  nopMetrics{},
		logger:   logger,
		tracer:   otel.Tracer("ledger-client"),
		cfg:      cfg,
		newKey:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type consumeReply struct {
	resp *RemoteConsumeResponse
	err  error
}

// UseCredit クレジットを消費する
// 業務上の結果（残高不足やリモート障害）は全てResultで返し、errorは前提条件違反のみ
func (c *Client) UseCredit(ctx context.Context, req ConsumeRequest) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "Client.UseCredit")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int64("amount", req.Amount),
		attribute.String("action", req.Action.String()),
		attribute.Bool("has_token", req.AuthToken != ""),
	)

	// バリデーション
	if strings.TrimSpace(req.UserID) == "" {
		span.RecordError(ErrInvalidUserID)
		span.SetStatus(otelcodes.Error, ErrInvalidUserID.Error())
		return Result{}, ErrInvalidUserID
	}
	if req.Amount <= 0 {
		span.RecordError(ErrInvalidAmount)
		span.SetStatus(otelcodes.Error, ErrInvalidAmount.Error())
		return Result{}, ErrInvalidAmount
	}

	// 楽観的減算
	reservation, err := c.cache.Reserve(ctx, req.UserID, req.Amount)
	if err != nil {
		// キャッシュ障害時はサーバーのみで判定する
		c.logger.Warn(ctx, "Balance cache reserve failed, deferring to remote ledger", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		reservation = Reservation{Status: ReservationUnknown, Amount: req.Amount}
	}

	if reservation.Status == ReservationInsufficient {
		result := insufficientResult(ScopeLocal)
		c.logger.Info(ctx, "Credit denied by cached balance", map[string]interface{}{
			"user_id": req.UserID,
			"cached":  reservation.Before.Balance,
			"amount":  req.Amount,
		})
		return c.finish(ctx, span, result), nil
	}

	if req.AuthToken == "" && !c.cfg.AllowAnonymous {
		c.rollback(ctx, req.UserID, reservation)
		return c.finish(ctx, span, transientResult(ErrAuthTokenUnavailable)), nil
	}

	resp, err := c.consumeRemote(ctx, RemoteConsumeRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Action:         req.Action,
		IdempotencyKey: c.newKey(),
		AuditEmail:     req.AuditEmail,
		AuthToken:      req.AuthToken,
	})
	if err != nil {
		c.rollback(ctx, req.UserID, reservation)
		c.logger.Error(ctx, "Remote credit consumption failed", err, map[string]interface{}{
			"user_id": req.UserID,
			"action":  req.Action.String(),
		})
		return c.finish(ctx, span, transientResult(err)), nil
	}

	if !resp.Success {
		c.rollback(ctx, req.UserID, reservation)
		if resp.Reason != ReasonInsufficientFunds {
			return c.finish(ctx, span, transientResult(fmt.Errorf("%w: %s", ErrRejected, resp.Reason))), nil
		}
		// サーバー値でキャッシュを補正する
		if resp.Balance != nil {
			if _, err := c.cache.Set(ctx, req.UserID, *resp.Balance); err != nil {
				c.logger.Warn(ctx, "Failed to correct cached balance", map[string]interface{}{
					"user_id": req.UserID,
					"error":   err.Error(),
				})
			}
		}
		c.logger.Info(ctx, "Credit denied by remote ledger", map[string]interface{}{
			"user_id": req.UserID,
			"amount":  req.Amount,
		})
		return c.finish(ctx, span, insufficientResult(ScopeRemote)), nil
	}

	if _, err := c.cache.Set(ctx, req.UserID, resp.NewBalance); err != nil {
		c.logger.Warn(ctx, "Failed to store confirmed balance", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
	}

	c.logger.Info(ctx, "Credit consumed", map[string]interface{}{
		"user_id":     req.UserID,
		"action":      req.Action.String(),
		"new_balance": resp.NewBalance,
	})
	return c.finish(ctx, span, successResult(resp.NewBalance)), nil
}

// consumeRemote リモート減算を1回だけ実行する
// リモート実装がコンテキストを無視してもタイムアウトで必ず戻る
func (c *Client) consumeRemote(ctx context.Context, req RemoteConsumeRequest) (*RemoteConsumeResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	defer func() { c.metrics.ObserveRemoteLatency("consume", time.Since(start)) }()

	ch := make(chan consumeReply, 1)
	go func() {
		resp, err := c.remote.Consume(callCtx, req)
		ch <- consumeReply{resp: resp, err: err}
	}()

	var reply consumeReply
	select {
	case reply = <-ch:
	case <-callCtx.Done():
		reply.err = callCtx.Err()
	}

	if reply.err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(reply.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, reply.err)
		}
		return nil, reply.err
	}
	if err := validateConsumeResponse(reply.resp); err != nil {
		return nil, err
	}
	return reply.resp, nil
}

func validateConsumeResponse(resp *RemoteConsumeResponse) error {
	switch {
	case resp == nil:
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	case resp.Success && resp.NewBalance < 0:
		return fmt.Errorf("%w: negative balance %d", ErrMalformedResponse, resp.NewBalance)
	case !resp.Success && resp.Reason == "":
		return fmt.Errorf("%w: rejection without reason", ErrMalformedResponse)
	case resp.Balance != nil && *resp.Balance < 0:
		return fmt.Errorf("%w: negative balance %d", ErrMalformedResponse, *resp.Balance)
	}
	return nil
}

func (c *Client) rollback(ctx context.Context, userID string, r Reservation) {
	if r.Status != ReservationReserved {
		return
	}
	if err := c.cache.Restore(ctx, userID, r); err != nil {
		// 戻せなかった場合は未取得に戻し、次回のrefreshで同期する
		c.logger.Error(ctx, "Failed to restore reserved credits", err, map[string]interface{}{
			"user_id": userID,
			"amount":  r.Amount,
		})
		_ = c.cache.Delete(ctx, userID)
	}
}

func (c *Client) finish(ctx context.Context, span trace.Span, result Result) Result {
	span.SetAttributes(
		attribute.String("outcome", result.Outcome.String()),
		attribute.String("error_code", result.ErrorCode()),
	)
	if result.Outcome == OutcomeTransientError {
		span.RecordError(result.Cause)
		span.SetStatus(otelcodes.Error, result.ErrorCode())
	}
	c.metrics.ObserveUseCredit(result.Outcome.String(), result.ErrorCode())
	return result
}

// FetchCredits 権威ある残高でキャッシュを上書きする（呼び捨て可）
// 失敗時はログのみでキャッシュは変更しない
func (c *Client) FetchCredits(ctx context.Context, userID, authToken string) {
	if _, err := c.Refresh(ctx, userID, authToken); err != nil {
		c.logger.Warn(ctx, "Credit refresh failed, keeping cached balance", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// Refresh 権威ある残高を取得してキャッシュを上書きし、結果を返す
// 同じユーザーとトークンでの同時呼び出しは1回のリモート呼び出しにまとめられ、
// 後続の呼び出しは先行呼び出しのコンテキストで得た結果を共有する
func (c *Client) Refresh(ctx context.Context, userID, authToken string) (Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return Snapshot{}, ErrInvalidUserID
	}
	if authToken == "" && !c.cfg.AllowAnonymous {
		c.metrics.ObserveRefresh(classify(ErrAuthTokenUnavailable))
		return Snapshot{}, ErrAuthTokenUnavailable
	}
	key := userID + "\x00" + authToken
	v, err, _ := c.refresh.Do(key, func() (interface{}, error) {
		return c.doRefresh(ctx, userID, authToken)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (c *Client) doRefresh(ctx context.Context, userID, authToken string) (Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, "Client.Refresh")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Bool("has_token", authToken != ""),
	)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	balance, err := c.remote.GetBalance(callCtx, userID, authToken)
	c.metrics.ObserveRemoteLatency("get_balance", time.Since(start))
	if err == nil && balance < 0 {
		err = fmt.Errorf("%w: negative balance %d", ErrMalformedResponse, balance)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.metrics.ObserveRefresh(classify(err))
		return Snapshot{}, err
	}

	prev, err := c.cache.Get(ctx, userID)
	if err != nil {
		prev = Snapshot{}
	}
	next, err := c.cache.Set(ctx, userID, balance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.metrics.ObserveRefresh("cache_error")
		return Snapshot{}, fmt.Errorf("failed to store refreshed balance: %w", err)
	}
	c.metrics.ObserveRefresh("ok")

	c.logger.Debug(ctx, "Credits refreshed", map[string]interface{}{
		"user_id":  userID,
		"previous": prev.Balance,
		"known":    prev.Known,
		"balance":  balance,
	})

	c.detectPurchase(ctx, userID, prev, balance)
	return next, nil
}

// Credit 購入・引き換え確定後にキャッシュ残高を加算する
func (c *Client) Credit(ctx context.Context, userID string, amount int64) (Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return Snapshot{}, ErrInvalidUserID
	}
	if amount <= 0 {
		return Snapshot{}, ErrInvalidAmount
	}
	prev, err := c.cache.Get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	next, err := c.cache.Add(ctx, userID, amount)
	if err != nil {
		return Snapshot{}, err
	}
	if next.Known {
		c.detectPurchase(ctx, userID, prev, next.Balance)
	}
	return next, nil
}

// Reset サインアウト時にキャッシュを未取得状態に戻す（サーバーは変更しない）
func (c *Client) Reset(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	if err := c.cache.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset cached balance: %w", err)
	}
	c.logger.Info(ctx, "Cached balance reset", map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

// Balance キャッシュされた残高を返す
func (c *Client) Balance(ctx context.Context, userID string) (Snapshot, error) {
	return c.cache.Get(ctx, userID)
}

func (c *Client) detectPurchase(ctx context.Context, userID string, prev Snapshot, next int64) {
	if !c.detector.Detect(prev, next) {
		return
	}
	notice := PurchaseNotice{
		UserID:   userID,
		Previous: prev.Balance,
		Current:  next,
		Delta:    next - prev.Balance,
	}
	c.logger.Info(ctx, "Purchase detected", map[string]interface{}{
		"user_id":  userID,
		"previous": notice.Previous,
		"current":  notice.Current,
	})
	c.metrics.ObservePurchaseNotification()
	if c.notifier != nil {
		c.notifier.NotifyPurchase(ctx, notice)
	}
}
