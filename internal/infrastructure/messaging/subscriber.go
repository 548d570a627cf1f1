package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/event"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// ErrInvalidEvent 受信したイベントが不正
var ErrInvalidEvent = errors.New("invalid balance event")

// Handler 受信した残高変更イベントの処理
type Handler func(ctx context.Context, e event.BalanceChanged) error

// Filter 処理対象のイベントだけtrueを返す
type Filter func(e event.BalanceChanged) bool

// ForUser 指定ユーザーのイベントだけを通すFilter
func ForUser(userID string) Filter {
	return func(e event.BalanceChanged) bool { return e.UserID == userID }
}

// Subscriber 残高変更イベントを購読する
// queueが空でなければキューグループで購読し、グループ内の1つだけがメッセージを受け取る
type Subscriber struct {
	nc      *nats.Conn
	subject string
	queue   string
	filter  Filter
	logger  *otelinfra.Logger
}

// NewSubscriber 新しいSubscriberを作成
func NewSubscriber(nc *nats.Conn, subject, queue string, filter Filter, logger *otelinfra.Logger) *Subscriber {
	if subject == "" {
		subject = event.SubjectBalanceChanged
	}
	return &Subscriber{
		nc:      nc,
		subject: subject,
		queue:   queue,
		filter:  filter,
		logger:  logger,
	}
}

// Run 購読を開始し、ctxがキャンセルされるまでブロックする
// 終了時は処理中のメッセージを待ってからDrainする
func (s *Subscriber) Run(ctx context.Context, handle Handler) error {
	cb := func(m *nats.Msg) { s.dispatch(ctx, m.Data, handle) }

	var (
		sub *nats.Subscription
		err error
	)
	if s.queue != "" {
		sub, err = s.nc.QueueSubscribe(s.subject, s.queue, cb)
	} else {
		sub, err = s.nc.Subscribe(s.subject, cb)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}

	s.logger.Info(ctx, "Balance event subscriber is running", map[string]interface{}{
		"subject": s.subject,
		"queue":   s.queue,
	})

	<-ctx.Done()

	s.logger.Info(context.Background(), "Balance event subscriber draining", map[string]interface{}{
		"subject": s.subject,
	})
	return sub.Drain()
}

// dispatch 1メッセージを復号して処理する
// 不正なメッセージやハンドラーのエラーはログのみで購読は継続する
func (s *Subscriber) dispatch(ctx context.Context, data []byte, handle Handler) {
	e, err := DecodeBalanceChanged(data)
	if err != nil {
		s.logger.Error(ctx, "Failed to decode balance event", err, map[string]interface{}{
			"subject": s.subject,
		})
		return
	}
	if s.filter != nil && !s.filter(e) {
		return
	}
	if err := handle(ctx, e); err != nil {
		s.logger.Error(ctx, "Failed to handle balance event", err, map[string]interface{}{
			"user_id":  e.UserID,
			"entry_id": e.EntryID,
			"kind":     string(e.Kind),
		})
		return
	}
	s.logger.Debug(ctx, "Balance event handled", map[string]interface{}{
		"user_id":  e.UserID,
		"entry_id": e.EntryID,
	})
}

// DecodeBalanceChanged JSONペイロードを残高変更イベントに復号する
func DecodeBalanceChanged(data []byte) (event.BalanceChanged, error) {
	var e event.BalanceChanged
	if err := json.Unmarshal(data, &e); err != nil {
		return event.BalanceChanged{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if !credit.ValidUserID(e.UserID) {
		return event.BalanceChanged{}, fmt.Errorf("%w: invalid user_id %q", ErrInvalidEvent, e.UserID)
	}
	if e.EntryID == "" {
		return event.BalanceChanged{}, fmt.Errorf("%w: missing entry_id", ErrInvalidEvent)
	}
	if e.Balance < 0 {
		return event.BalanceChanged{}, fmt.Errorf("%w: negative balance", ErrInvalidEvent)
	}
	return e, nil
}
