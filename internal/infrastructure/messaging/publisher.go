package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/event"
)

// Bus メッセージ送信の最小インターフェース（*nats.Connが満たす）
type Bus interface {
	Publish(subject string, data []byte) error
}

// Publisher 残高変更イベントをNATSへJSONで配信する
type Publisher struct {
	bus     Bus
	subject string
	tracer  trace.Tracer
}

// NewPublisher 新しいPublisherを作成
func NewPublisher(bus Bus, subject string) *Publisher {
	if subject == "" {
		subject = event.SubjectBalanceChanged
	}
	return &Publisher{
		bus:     bus,
		subject: subject,
		tracer:  otel.Tracer("nats-publisher"),
	}
}

// Connect NATSサーバーへ接続する
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats %s: %w", url, err)
	}
	return nc, nil
}

// PublishBalanceChanged イベントを配信
func (p *Publisher) PublishBalanceChanged(ctx context.Context, e event.BalanceChanged) error {
	_, span := p.tracer.Start(ctx, "Publisher.PublishBalanceChanged", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination", p.subject),
		attribute.String("user_id", e.UserID),
		attribute.String("kind", string(e.Kind)),
	)

	data, err := json.Marshal(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to encode balance event: %w", err)
	}
	if err := p.bus.Publish(p.subject, data); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to publish balance event: %w", err)
	}
	return nil
}
