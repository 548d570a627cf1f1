package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics サーバー側台帳のメトリクス定義
type Metrics struct {
	// 消費リクエスト数（結果別）
	ConsumeCount metric.Int64Counter

	// 残高不足で拒否された消費の件数
	InsufficientCount metric.Int64Counter

	// 付与（購入・引き換え・初期付与）の件数
	GrantCount metric.Int64Counter

	// コード引き換え件数
	RedemptionCount metric.Int64Counter

	// 購入確定件数
	PurchaseCount metric.Int64Counter

	// APIリクエスト数
	RequestCount metric.Int64Counter

	// APIレイテンシ
	Latency metric.Float64Histogram

	// DBクエリ時間
	QueryDuration metric.Float64Histogram

	// エラー件数
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ConsumeCount, "ledger.consume.total", "Total number of credit consume requests"},
		{&m.InsufficientCount, "ledger.consume.insufficient.total", "Total number of consume requests rejected for insufficient funds"},
		{&m.GrantCount, "ledger.grant.total", "Total number of credit grants"},
		{&m.RedemptionCount, "ledger.redemption.total", "Total number of redeemed codes"},
		{&m.PurchaseCount, "ledger.purchase.total", "Total number of confirmed purchases"},
		{&m.RequestCount, "api.requests.total", "Total number of API requests"},
		{&m.ErrorCount, "errors.total", "Total number of errors"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	latency, err := meter.Float64Histogram(
		"api.latency",
		metric.WithDescription("API latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	m.Latency = latency

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	m.QueryDuration = queryDuration

	return m, nil
}

// RecordConsume 消費結果を記録
func (m *Metrics) RecordConsume(ctx context.Context, action, outcome string) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	m.ConsumeCount.Add(ctx, 1, attrs)
	if outcome == "insufficient_funds" {
		m.InsufficientCount.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
}

// RecordGrant 付与を記録
func (m *Metrics) RecordGrant(ctx context.Context, source string, amount int64) {
	m.GrantCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.Int64("amount", amount),
		),
	)
}

// RecordRedemption コード引き換えを記録
func (m *Metrics) RecordRedemption(ctx context.Context, codeType string) {
	m.RedemptionCount.Add(ctx, 1, metric.WithAttributes(attribute.String("code_type", codeType)))
}

// RecordPurchase 購入確定を記録
func (m *Metrics) RecordPurchase(ctx context.Context, packageID string) {
	m.PurchaseCount.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.Latency.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordQuery DBクエリ時間を記録
func (m *Metrics) RecordQuery(ctx context.Context, operation, table string, duration float64) {
	m.QueryDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error_type", errorType),
		),
	)
}
