package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	m, err := NewMetrics("test-meter")
	require.NoError(t, err)
	return m, reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, []attribute.Set) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	var sets []attribute.Set
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
				sets = append(sets, dp.Attributes)
			}
		}
	}
	return total, sets
}

func TestNewMetrics(t *testing.T) {
	m, _ := newManualMetrics(t)

	assert.NotNil(t, m.ConsumeCount)
	assert.NotNil(t, m.InsufficientCount)
	assert.NotNil(t, m.GrantCount)
	assert.NotNil(t, m.RedemptionCount)
	assert.NotNil(t, m.PurchaseCount)
	assert.NotNil(t, m.RequestCount)
	assert.NotNil(t, m.Latency)
	assert.NotNil(t, m.QueryDuration)
	assert.NotNil(t, m.ErrorCount)
}

func TestMetrics_RecordConsume(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordConsume(ctx, "job_analysis", "success")
	m.RecordConsume(ctx, "job_analysis", "insufficient_funds")
	m.RecordConsume(ctx, "email_lookup", "insufficient_funds")

	total, _ := collectSum(t, reader, "ledger.consume.total")
	assert.Equal(t, int64(3), total)

	insufficient, sets := collectSum(t, reader, "ledger.consume.insufficient.total")
	assert.Equal(t, int64(2), insufficient)
	assert.Len(t, sets, 2)
}

func TestMetrics_RecordError(t *testing.T) {
	m, reader := newManualMetrics(t)

	m.RecordError(context.Background(), "consume_failed")
	m.RecordError(context.Background(), "consume_failed")

	total, sets := collectSum(t, reader, "errors.total")
	assert.Equal(t, int64(2), total)
	require.Len(t, sets, 1)
	v, ok := sets[0].Value("error_type")
	require.True(t, ok)
	assert.Equal(t, "consume_failed", v.AsString())
}

func TestMetrics_RecordGrantsAndHistograms(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordGrant(ctx, "purchase", 30)
	m.RecordPurchase(ctx, "pro")
	m.RecordRedemption(ctx, "promotion")
	m.RecordRequest(ctx, "POST", "/api/v1/credits/consume")
	m.RecordResponseTime(ctx, "POST", "/api/v1/credits/consume", 0.012)
	m.RecordQuery(ctx, "UPDATE", "credit_accounts", 0.003)

	grants, _ := collectSum(t, reader, "ledger.grant.total")
	assert.Equal(t, int64(1), grants)
	purchases, _ := collectSum(t, reader, "ledger.purchase.total")
	assert.Equal(t, int64(1), purchases)
	redemptions, _ := collectSum(t, reader, "ledger.redemption.total")
	assert.Equal(t, int64(1), redemptions)
	requests, _ := collectSum(t, reader, "api.requests.total")
	assert.Equal(t, int64(1), requests)
}
