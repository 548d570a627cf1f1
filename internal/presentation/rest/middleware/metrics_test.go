package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

func newTestMetrics(t *testing.T) (*otelinfra.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	metrics, err := otelinfra.NewMetrics("test-meter")
	require.NoError(t, err)
	return metrics, reader
}

// counterValues カウンターのデータポイントを属性ごとに返す
func counterValues(t *testing.T, reader *sdkmetric.ManualReader, name string) map[attribute.Distinct]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	values := map[attribute.Distinct]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				values[dp.Attributes.Equivalent()] += dp.Value
			}
		}
	}
	return values
}

func errorCount(t *testing.T, reader *sdkmetric.ManualReader, errorType string) int64 {
	t.Helper()
	set := attribute.NewSet(attribute.String("error_type", errorType))
	return counterValues(t, reader, "errors.total")[set.Equivalent()]
}

func TestMetricsMiddleware_RecordsRequestByRoute(t *testing.T) {
	metrics, reader := newTestMetrics(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/service/credits/user-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/service/credits/:user_id")

	handler := MetricsMiddleware(metrics)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	set := attribute.NewSet(
		attribute.String("method", http.MethodGet),
		attribute.String("path", "/api/v1/service/credits/:user_id"),
	)
	assert.Equal(t, int64(1), counterValues(t, reader, "api.requests.total")[set.Equivalent()])
	assert.Zero(t, errorCount(t, reader, "client_error"))
	assert.Zero(t, errorCount(t, reader, "server_error"))
}

func TestMetricsMiddleware_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		handler       echo.HandlerFunc
		wantErr       bool
		wantErrorType string
	}{
		{
			name: "正常系: 3xxはエラーとして記録しない",
			handler: func(c echo.Context) error {
				return c.Redirect(http.StatusMovedPermanently, "/redirect")
			},
		},
		{
			name: "異常系: 書き込み済みの4xx",
			handler: func(c echo.Context) error {
				return c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient_balance"})
			},
			wantErrorType: "client_error",
		},
		{
			name: "異常系: 未処理のHTTPエラー",
			handler: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusBadRequest, "bad request")
			},
			wantErr:       true,
			wantErrorType: "client_error",
		},
		{
			name: "異常系: 未処理の一般エラーは5xx扱い",
			handler: func(c echo.Context) error {
				return errors.New("boom")
			},
			wantErr:       true,
			wantErrorType: "server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, reader := newTestMetrics(t)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath("/test")

			err := MetricsMiddleware(metrics)(tt.handler)(c)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			for _, errorType := range []string{"client_error", "server_error"} {
				want := int64(0)
				if errorType == tt.wantErrorType {
					want = 1
				}
				assert.Equal(t, want, errorCount(t, reader, errorType), errorType)
			}
		})
	}
}
