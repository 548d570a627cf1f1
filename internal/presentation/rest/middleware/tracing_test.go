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
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newSpanRecorder 記録用のTracerProviderとW3Cプロパゲーターを設定する
func newSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingMiddleware_SpanAttributes(t *testing.T) {
	recorder := newSpanRecorder(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/credits/consume", nil)
	req.Header.Set("User-Agent", "ledgerctl")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/credits/consume")

	handler := TracingMiddleware()(func(c echo.Context) error {
		// 認証ミドルウェアが設定したユーザーIDを模擬
		c.Set(ContextKeyUserID, "user-1")
		assert.True(t, trace.SpanContextFromContext(c.Request().Context()).IsValid())
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /api/v1/credits/consume", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())

	route, ok := attrValue(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/credits/consume", route.AsString())
	ua, ok := attrValue(span, "http.user_agent")
	require.True(t, ok)
	assert.Equal(t, "ledgerctl", ua.AsString())
	status, ok := attrValue(span, "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	user, ok := attrValue(span, "enduser.id")
	require.True(t, ok)
	assert.Equal(t, "user-1", user.AsString())
	assert.Equal(t, otelcodes.Unset, span.Status().Code)
}

func TestTracingMiddleware_ExtractsTraceContext(t *testing.T) {
	recorder := newSpanRecorder(t)

	// 呼び出し元のスパンを作成してヘッダーに注入
	parentCtx, parent := otel.Tracer("test").Start(context.Background(), "parent")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil)
	otel.GetTextMapPropagator().Inject(parentCtx, propagation.HeaderCarrier(req.Header))
	parent.End()

	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/credits/balance")

	handler := TracingMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, handler(c))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	server := spans[1]
	assert.Equal(t, parent.SpanContext().TraceID(), server.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), server.Parent().SpanID())
}

func TestTracingMiddleware_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    echo.HandlerFunc
		wantStatus int64
		wantCode   otelcodes.Code
		wantEvents bool
	}{
		{
			name: "異常系: 4xxのHTTPエラーはスパンをエラーにしない",
			handler: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusBadRequest, "bad request")
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   otelcodes.Unset,
			wantEvents: true,
		},
		{
			name: "異常系: 一般エラーは5xxとしてスパンをエラーにする",
			handler: func(c echo.Context) error {
				return errors.New("boom")
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   otelcodes.Error,
			wantEvents: true,
		},
		{
			name: "異常系: 書き込み済みの5xx",
			handler: func(c echo.Context) error {
				return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_server_error"})
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   otelcodes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := newSpanRecorder(t)

			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())
			c.SetPath("/test")

			_ = TracingMiddleware()(tt.handler)(c)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			status, ok := attrValue(spans[0], "http.status_code")
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, status.AsInt64())
			assert.Equal(t, tt.wantCode, spans[0].Status().Code)
			assert.Equal(t, tt.wantEvents, len(spans[0].Events()) > 0)
		})
	}
}
