package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		https         bool
		wantCDN       bool
		wantNoStore   bool
		wantHSTS      bool
		handlerReturn error
	}{
		{
			name:        "正常系: APIパスは厳格なCSPとno-store",
			path:        "/api/v1/credits/balance",
			wantNoStore: true,
		},
		{
			name:    "正常系: Swagger UIは外部CDNを許可",
			path:    "/swagger/index.html",
			wantCDN: true,
		},
		{
			name:    "正常系: ReDocは外部CDNを許可",
			path:    "/redoc",
			wantCDN: true,
		},
		{
			name:    "正常系: openapi.yamlは外部CDNを許可",
			path:    "/openapi.yaml",
			wantCDN: true,
		},
		{
			name:  "正常系: ヘルスチェックはキャッシュ制御なし",
			path:  "/health",
			https: false,
		},
		{
			name:        "正常系: HTTPSではHSTSを設定",
			path:        "/api/v1/credits/balance",
			https:       true,
			wantNoStore: true,
			wantHSTS:    true,
		},
		{
			name:          "異常系: ハンドラーがエラーでもヘッダーは設定される",
			path:          "/api/v1/credits/consume",
			wantNoStore:   true,
			handlerReturn: errors.New("handler error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.https {
				req.Header.Set(echo.HeaderXForwardedProto, "https")
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := SecurityHeadersMiddleware()(func(c echo.Context) error {
				if tt.handlerReturn != nil {
					return tt.handlerReturn
				}
				return c.String(http.StatusOK, "ok")
			})

			err := handler(c)
			if tt.handlerReturn != nil {
				assert.Equal(t, tt.handlerReturn, err)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))

			csp := rec.Header().Get("Content-Security-Policy")
			assert.Contains(t, csp, "default-src 'self'")
			assert.Equal(t, tt.wantCDN, containsAll(csp, "https://unpkg.com", "https://cdn.jsdelivr.net"))

			if tt.wantNoStore {
				assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			} else {
				assert.Empty(t, rec.Header().Get("Cache-Control"))
			}

			if tt.wantHSTS {
				assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
			} else {
				assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
			}
		})
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
