package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-ledger/internal/application/gate"
	"credit-ledger/internal/application/ledgerclient"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/identity"
)

// fakeLedger テスト用の台帳サーバー
type fakeLedger struct {
	balance  atomic.Int64
	consumes atomic.Int32
}

func (f *fakeLedger) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/credits/balance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"user_id": "user123", "balance": f.balance.Load()})
	})
	mux.HandleFunc("POST /api/v1/credits/consume", func(w http.ResponseWriter, r *http.Request) {
		f.consumes.Add(1)
		if f.balance.Load() <= 0 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "reason": "insufficient_funds", "balance": 0})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "new_balance": f.balance.Add(-1)})
	})
	mux.HandleFunc("POST /api/v1/codes/redeem", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": "WELCOME10", "credits": 10, "balance_after": f.balance.Add(10),
		})
	})
	return mux
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "error"

[remote]
base_url = "` + baseURL + `"

[identity]
mode = "static"
token = "test-token"
user_id = "user123"

[cache]
backend = "memory"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestBalanceCmd(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.balance.Store(5)
	srv := httptest.NewServer(ledger.handler(t))
	defer srv.Close()

	out, _, err := run(t, "balance", "--config", writeConfig(t, srv.URL))

	require.NoError(t, err)
	assert.Equal(t, "user123: 5 credits\n", out)
}

func TestBalanceCmd_LedgerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	out, _, err := run(t, "balance", "--config", writeConfig(t, srv.URL))

	require.NoError(t, err)
	assert.Contains(t, out, "balance unknown")
}

func TestRedeemCmd(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.balance.Store(3)
	srv := httptest.NewServer(ledger.handler(t))
	defer srv.Close()

	out, _, err := run(t, "redeem", "welcome10", "--config", writeConfig(t, srv.URL))

	require.NoError(t, err)
	assert.Equal(t, "Redeemed WELCOME10: +10 credits (balance 13)\n", out)
}

func TestEmailCmd(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		wantErr     error
		wantOut     string
		wantBalance int64
	}{
		{
			name:        "正常系: クレジットを消費して候補を表示",
			balance:     2,
			wantOut:     "jane.doe@acme.io",
			wantBalance: 1,
		},
		{
			name:    "異常系: 残高不足は購入案内",
			balance: 0,
			wantErr: errOutOfCredits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{}
			ledger.balance.Store(tt.balance)
			srv := httptest.NewServer(ledger.handler(t))
			defer srv.Close()

			out, errOut, err := run(t, "email", "--first", "Jane", "--last", "Doe", "--domain", "acme.io",
				"--config", writeConfig(t, srv.URL))

			assert.Equal(t, int32(1), ledger.consumes.Load())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, errOut, "out of credits")
				assert.Empty(t, out)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantOut)
			assert.Equal(t, tt.wantBalance, ledger.balance.Load())
		})
	}
}

func TestEmailCmd_InvalidDomainIsFree(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.balance.Store(2)
	srv := httptest.NewServer(ledger.handler(t))
	defer srv.Close()

	_, _, err := run(t, "email", "--first", "Jane", "--last", "Doe", "--domain", "not a domain",
		"--config", writeConfig(t, srv.URL))

	require.Error(t, err)
	assert.Equal(t, int32(0), ledger.consumes.Load())
}

func TestTokenCmd(t *testing.T) {
	out, _, err := run(t, "token", "--config", writeConfig(t, "http://127.0.0.1:1"))

	require.NoError(t, err)
	assert.Equal(t, "test-token\n", out)
}

func TestRootOptions_RequiresUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache]\nbackend = \"memory\"\n"), 0o600))
	t.Setenv("LEDGERCTL_USER_ID", "")

	_, _, err := run(t, "balance", "--config", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user id is required")
}

func TestNewTokenSource(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.IdentityConfig
		check   func(*testing.T, gate.TokenSource)
		wantErr bool
	}{
		{
			name: "正常系: static",
			cfg:  config.IdentityConfig{Mode: "static", Token: "tok"},
			check: func(t *testing.T, src gate.TokenSource) {
				tok, err := src.Token(context.Background())
				require.NoError(t, err)
				assert.Equal(t, "tok", tok)
			},
		},
		{
			name: "正常系: jwtはユーザーIDを含むトークンを発行",
			cfg:  config.IdentityConfig{Mode: "JWT", Secret: "s3cret", Issuer: "credit-ledger", UserID: "user123"},
			check: func(t *testing.T, src gate.TokenSource) {
				tok, err := src.Token(context.Background())
				require.NoError(t, err)
				userID, err := identity.ParseUserID("s3cret", tok)
				require.NoError(t, err)
				assert.Equal(t, "user123", userID)
			},
		},
		{
			name: "正常系: server",
			cfg:  config.IdentityConfig{Mode: "server", UserID: "user123"},
			check: func(t *testing.T, src gate.TokenSource) {
				assert.IsType(t, &identity.ServerSource{}, src)
			},
		},
		{
			name:    "異常系: 未対応のモード",
			cfg:     config.IdentityConfig{Mode: "oauth"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultClientConfig()
			cfg.Identity = tt.cfg

			src, err := newTokenSource(cfg, http.DefaultClient)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, src)
		})
	}
}

func TestCheckDecision(t *testing.T) {
	tests := []struct {
		name     string
		decision gate.Decision
		wantErr  error
	}{
		{"正常系: 実行済み", gate.Decision{Surface: gate.SurfaceNone}, nil},
		{"異常系: 残高不足", gate.Decision{Surface: gate.SurfaceUpsell, Result: ledgerclient.Result{Outcome: ledgerclient.OutcomeInsufficientFunds}}, errOutOfCredits},
		{"異常系: 一時的エラー", gate.Decision{Surface: gate.SurfaceError}, errLedgerUnavailable},
		{"異常系: 処理中", gate.Decision{Surface: gate.SurfacePending}, gate.ErrActionPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := checkDecision(&buf, tt.decision)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
