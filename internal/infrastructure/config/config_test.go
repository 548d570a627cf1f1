package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantError   string
		checkConfig func(*testing.T, *Config)
	}{
		{
			name: "正常系: デフォルト値で設定を読み込む",
			env: map[string]string{
				"JWT_SECRET":    "test-secret",
				"ADMIN_API_KEY": "service-key",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "credit_ledger", cfg.Database.Database)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 9090, cfg.Server.GRPCPort)
				assert.Equal(t, 3306, cfg.Database.Port)
				assert.Equal(t, int64(3), cfg.Ledger.StartingGrant)
				assert.Equal(t, "starter:10,pro:30,max:100", cfg.Ledger.Packages)
				assert.Equal(t, "ledger.balance.changed", cfg.NATS.Subject)
				assert.False(t, cfg.NATS.Enabled)
				assert.Equal(t, time.Hour, cfg.JWT.Expiration)
				assert.Equal(t, float64(1), cfg.OpenTelemetry.SampleRatio)
				assert.Nil(t, cfg.AdminAPI.AllowedIPs)
			},
		},
		{
			name: "正常系: 環境変数から設定を読み込む",
			env: map[string]string{
				"ENVIRONMENT":             "production",
				"SERVER_PORT":             "9000",
				"GRPC_PORT":               "9001",
				"DB_HOST":                 "db.example.com",
				"DB_PORT":                 "3307",
				"DB_NAME":                 "prod_db",
				"JWT_SECRET":              "prod-secret",
				"JWT_EXPIRATION":          "12h",
				"ADMIN_API_KEY":           "service-key",
				"ADMIN_API_ALLOWED_IPS":   "10.0.0.1, 192.168.0.0/16",
				"LEDGER_STARTING_GRANT":   "5",
				"NATS_ENABLED":            "true",
				"AUDIT_POSTGRES_ENABLED":  "true",
				"AUDIT_POSTGRES_DSN":      "postgres://audit@localhost/audit",
				"OTEL_TRACES_SAMPLER_ARG": "0.1",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "production", cfg.Environment)
				assert.Equal(t, "production", cfg.OpenTelemetry.Environment)
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 9001, cfg.Server.GRPCPort)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, 3307, cfg.Database.Port)
				assert.Equal(t, "prod_db", cfg.Database.Database)
				assert.Equal(t, 12*time.Hour, cfg.JWT.Expiration)
				assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.AdminAPI.AllowedIPs)
				assert.Equal(t, int64(5), cfg.Ledger.StartingGrant)
				assert.True(t, cfg.NATS.Enabled)
				assert.True(t, cfg.Postgres.Enabled)
				assert.Equal(t, 0.1, cfg.OpenTelemetry.SampleRatio)
			},
		},
		{
			name: "正常系: 不正な数値はデフォルト値",
			env: map[string]string{
				"JWT_SECRET":    "test-secret",
				"ADMIN_API_KEY": "service-key",
				"SERVER_PORT":   "not-a-number",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
			},
		},
		{
			name:      "異常系: JWT_SECRETが未設定",
			env:       map[string]string{"ADMIN_API_KEY": "service-key"},
			wantError: "JWT_SECRET is required",
		},
		{
			name:      "異常系: 管理APIが有効なのにキーが未設定",
			env:       map[string]string{"JWT_SECRET": "test-secret"},
			wantError: "ADMIN_API_KEY is required",
		},
		{
			name: "異常系: 監査DBが有効なのにDSNが未設定",
			env: map[string]string{
				"JWT_SECRET":             "test-secret",
				"ADMIN_API_KEY":          "service-key",
				"AUDIT_POSTGRES_ENABLED": "true",
			},
			wantError: "AUDIT_POSTGRES_DSN is required",
		},
		{
			name: "異常系: 初期付与が負",
			env: map[string]string{
				"JWT_SECRET":            "test-secret",
				"ADMIN_API_KEY":         "service-key",
				"LEDGER_STARTING_GRANT": "-1",
			},
			wantError: "LEDGER_STARTING_GRANT must not be negative",
		},
		{
			name: "異常系: RESTとgRPCのポートが重複",
			env: map[string]string{
				"JWT_SECRET":    "test-secret",
				"ADMIN_API_KEY": "service-key",
				"SERVER_PORT":   "9090",
			},
			wantError: "must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"JWT_SECRET", "ADMIN_API_KEY", "DB_HOST", "DB_NAME"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			require.NoError(t, err)
			tt.checkConfig(t, cfg)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "ledger",
		Password: "password",
		Database: "credit_ledger",
	}

	assert.Equal(t, "ledger:password@tcp(localhost:3306)/credit_ledger?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsList("TEST_LIST"))

	t.Setenv("TEST_LIST", "")
	assert.Nil(t, getEnvAsList("TEST_LIST"))
}

func TestAdminAPIConfig_AllowsIP(t *testing.T) {
	tests := []struct {
		name       string
		allowedIPs []string
		ip         string
		want       bool
	}{
		{name: "正常系: 許可リストが空なら全て許可", allowedIPs: nil, ip: "203.0.113.5", want: true},
		{name: "正常系: 単一IPが一致", allowedIPs: []string{"192.168.1.10"}, ip: "192.168.1.10", want: true},
		{name: "正常系: CIDRに含まれる", allowedIPs: []string{"10.0.0.0/8"}, ip: "10.20.30.40", want: true},
		{name: "正常系: IPv6の単一IP", allowedIPs: []string{"::1"}, ip: "::1", want: true},
		{name: "異常系: CIDRの外", allowedIPs: []string{"10.0.0.0/8"}, ip: "11.0.0.1", want: false},
		{name: "異常系: プレフィックスが同じだけのIP", allowedIPs: []string{"10.0.0.1"}, ip: "10.0.0.10", want: false},
		{name: "異常系: 解析できないIP", allowedIPs: []string{"10.0.0.0/8"}, ip: "", want: false},
		{name: "異常系: 不正なCIDRは無視", allowedIPs: []string{"10.0.0.0/99"}, ip: "10.0.0.1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &AdminAPIConfig{AllowedIPs: tt.allowedIPs}
			assert.Equal(t, tt.want, cfg.AllowsIP(tt.ip))
		})
	}
}
