package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ClientConfig ledgerctl（クライアント）の設定
type ClientConfig struct {
	Remote   RemoteConfig   `toml:"remote"`
	Identity IdentityConfig `toml:"identity"`
	Cache    CacheConfig    `toml:"cache"`
	Purchase PurchaseConfig `toml:"purchase"`
	NATS     ClientNATS     `toml:"nats"`
	Gemini   GeminiConfig   `toml:"gemini"`
	S3       S3Config       `toml:"s3"`
	Metrics  MetricsConfig  `toml:"metrics"`
	LogLevel string         `toml:"log_level"`
}

// RemoteConfig 台帳サーバーへの接続設定
type RemoteConfig struct {
	Transport      string   `toml:"transport"` // "rest" or "grpc"
	BaseURL        string   `toml:"base_url"`
	GRPCTarget     string   `toml:"grpc_target"`
	APIKey         string   `toml:"api_key"`
	Timeout        Duration `toml:"timeout"`
	AllowAnonymous bool     `toml:"allow_anonymous"`
}

// IdentityConfig 認証トークンの取得方法
type IdentityConfig struct {
	Mode   string `toml:"mode"` // "static", "jwt", "server"
	Token  string `toml:"token"`
	Secret string `toml:"secret"`
	Issuer string `toml:"issuer"`
	UserID string `toml:"user_id"`
}

// CacheConfig 残高キャッシュの保存先
type CacheConfig struct {
	Backend   string `toml:"backend"` // "memory", "sqlite", "redis"
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	KeyPrefix string `toml:"key_prefix"`
}

// PurchaseConfig 購入検知の設定
type PurchaseConfig struct {
	Threshold int64 `toml:"threshold"`
}

// ClientNATS 残高変更イベント購読の設定
type ClientNATS struct {
	URL     string   `toml:"url"`
	Subject string   `toml:"subject"`
	Refresh Duration `toml:"refresh_interval"`
}

// GeminiConfig LLMの設定
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// S3Config s3://形式のCV読み込みに使うオブジェクトストレージ設定
// Endpointを指定するとS3互換ストレージ（R2やMinIO）に接続する
type S3Config struct {
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// MetricsConfig Prometheusエンドポイントの設定
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// Duration TOMLの"10s"形式を受け付けるtime.Duration
type Duration struct {
	time.Duration
}

// UnmarshalText "10s"形式を解析
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText "10s"形式で出力
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultClientConfig デフォルトのクライアント設定
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Remote: RemoteConfig{
			Transport:  "rest",
			BaseURL:    "http://localhost:8080",
			GRPCTarget: "localhost:9090",
			Timeout:    Duration{10 * time.Second},
		},
		Identity: IdentityConfig{
			Mode:   "static",
			Issuer: "credit-ledger",
		},
		Cache: CacheConfig{
			Backend:   "sqlite",
			Path:      filepath.Join(DefaultClientDir(), "cache.db"),
			RedisAddr: "localhost:6379",
			KeyPrefix: "ledgerctl:balance:",
		},
		Purchase: PurchaseConfig{Threshold: 20},
		NATS: ClientNATS{
			URL:     "nats://localhost:4222",
			Subject: "ledger.balance.changed",
			Refresh: Duration{time.Minute},
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		S3:       S3Config{Region: "us-east-1"},
		Metrics:  MetricsConfig{Listen: ":9464"},
		LogLevel: "warn",
	}
}

// DefaultClientDir ~/.ledgerctl
func DefaultClientDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ledgerctl"
	}
	return filepath.Join(home, ".ledgerctl")
}

// DefaultClientConfigPath ~/.ledgerctl/config.toml
func DefaultClientConfigPath() string {
	return filepath.Join(DefaultClientDir(), "config.toml")
}

// LoadClient TOMLファイルを読み込み、LEDGERCTL_*環境変数で上書きする
// pathが空の場合はデフォルトパスを使い、ファイルがなければデフォルト値のまま
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultClientConfigPath()
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !(errors.Is(err, os.ErrNotExist) && !explicit) {
			return nil, fmt.Errorf("failed to read client config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *ClientConfig) applyEnv() {
	c.Remote.Transport = getEnv("LEDGERCTL_TRANSPORT", c.Remote.Transport)
	c.Remote.BaseURL = getEnv("LEDGERCTL_BASE_URL", c.Remote.BaseURL)
	c.Remote.GRPCTarget = getEnv("LEDGERCTL_GRPC_TARGET", c.Remote.GRPCTarget)
	c.Remote.APIKey = getEnv("LEDGERCTL_API_KEY", c.Remote.APIKey)
	c.Remote.Timeout.Duration = getEnvAsDuration("LEDGERCTL_TIMEOUT", c.Remote.Timeout.Duration)
	c.Remote.AllowAnonymous = getEnvAsBool("LEDGERCTL_ALLOW_ANONYMOUS", c.Remote.AllowAnonymous)
	c.Identity.Mode = getEnv("LEDGERCTL_IDENTITY_MODE", c.Identity.Mode)
	c.Identity.Token = getEnv("LEDGERCTL_TOKEN", c.Identity.Token)
	c.Identity.Secret = getEnv("LEDGERCTL_JWT_SECRET", c.Identity.Secret)
	c.Identity.UserID = getEnv("LEDGERCTL_USER_ID", c.Identity.UserID)
	c.Cache.Backend = getEnv("LEDGERCTL_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Path = getEnv("LEDGERCTL_CACHE_PATH", c.Cache.Path)
	c.Cache.RedisAddr = getEnv("LEDGERCTL_REDIS_ADDR", c.Cache.RedisAddr)
	c.Purchase.Threshold = int64(getEnvAsInt("LEDGERCTL_PURCHASE_THRESHOLD", int(c.Purchase.Threshold)))
	c.NATS.URL = getEnv("LEDGERCTL_NATS_URL", c.NATS.URL)
	c.Gemini.APIKey = getEnv("LEDGERCTL_GEMINI_API_KEY", getEnv("GEMINI_API_KEY", c.Gemini.APIKey))
	c.Gemini.Model = getEnv("LEDGERCTL_GEMINI_MODEL", c.Gemini.Model)
	c.S3.Region = getEnv("LEDGERCTL_S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("LEDGERCTL_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = getEnv("LEDGERCTL_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = getEnv("LEDGERCTL_S3_SECRET_KEY", c.S3.SecretKey)
	c.Metrics.Listen = getEnv("LEDGERCTL_METRICS_LISTEN", c.Metrics.Listen)
	c.LogLevel = getEnv("LEDGERCTL_LOG_LEVEL", c.LogLevel)
}

// Validate クライアント設定の検証
func (c *ClientConfig) Validate() error {
	switch c.Remote.Transport {
	case "rest":
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for rest transport")
		}
	case "grpc":
		if c.Remote.GRPCTarget == "" {
			return fmt.Errorf("remote.grpc_target is required for grpc transport")
		}
	default:
		return fmt.Errorf("unsupported remote.transport: %s", c.Remote.Transport)
	}
	if c.Remote.Timeout.Duration <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if c.Remote.AllowAnonymous && c.Remote.APIKey == "" {
		return fmt.Errorf("remote.api_key is required when remote.allow_anonymous is true")
	}

	switch strings.ToLower(c.Identity.Mode) {
	case "static", "server":
	case "jwt":
		if c.Identity.Secret == "" {
			return fmt.Errorf("identity.secret is required for jwt mode")
		}
	default:
		return fmt.Errorf("unsupported identity.mode: %s", c.Identity.Mode)
	}

	switch c.Cache.Backend {
	case "memory":
	case "sqlite":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for sqlite backend")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for redis backend")
		}
	default:
		return fmt.Errorf("unsupported cache.backend: %s", c.Cache.Backend)
	}

	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return fmt.Errorf("s3.access_key and s3.secret_key must be set together")
	}

	if c.Purchase.Threshold <= 0 {
		return fmt.Errorf("purchase.threshold must be positive")
	}
	return nil
}
