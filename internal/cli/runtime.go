package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"credit-ledger/internal/application/assistant"
	"credit-ledger/internal/application/gate"
	"credit-ledger/internal/application/ledgerclient"
	"credit-ledger/internal/infrastructure/cache/rediscache"
	"credit-ledger/internal/infrastructure/cache/sqlitecache"
	"credit-ledger/internal/infrastructure/config"
	"credit-ledger/internal/infrastructure/document"
	"credit-ledger/internal/infrastructure/identity"
	"credit-ledger/internal/infrastructure/llm/gemini"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
	"credit-ledger/internal/infrastructure/observability/prom"
	"credit-ledger/internal/infrastructure/remote/grpcremote"
	"credit-ledger/internal/infrastructure/remote/restremote"
)

// cacheStore 閉じる必要のあるキャッシュ
type cacheStore interface {
	ledgerclient.BalanceCache
	io.Closer
}

// runtime 1回のコマンド実行で使う依存関係
type runtime struct {
	cfg     *config.ClientConfig
	userID  string
	out     io.Writer
	logger  *otelinfra.Logger
	metrics *prom.ClientMetrics
	tokens  gate.TokenSource
	client  *ledgerclient.Client
	gate    *gate.Gate
	rest    *restremote.Client // grpc接続の場合はnil
	closers []io.Closer
}

func newRuntime(ctx context.Context, cfg *config.ClientConfig, out, errOut io.Writer) (rt *runtime, err error) {
	logger := otelinfra.NewLogger(otelinfra.Tracer("ledgerctl"),
		otelinfra.WithOutput(errOut),
		otelinfra.WithService("ledgerctl"),
		otelinfra.WithMinLevel(otelinfra.ParseLogLevel(cfg.LogLevel)),
	)

	rt = &runtime{
		cfg:     cfg,
		userID:  cfg.Identity.UserID,
		out:     out,
		logger:  logger,
		metrics: prom.NewClientMetrics(),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	httpClient := &http.Client{Timeout: cfg.Remote.Timeout.Duration}

	rt.tokens, err = newTokenSource(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	cache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, cache)

	var remote ledgerclient.Remote
	switch cfg.Remote.Transport {
	case "grpc":
		c, err := grpcremote.Dial(cfg.Remote.GRPCTarget, cfg.Remote.APIKey)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, c)
		remote = c
	default:
		rt.rest = restremote.New(cfg.Remote.BaseURL, cfg.Remote.APIKey, httpClient)
		remote = rt.rest
	}

	rt.client = ledgerclient.NewClient(cache, remote, logger, ledgerclient.Config{
		RequestTimeout:    cfg.Remote.Timeout.Duration,
		AllowAnonymous:    cfg.Remote.AllowAnonymous,
		PurchaseThreshold: cfg.Purchase.Threshold,
	},
		ledgerclient.WithMetrics(rt.metrics),
		ledgerclient.WithNotifier(ledgerclient.NotifierFunc(rt.notifyPurchase)),
	)
	rt.gate = gate.NewGate(rt.client, rt.tokens, logger, rt.metrics)
	return rt, nil
}

// newTokenSource identity.modeに応じたトークン取得方法
func newTokenSource(cfg *config.ClientConfig, httpClient *http.Client) (gate.TokenSource, error) {
	switch strings.ToLower(cfg.Identity.Mode) {
	case "static":
		return identity.NewStaticSource(cfg.Identity.Token), nil
	case "jwt":
		return identity.NewJWTSource(cfg.Identity.Secret, cfg.Identity.Issuer, cfg.Identity.UserID, 0), nil
	case "server":
		return identity.NewServerSource(cfg.Remote.BaseURL, cfg.Identity.UserID, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported identity.mode: %s", cfg.Identity.Mode)
	}
}

// newCache cache.backendに応じた残高キャッシュ
func newCache(ctx context.Context, cfg config.CacheConfig) (cacheStore, error) {
	switch cfg.Backend {
	case "memory":
		return nopCloser{ledgerclient.NewMemoryCache()}, nil
	case "sqlite":
		return sqlitecache.Open(cfg.Path)
	case "redis":
		return rediscache.Open(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported cache.backend: %s", cfg.Backend)
	}
}

type nopCloser struct {
	*ledgerclient.MemoryCache
}

func (nopCloser) Close() error { return nil }

// token 取得できない場合は空文字列（匿名経路）
func (rt *runtime) token(ctx context.Context) string {
	tok, err := rt.tokens.Token(ctx)
	if err != nil {
		rt.logger.Warn(ctx, "Auth token unavailable", map[string]interface{}{
			"user_id": rt.userID,
			"error":   err.Error(),
		})
		return ""
	}
	return tok
}

func (rt *runtime) notifyPurchase(_ context.Context, n ledgerclient.PurchaseNotice) {
	fmt.Fprintf(rt.out, "Purchase received: +%d credits (balance %d)\n", n.Delta, n.Current)
}

// newAssistant 有料アクションのサービスを組み立てる
// Gemini APIキーがない場合、LLMを使うアクションはクレジットを消費せずに失敗する
func (rt *runtime) newAssistant(ctx context.Context, needS3 bool) (*assistant.Service, error) {
	var llm assistant.Generator
	if rt.cfg.Gemini.APIKey != "" {
		c, err := gemini.New(ctx, rt.cfg.Gemini.APIKey, rt.cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		llm = c
	}

	var objects document.ObjectGetter
	if needS3 {
		c, err := document.NewS3Client(ctx, rt.cfg.S3)
		if err != nil {
			return nil, err
		}
		objects = c
	}

	return assistant.NewService(rt.gate, llm, document.NewLoader(objects), rt.logger), nil
}

// Close 開いた接続を閉じる
func (rt *runtime) Close() {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn(context.Background(), "Failed to close resources", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
