package restremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/application/ledgerclient"
)

// maxBodySize 読み込むレスポンスボディの上限
const maxBodySize = 1 << 20

// consumeBody 減算リクエストのボディ
type consumeBody struct {
	UserID         string `json:"user_id,omitempty"`
	Amount         int64  `json:"amount"`
	Action         string `json:"action"`
	IdempotencyKey string `json:"idempotency_key"`
	AuditEmail     string `json:"audit_email,omitempty"`
}

// consumeReply 減算レスポンスのボディ
type consumeReply struct {
	Success    *bool  `json:"success"`
	NewBalance int64  `json:"new_balance"`
	Reason     string `json:"reason"`
	Balance    *int64 `json:"balance"`
}

// balanceReply 残高取得レスポンスのボディ
type balanceReply struct {
	UserID  string `json:"user_id"`
	Balance *int64 `json:"balance"`
}

// redeemReply コード引き換えレスポンスのボディ
type redeemReply struct {
	Code         string `json:"code"`
	Credits      int64  `json:"credits"`
	BalanceAfter *int64 `json:"balance_after"`
}

// RedeemResult コード引き換えの結果
type RedeemResult struct {
	Code         string
	Credits      int64
	BalanceAfter int64
}

// errorReply サーバーのエラーレスポンス
type errorReply struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Client 台帳サーバーのREST APIクライアント
// トークンがある場合はユーザー経路、ない場合はAPIキーでサービス経路を使う
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
}

// New 新しいClientを作成
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		tracer:     otel.Tracer("ledger-rest-client"),
	}
}

// Consume 減算RPC
func (c *Client) Consume(ctx context.Context, req ledgerclient.RemoteConsumeRequest) (*ledgerclient.RemoteConsumeResponse, error) {
	ctx, span := c.tracer.Start(ctx, "RESTClient.Consume", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	path := "/api/v1/credits/consume"
	body := consumeBody{
		Amount:         req.Amount,
		Action:         req.Action.String(),
		IdempotencyKey: req.IdempotencyKey,
		AuditEmail:     req.AuditEmail,
	}
	if req.AuthToken == "" {
		path = "/api/v1/service/credits/consume"
		body.UserID = req.UserID
	}
	span.SetAttributes(
		attribute.String("http.route", path),
		attribute.String("user_id", req.UserID),
	)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("failed to encode consume request: %w", err))
	}

	var reply consumeReply
	if err := c.do(ctx, http.MethodPost, path, req.AuthToken, payload, &reply); err != nil {
		return nil, c.fail(span, err)
	}
	if reply.Success == nil {
		return nil, c.fail(span, fmt.Errorf("%w: missing success field", ledgerclient.ErrMalformedResponse))
	}

	return &ledgerclient.RemoteConsumeResponse{
		Success:    *reply.Success,
		NewBalance: reply.NewBalance,
		Reason:     reply.Reason,
		Balance:    reply.Balance,
	}, nil
}

// GetBalance 残高取得RPC
func (c *Client) GetBalance(ctx context.Context, userID, authToken string) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "RESTClient.GetBalance", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	path := "/api/v1/credits/balance"
	if authToken == "" {
		path = "/api/v1/service/credits/" + url.PathEscape(userID)
	}
	span.SetAttributes(
		attribute.String("http.route", path),
		attribute.String("user_id", userID),
	)

	var reply balanceReply
	if err := c.do(ctx, http.MethodGet, path, authToken, nil, &reply); err != nil {
		return 0, c.fail(span, err)
	}
	if reply.Balance == nil {
		return 0, c.fail(span, fmt.Errorf("%w: missing balance field", ledgerclient.ErrMalformedResponse))
	}
	if reply.UserID != "" && reply.UserID != userID {
		return 0, c.fail(span, fmt.Errorf("%w: balance for %q returned for %q", ledgerclient.ErrMalformedResponse, reply.UserID, userID))
	}
	return *reply.Balance, nil
}

// Redeem 引き換えコードでクレジットを付与する（ユーザー経路のみ）
func (c *Client) Redeem(ctx context.Context, code, authToken string) (*RedeemResult, error) {
	ctx, span := c.tracer.Start(ctx, "RESTClient.Redeem", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	path := "/api/v1/codes/redeem"
	span.SetAttributes(attribute.String("http.route", path))

	if authToken == "" {
		return nil, c.fail(span, fmt.Errorf("%w: redeeming a code requires a signed-in user", ledgerclient.ErrUnauthorized))
	}

	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("failed to encode redeem request: %w", err))
	}

	var reply redeemReply
	if err := c.do(ctx, http.MethodPost, path, authToken, payload, &reply); err != nil {
		return nil, c.fail(span, err)
	}
	if reply.BalanceAfter == nil || reply.Credits <= 0 {
		return nil, c.fail(span, fmt.Errorf("%w: incomplete redeem reply", ledgerclient.ErrMalformedResponse))
	}
	return &RedeemResult{
		Code:         reply.Code,
		Credits:      reply.Credits,
		BalanceAfter: *reply.BalanceAfter,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// コンテキスト由来のエラーはerrors.Isで判定できるよう包む
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read ledger response: %w", err)
	}

	if err := statusError(resp.StatusCode, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ledgerclient.ErrMalformedResponse, err)
	}
	return nil
}

// statusError HTTPステータスをクライアントのエラー分類へ変換
func statusError(status int, data []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var reply errorReply
	_ = json.Unmarshal(data, &reply)
	detail := reply.Message
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ledgerclient.ErrUnauthorized, detail)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ledgerclient.ErrServerError, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ledgerclient.ErrRejected, status, detail)
	}
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}
