// Package gemini Google Gemini APIによるテキスト生成
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// DefaultModel モデル名の既定値
const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse モデルがテキストを返さなかった
var ErrEmptyResponse = errors.New("gemini returned an empty response")

// Client JSON出力を要求するGeminiクライアント
type Client struct {
	client *genai.Client
	model  string
	tracer trace.Tracer
}

// Option Clientのオプション
type Option func(*genai.ClientConfig)

// WithBaseURL APIのベースURLを上書き（テスト用）
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// New 新しいClientを作成
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		client: client,
		model:  model,
		tracer: otel.Tracer("gemini-client"),
	}, nil
}

// Generate systemの指示でpromptを送り、JSONとして返されたテキストを返す
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "Gemini.Generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("gen_ai.system", "gemini"),
		attribute.String("gen_ai.request.model", c.model),
	)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		span.SetStatus(otelcodes.Error, ErrEmptyResponse.Error())
		return "", ErrEmptyResponse
	}
	if resp.UsageMetadata != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", int(resp.UsageMetadata.PromptTokenCount)),
			attribute.Int("gen_ai.usage.output_tokens", int(resp.UsageMetadata.CandidatesTokenCount)),
		)
	}
	return text, nil
}
