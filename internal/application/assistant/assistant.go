// Package assistant クレジットを消費する有料アクション（求人分析、ネットワーキング検索、メール推定）
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/application/gate"
	"credit-ledger/internal/domain/contact"
	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/infrastructure/document"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// ActionCost 有料アクション1回あたりの消費クレジット
const ActionCost = 1

var (
	// ErrInvalidInput 入力が不足している（クレジットは消費しない）
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedReply LLMの応答を解釈できない
	ErrMalformedReply = errors.New("malformed llm reply")
	// ErrGeneratorUnavailable LLMが設定されていない
	ErrGeneratorUnavailable = errors.New("llm is not configured")
)

// Gate 有料アクションをクレジット消費で保護する
type Gate interface {
	Run(ctx context.Context, req gate.Request, paid gate.PaidAction) (gate.Decision, error)
}

// Generator LLMによるJSONテキスト生成
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// CVLoader CVの読み込みとテキスト抽出
type CVLoader interface {
	Load(ctx context.Context, source string) (*document.Document, error)
}

// JobAnalysis 求人とCVの適合分析の結果
type JobAnalysis struct {
	Score         int      `json:"score"`
	Summary       string   `json:"summary"`
	MissingSkills []string `json:"missing_skills"`
	RewrittenCV   string   `json:"rewritten_cv"`
}

// ContactSuggestion 連絡を取るべき相手の候補
type ContactSuggestion struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// NetworkSuggestions ネットワーキング検索の結果
type NetworkSuggestions struct {
	Contacts      []ContactSuggestion `json:"contacts"`
	SearchQueries []string            `json:"search_queries"`
}

// Service 有料アクションの実行サービス
// 入力の検証とCVの読み込みはクレジット消費の前に行う
type Service struct {
	gate   Gate
	llm    Generator
	cv     CVLoader
	logger *otelinfra.Logger
	tracer trace.Tracer
}

// NewService 新しいServiceを作成
// llmがnilの場合、LLMを使うアクションはクレジットを消費せずにエラーを返す
func NewService(g Gate, llm Generator, cv CVLoader, logger *otelinfra.Logger) *Service {
	return &Service{
		gate:   g,
		llm:    llm,
		cv:     cv,
		logger: logger,
		tracer: otel.Tracer("assistant-service"),
	}
}

// AnalyzeJob CVと求人票の適合度を分析し、求人向けに書き直したCVを返す
// クレジットが消費されなかった場合、結果はnilでDecisionが理由を示す
func (s *Service) AnalyzeJob(ctx context.Context, userID, cvSource, jobPosting string) (*JobAnalysis, gate.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "AssistantService.AnalyzeJob")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	if strings.TrimSpace(jobPosting) == "" || cvSource == "" {
		return nil, gate.Decision{}, fmt.Errorf("%w: cv and job posting are required", ErrInvalidInput)
	}
	if s.llm == nil {
		return nil, gate.Decision{}, ErrGeneratorUnavailable
	}

	cv, err := s.cv.Load(ctx, cvSource)
	if err != nil {
		return nil, gate.Decision{}, fmt.Errorf("failed to load cv: %w", err)
	}

	var analysis JobAnalysis
	decision, err := s.gate.Run(ctx, gate.Request{
		UserID: userID,
		Action: credit.ActionTypeJobAnalysis,
		Amount: ActionCost,
	}, func(ctx context.Context) error {
		prompt := fmt.Sprintf("CV:\n%s\n\nJob posting:\n%s", cv.Text, jobPosting)
		if err := s.generateJSON(ctx, jobAnalysisInstruction, prompt, &analysis); err != nil {
			return err
		}
		if analysis.Score < 0 || analysis.Score > 100 {
			return fmt.Errorf("%w: score %d out of range", ErrMalformedReply, analysis.Score)
		}
		return nil
	})
	if err != nil || !decision.Proceeded() {
		return nil, decision, err
	}

	s.logger.Info(ctx, "Job analysis completed", map[string]interface{}{
		"user_id": userID,
		"score":   analysis.Score,
		"balance": decision.Result.NewBalance,
	})
	return &analysis, decision, nil
}

// SearchNetwork 企業と職種から連絡先候補と検索クエリを提案する
func (s *Service) SearchNetwork(ctx context.Context, userID, company, role string) (*NetworkSuggestions, gate.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "AssistantService.SearchNetwork")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	company = strings.TrimSpace(company)
	if company == "" {
		return nil, gate.Decision{}, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}
	if s.llm == nil {
		return nil, gate.Decision{}, ErrGeneratorUnavailable
	}

	var suggestions NetworkSuggestions
	decision, err := s.gate.Run(ctx, gate.Request{
		UserID: userID,
		Action: credit.ActionTypeNetworkingSearch,
		Amount: ActionCost,
	}, func(ctx context.Context) error {
		prompt := fmt.Sprintf("Company: %s\nTarget role: %s", company, strings.TrimSpace(role))
		return s.generateJSON(ctx, networkSearchInstruction, prompt, &suggestions)
	})
	if err != nil || !decision.Proceeded() {
		return nil, decision, err
	}

	s.logger.Info(ctx, "Network search completed", map[string]interface{}{
		"user_id":  userID,
		"contacts": len(suggestions.Contacts),
		"queries":  len(suggestions.SearchQueries),
	})
	return &suggestions, decision, nil
}

// PredictEmail 氏名とドメインからメールアドレス候補を推定する
// 最有力候補を監査用メールアドレスとして台帳に記録する
func (s *Service) PredictEmail(ctx context.Context, userID, firstName, lastName, domain string) ([]contact.Candidate, gate.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "AssistantService.PredictEmail")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	candidates, err := contact.PredictEmails(firstName, lastName, domain)
	if err != nil {
		return nil, gate.Decision{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	decision, err := s.gate.Run(ctx, gate.Request{
		UserID:     userID,
		Action:     credit.ActionTypeEmailLookup,
		Amount:     ActionCost,
		AuditEmail: candidates[0].Email,
	}, func(context.Context) error { return nil })
	if err != nil || !decision.Proceeded() {
		return nil, decision, err
	}
	return candidates, decision, nil
}

func (s *Service) generateJSON(ctx context.Context, system, prompt string, out interface{}) error {
	reply, err := s.llm.Generate(ctx, system, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleanJSON(reply)), out); err != nil {
		s.logger.Warn(ctx, "LLM reply is not valid JSON", map[string]interface{}{
			"reply_length": len(reply),
		})
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

// cleanJSON ```json ... ``` のようなコードフェンスを取り除く
func cleanJSON(input string) string {
	clean := strings.TrimSpace(input)
	if rest, ok := strings.CutPrefix(clean, "```json"); ok {
		clean = rest
	} else if rest, ok := strings.CutPrefix(clean, "```"); ok {
		clean = rest
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
