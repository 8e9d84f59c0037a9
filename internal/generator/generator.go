// Package generator produces marketing strategies, sentiment analyses,
// critique articles and head-to-head comparisons from extracted product
// data, composing the skill store with an LLM runner.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pickgear/backend/internal/extractor"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/skill"
	"github.com/pickgear/backend/internal/storage/models"
)

const (
	reviewSkill     = "generate-review"
	comparisonSkill = "generate-comparison"
)

// ContentGenerator is the capability surface the critique flow composes.
type ContentGenerator interface {
	GenerateProductStrategy(ctx context.Context, specs models.ProductSpecs) (models.ProductStrategy, error)
	AnalyzeWebSentiments(ctx context.Context, reviews []models.WebReviewReference) (models.SentimentAnalysis, error)
	GenerateCritiqueArticle(ctx context.Context, specs models.ProductSpecs, sentiment models.SentimentAnalysis, strategy models.ProductStrategy) (*models.ProductReview, error)
	GenerateComparison(ctx context.Context, specsA, specsB string) (string, error)
}

type Generator struct {
	runner llm.Runner
	skills skill.Store
}

var _ ContentGenerator = (*Generator)(nil)

func New(runner llm.Runner, skills skill.Store) *Generator {
	return &Generator{runner: runner, skills: skills}
}

// GenerateProductStrategy derives a marketing/positioning analysis from the
// specs alone.
func (g *Generator) GenerateProductStrategy(ctx context.Context, specs models.ProductSpecs) (models.ProductStrategy, error) {
	sk, err := skill.Require(g.skills, reviewSkill)
	if err != nil {
		return models.ProductStrategy{}, err
	}

	prompt := fmt.Sprintf(`다음 제품을 분석하고 마케팅 전략을 JSON으로 생성해주세요.

제품: %s %s
CPU: %s, RAM: %gGB, 저장장치: %s
GPU: %s, 디스플레이: %g인치, 무게: %gkg
OS: %s, 가격: %g원

JSON 형식: {"targetAudience":[],"keySellingPoints":[],"competitors":[],"positioning":""}`,
		specs.Maker, specs.Model,
		specs.CPU, specs.RAM, specs.Storage,
		specs.GPU, specs.DisplaySize, specs.Weight,
		specs.OS, specs.Price,
	)

	resp, err := g.run(ctx, sk, prompt)
	if err != nil {
		return models.ProductStrategy{}, fmt.Errorf("generate strategy: %w", err)
	}

	var strategy models.ProductStrategy
	if err := extractor.DecodeObject(resp, &strategy); err != nil {
		return models.ProductStrategy{}, fmt.Errorf("generate strategy: %w", err)
	}
	return strategy, nil
}

// AnalyzeWebSentiments condenses third-party review snapshots into a scored
// sentiment analysis.
func (g *Generator) AnalyzeWebSentiments(ctx context.Context, reviews []models.WebReviewReference) (models.SentimentAnalysis, error) {
	sk, err := skill.Require(g.skills, reviewSkill)
	if err != nil {
		return models.SentimentAnalysis{}, err
	}

	var lines []string
	for _, r := range reviews {
		lines = append(lines, fmt.Sprintf("[%s] (%s) %s", r.Source, r.Sentiment, r.SummaryText))
	}

	prompt := fmt.Sprintf(`다음 웹 리뷰 요약을 분석하고 감성 분석 결과를 JSON으로 제공해주세요.

리뷰:
%s

JSON 형식: {"overallScore":0,"commonPraises":[],"commonComplaints":[],"reliability":"HIGH"}
overallScore는 0-100, reliability는 "HIGH", "MEDIUM", "LOW" 중 하나로 답변해주세요.`,
		strings.Join(lines, "\n"),
	)

	resp, err := g.run(ctx, sk, prompt)
	if err != nil {
		return models.SentimentAnalysis{}, fmt.Errorf("analyze sentiments: %w", err)
	}

	var analysis struct {
		OverallScore     int      `json:"overallScore"`
		CommonPraises    []string `json:"commonPraises"`
		CommonComplaints []string `json:"commonComplaints"`
		Reliability      string   `json:"reliability"`
	}
	if err := extractor.DecodeObject(resp, &analysis); err != nil {
		return models.SentimentAnalysis{}, fmt.Errorf("analyze sentiments: %w", err)
	}

	return models.SentimentAnalysis{
		OverallScore:     analysis.OverallScore,
		CommonPraises:    analysis.CommonPraises,
		CommonComplaints: analysis.CommonComplaints,
		Reliability:      models.NormalizeReliability(analysis.Reliability),
	}, nil
}

// GenerateCritiqueArticle is a composition: it runs the review skill once
// over the specs and strategy context, then embeds the already-computed
// strategy and sentiment into the result. It never asks the model to
// regenerate those sub-analyses.
func (g *Generator) GenerateCritiqueArticle(ctx context.Context, specs models.ProductSpecs, sentiment models.SentimentAnalysis, strategy models.ProductStrategy) (*models.ProductReview, error) {
	review, err := g.generateProductReview(ctx, specs, strategy)
	if err != nil {
		return nil, err
	}

	review.Strategy = &strategy
	review.SentimentAnalysis = &sentiment
	return review, nil
}

func (g *Generator) generateProductReview(ctx context.Context, specs models.ProductSpecs, strategy models.ProductStrategy) (*models.ProductReview, error) {
	sk, err := skill.Require(g.skills, reviewSkill)
	if err != nil {
		return nil, err
	}

	basePrompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"maker":        specs.Maker,
		"model":        specs.Model,
		"cpu":          specs.CPU,
		"ram":          fmt.Sprintf("%g", specs.RAM),
		"storage":      specs.Storage,
		"gpu":          specs.GPU,
		"display_size": fmt.Sprintf("%g", specs.DisplaySize),
		"weight":       fmt.Sprintf("%g", specs.Weight),
		"os":           specs.OS,
		"price":        fmt.Sprintf("%g", specs.Price),
	})

	prompt := fmt.Sprintf(`%s

전략 컨텍스트: 타겟 %s / 셀링포인트 %s / 경쟁제품 %s / 포지셔닝 %s

JSON으로 답변해줘. 형식: {"summary":"","pros":[],"cons":[],"recommendedFor":"","notRecommendedFor":"","specHighlights":[]}`,
		basePrompt,
		strings.Join(strategy.TargetAudience, ", "),
		strings.Join(strategy.KeySellingPoints, ", "),
		strings.Join(strategy.Competitors, ", "),
		strategy.Positioning,
	)

	resp, err := g.run(ctx, sk, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate review: %w", err)
	}

	var review models.ProductReview
	if err := extractor.DecodeObject(resp, &review); err != nil {
		return nil, fmt.Errorf("generate review: %w", err)
	}
	return &review, nil
}

// GenerateComparison writes head-to-head comparison text for two products
// described by their formatted spec summaries. The response is free-form
// prose, not JSON.
func (g *Generator) GenerateComparison(ctx context.Context, specsA, specsB string) (string, error) {
	sk, err := skill.Require(g.skills, comparisonSkill)
	if err != nil {
		return "", err
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"category": "노트북",
		"productA": specsA,
		"productB": specsB,
	})

	resp, err := g.run(ctx, sk, prompt)
	if err != nil {
		return "", fmt.Errorf("generate comparison: %w", err)
	}
	return resp, nil
}

func (g *Generator) run(ctx context.Context, sk *skill.Skill, prompt string) (string, error) {
	return g.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
}
