package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/pkg/logger"
)

// OpenAIRunner talks to an OpenAI-compatible chat completion API.
type OpenAIRunner struct {
	client       *openai.Client
	defaultModel string
	timeout      time.Duration
}

var _ Runner = (*OpenAIRunner)(nil)

func NewOpenAIRunner(apiKey, model string, timeout time.Duration) *OpenAIRunner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger.Info("openai runner initialized", zap.String("model", model))
	return &OpenAIRunner{
		client:       openai.NewClient(apiKey),
		defaultModel: model,
		timeout:      timeout,
	}
}

func (r *OpenAIRunner) Run(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = r.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	})
	metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues("openai", "error").Inc()
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequests.WithLabelValues("openai", "error").Inc()
		return "", fmt.Errorf("chat completion: empty response for model %s", model)
	}

	metrics.LLMRequests.WithLabelValues("openai", "ok").Inc()
	logger.Debug("llm completion",
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
