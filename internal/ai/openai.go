// ABOUTME: OpenAI-compatible provider built on sashabaranov/go-openai.
// ABOUTME: A custom base URL points it at any OpenAI-compatible server.

package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIConfig configures the OpenAI-compatible provider. BaseURL is optional
// and makes the client work against any server speaking the OpenAI API.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// OpenAIProvider wraps the go-openai client.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger.With("component", "ai", "provider", "openai"),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Chat implements Provider with a single non-streaming completion.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = p.model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(p.temperature),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	p.logger.Debug("chat completed", "model", model, "tokens", resp.Usage.TotalTokens)
	return answer, nil
}

// Available implements Provider by listing models.
func (p *OpenAIProvider) Available(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

var _ Provider = (*OpenAIProvider)(nil)
