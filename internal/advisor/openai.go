package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// openAIClient drives the chat-completions API, optionally against a
// compatible alternative endpoint via base_url.
type openAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAI builds the OpenAI backend.
func NewOpenAI(cfg config.BackendConfig, logger *zap.Logger) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newTextBackend(&openAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("advisor.openai"),
	}), nil
}

func (c *openAIClient) Name() string { return "openai" }

func (c *openAIClient) complete(ctx context.Context, system, user string) (string, schemas.TokenUsage, error) {
	temperature := float32(0.2)
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   2048,
		Temperature: &temperature,
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var content string
	var usage schemas.TokenUsage

	operation := func() error {
		startTime := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if !transientAPIError(err) {
				return backoff.Permanent(fmt.Errorf("openai API error: %w", err))
			}
			c.logger.Warn("Transient OpenAI error, retrying...", zap.Error(err))
			return fmt.Errorf("openai API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("openai API returned no choices"))
		}

		c.logger.Debug("Advisor completion (openai)",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		content = resp.Choices[0].Message.Content
		usage = schemas.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", usage, err
	}
	return content, usage, nil
}

// transientAPIError classifies provider errors by the status code embedded in
// the error text. SDK error types differ between providers and forks; the
// status substring is the stable signal.
func transientAPIError(err error) bool {
	msg := err.Error()
	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	// Plain network errors carry no status at all; retry those too.
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "timeout")
}
