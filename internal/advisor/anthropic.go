package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// anthropicClient drives the Anthropic Messages API.
type anthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropic builds the Anthropic backend.
func NewAnthropic(cfg config.BackendConfig, logger *zap.Logger) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	return newTextBackend(&anthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("advisor.anthropic"),
	}), nil
}

func (c *anthropicClient) Name() string { return "anthropic" }

func (c *anthropicClient) complete(ctx context.Context, system, user string) (string, schemas.TokenUsage, error) {
	temperature := float32(0.2)
	req := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(user)},
			},
		},
		MaxTokens:   2048,
		Temperature: &temperature,
		MultiSystem: []anthropic.MessageSystemPart{
			{Type: "text", Text: system},
		},
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var content string
	var usage schemas.TokenUsage

	operation := func() error {
		startTime := time.Now()
		resp, err := c.client.CreateMessages(ctx, req)
		if err != nil {
			if !transientAPIError(err) {
				return backoff.Permanent(fmt.Errorf("anthropic API error: %w", err))
			}
			c.logger.Warn("Transient Anthropic error, retrying...", zap.Error(err))
			return fmt.Errorf("anthropic API error: %w", err)
		}

		var text string
		for _, block := range resp.Content {
			if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
				text += *block.Text
			}
		}
		if text == "" {
			return backoff.Permanent(fmt.Errorf("anthropic API returned no text content (stop reason %s)", resp.StopReason))
		}

		c.logger.Debug("Advisor completion (anthropic)",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("prompt_tokens", resp.Usage.InputTokens),
			zap.Int("completion_tokens", resp.Usage.OutputTokens),
		)

		content = text
		usage = schemas.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", usage, err
	}
	return content, usage, nil
}
