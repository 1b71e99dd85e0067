package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/config"
)

// OpenAIClient implements schemas.LLMClient for OpenAI-compatible chat
// completion APIs. Ollama and other gateways reuse this adapter by setting
// a custom endpoint.
type OpenAIClient struct {
	client         *openai.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
	config         config.ModelConfig
	backoffFactory func() backoff.BackOff
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client. A missing API key is acceptable
// when a custom endpoint is configured (local gateways do not check it).
func NewOpenAIClient(cfg config.ModelConfig, limiter *rate.Limiter, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("OpenAI API Key is required when no custom endpoint is set")
	}

	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		limiter:        limiter,
		config:         cfg,
		logger:         logger.Named("llm_client.openai"),
		backoffFactory: defaultBackoffFactory,
	}, nil
}

// Complete sends the prompt as a single user message and returns the first
// choice's content, retrying transient API failures.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait aborted: %w", err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
	}

	b := c.backoffFactory()

	var responseContent string

	operation := func() error {
		startTime := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return c.classifyError(err)
		}

		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("openai API returned no choices"))
		}

		c.logger.Debug("LLM generation complete (OpenAI)",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)

		responseContent = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	return responseContent, nil
}

// Close is a no-op; the SDK holds no resources beyond pooled connections.
func (c *OpenAIClient) Close() error {
	return nil
}

// classifyError maps API errors onto the retry policy: rate limits and
// server-side failures are transient, everything else is permanent.
func (c *OpenAIClient) classifyError(err error) error {
	var status int
	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		c.logger.Error("OpenAI API returned error status",
			zap.Int("status", status), zap.String("message", apiErr.Message))
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		c.logger.Error("OpenAI API request failed", zap.Int("status", status), zap.Error(err))
	default:
		// Network-level failure; worth retrying.
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return err
	}

	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err
	default:
		return backoff.Permanent(err)
	}
}
