package llmclient

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/config"
)

// NewClient is a factory function that creates an LLMClient for one model
// configuration.
func NewClient(cfg config.ModelConfig, limiter *rate.Limiter, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, limiter, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, limiter, logger)
	case config.ProviderOllama:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("provider %q requires an explicit endpoint", cfg.Provider)
		}
		return NewOpenAIClient(cfg, limiter, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderOllama)
	}
}

// NewRouterFromConfig builds the tier router from the model table. All
// clients share one rate limiter so the configured request budget holds
// across tiers.
func NewRouterFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	limiter := rate.NewLimiter(rate.Limit(rpm/60.0), 1)

	build := func(name string) (schemas.LLMClient, error) {
		mc, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("model %q is not defined in llm.models", name)
		}
		return NewClient(mc, limiter, logger)
	}

	fastClient, err := build(cfg.DefaultFastModel)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}

	powerfulClient := fastClient
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		powerfulClient, err = build(cfg.DefaultPowerfulModel)
		if err != nil {
			return nil, fmt.Errorf("building powerful tier client: %w", err)
		}
	}

	return NewRouter(logger, fastClient, powerfulClient)
}
