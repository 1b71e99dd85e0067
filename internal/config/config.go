package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Provider identifies an LLM back-end implementation.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama" // OpenAI-compatible endpoint, served locally.
)

// Config holds the entire application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
}

// LoggingConfig holds all the configuration for the logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless             bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent            string        `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors      bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache         bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	NavigationTimeout    time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizationTimeout time.Duration `mapstructure:"stabilization_timeout" yaml:"stabilization_timeout"`
	Args                 []string      `mapstructure:"args" yaml:"args"`
}

// LLMConfig configures the model routing logic: which concrete model serves
// each tier, and the shared request budget.
type LLMConfig struct {
	DefaultFastModel     string                 `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                 `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]ModelConfig `mapstructure:"models" yaml:"models"`
}

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Provider    Provider      `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// SafetyFilters maps Gemini harm categories to block thresholds. When
	// empty the client disables the filters entirely; prompts embed
	// arbitrary page text and a blocked generation wastes a whole attempt.
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// ResolverConfig tunes the resolution engine itself.
type ResolverConfig struct {
	MaxAttempts        int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxBodyLength      int     `mapstructure:"max_body_length" yaml:"max_body_length"`
	MaxChunkLength     int     `mapstructure:"max_chunk_length" yaml:"max_chunk_length"`
	UseAI              bool    `mapstructure:"use_ai" yaml:"use_ai"`
	SemanticValidation bool    `mapstructure:"semantic_validation" yaml:"semantic_validation"`
	SemanticThreshold  float64 `mapstructure:"semantic_threshold" yaml:"semantic_threshold"`
	CandidateCap       int     `mapstructure:"candidate_cap" yaml:"candidate_cap"`
}

// CacheConfig controls the optional PostgreSQL selector cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	URL     string        `mapstructure:"url" yaml:"-"`
	MaxAge  time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logging --
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.stabilization_timeout", "10s")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.requests_per_minute", 60.0)
	v.SetDefault("llm.models.gemini-2.5-flash.provider", "gemini")
	v.SetDefault("llm.models.gemini-2.5-flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.gemini-2.5-flash.api_timeout", "60s")
	v.SetDefault("llm.models.gemini-2.5-flash.temperature", 0.1)
	v.SetDefault("llm.models.gemini-2.5-flash.max_tokens", 2048)
	v.SetDefault("llm.models.gemini-2.5-pro.provider", "gemini")
	v.SetDefault("llm.models.gemini-2.5-pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.gemini-2.5-pro.api_timeout", "90s")
	v.SetDefault("llm.models.gemini-2.5-pro.temperature", 0.2)
	v.SetDefault("llm.models.gemini-2.5-pro.max_tokens", 4096)

	// -- Resolver --
	v.SetDefault("resolver.max_attempts", 3)
	v.SetDefault("resolver.max_body_length", 35000)
	v.SetDefault("resolver.max_chunk_length", 35000)
	v.SetDefault("resolver.use_ai", true)
	v.SetDefault("resolver.semantic_validation", false)
	v.SetDefault("resolver.semantic_threshold", 0.9)
	v.SetDefault("resolver.candidate_cap", 50)

	// -- Cache --
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.max_age", "24h")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("cache.url", "DOMSCOUT_CACHE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// API keys rarely live in config files. Fill empty ones from the
	// conventional per-provider environment variables.
	for name, mc := range cfg.LLM.Models {
		if mc.APIKey != "" {
			continue
		}
		switch mc.Provider {
		case ProviderGemini:
			mc.APIKey = os.Getenv("GEMINI_API_KEY")
		case ProviderOpenAI:
			mc.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		cfg.LLM.Models[name] = mc
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("resolver.max_attempts must be at least 1")
	}
	if c.Resolver.MaxBodyLength <= 0 {
		return fmt.Errorf("resolver.max_body_length must be a positive integer")
	}
	if c.Resolver.MaxChunkLength <= 0 {
		return fmt.Errorf("resolver.max_chunk_length must be a positive integer")
	}
	if c.Resolver.SemanticThreshold < 0.0 || c.Resolver.SemanticThreshold > 1.0 {
		return fmt.Errorf("resolver.semantic_threshold must be between 0.0 and 1.0")
	}
	if c.Resolver.CandidateCap <= 0 {
		return fmt.Errorf("resolver.candidate_cap must be a positive integer")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if err := c.LLM.Validate(c.Resolver.UseAI); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the LLM routing configuration. The model table is only
// required when the AI path is enabled.
func (l *LLMConfig) Validate(aiEnabled bool) error {
	if !aiEnabled {
		return nil
	}
	if l.DefaultFastModel == "" || l.DefaultPowerfulModel == "" {
		return fmt.Errorf("default_fast_model and default_powerful_model are required")
	}
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		mc, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("model %q is not defined in llm.models", name)
		}
		switch mc.Provider {
		case ProviderGemini, ProviderOpenAI, ProviderOllama:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", name, mc.Provider)
		}
	}
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive")
	}
	return nil
}

// Validate checks the cache settings.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("cache.url is required when the cache is enabled. Set DOMSCOUT_CACHE_URL")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("cache.max_age must be a positive duration")
	}
	return nil
}
