package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Triage     TriageConfig     `yaml:"triage" mapstructure:"triage"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Images     ImageConfig      `yaml:"images" mapstructure:"images"`
	Documents  DocumentConfig   `yaml:"documents" mapstructure:"documents"`
	Validation ValidateConfig   `yaml:"validate" mapstructure:"validate"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"` // postgres only
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"` // postgres only
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina Reader pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// TriageConfig configures classification and brand lookup.
type TriageConfig struct {
	BrandConfidenceThreshold float64 `yaml:"brand_confidence_threshold" mapstructure:"brand_confidence_threshold"`
	MaxSearchResults         int     `yaml:"max_search_results" mapstructure:"max_search_results"`
}

// ExtractConfig configures the per-page extraction stage.
type ExtractConfig struct {
	MaxPages           int `yaml:"max_pages" mapstructure:"max_pages"`
	MaxThirdPartyCache int `yaml:"max_third_party_cache" mapstructure:"max_third_party_cache"`
	TruncateChars      int `yaml:"truncate_chars" mapstructure:"truncate_chars"`
	RetryDelaySecs     int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
}

// ImageConfig configures the deterministic image filter.
type ImageConfig struct {
	MinBytes         int64 `yaml:"min_bytes" mapstructure:"min_bytes"`
	MaxBytes         int64 `yaml:"max_bytes" mapstructure:"max_bytes"`
	KeepCount        int   `yaml:"keep_count" mapstructure:"keep_count"`
	DiscoverCap      int   `yaml:"discover_cap" mapstructure:"discover_cap"`
	ProbeTimeoutSecs int   `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	ProbeConcurrency int   `yaml:"probe_concurrency" mapstructure:"probe_concurrency"`
}

// DocumentConfig configures document discovery.
type DocumentConfig struct {
	MaxDocuments int `yaml:"max_documents" mapstructure:"max_documents"`
}

// ValidateConfig configures deterministic corrections and the plausibility
// check. The weight shortfall cutoffs are deliberate judgment calls kept
// configurable rather than derived.
type ValidateConfig struct {
	WeightShortfallPct float64 `yaml:"weight_shortfall_pct" mapstructure:"weight_shortfall_pct"`
	WeightShortfallKg  float64 `yaml:"weight_shortfall_kg" mapstructure:"weight_shortfall_kg"`
}

// BatchConfig configures batch processing pacing.
type BatchConfig struct {
	PauseSecs int `yaml:"pause_secs" mapstructure:"pause_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("triage.brand_confidence_threshold", 0.7)
	v.SetDefault("triage.max_search_results", 15)
	v.SetDefault("extract.max_pages", 5)
	v.SetDefault("extract.max_third_party_cache", 5)
	v.SetDefault("extract.truncate_chars", 20000)
	v.SetDefault("extract.retry_delay_secs", 2)
	v.SetDefault("images.min_bytes", 20_000)
	v.SetDefault("images.max_bytes", 10_000_000)
	v.SetDefault("images.keep_count", 8)
	v.SetDefault("images.discover_cap", 20)
	v.SetDefault("images.probe_timeout_secs", 5)
	v.SetDefault("images.probe_concurrency", 8)
	v.SetDefault("documents.max_documents", 10)
	v.SetDefault("validate.weight_shortfall_pct", 0.05)
	v.SetDefault("validate.weight_shortfall_kg", 0.1)
	v.SetDefault("batch.pause_secs", 2)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.firecrawl.plan_monthly", 19.00)
	v.SetDefault("pricing.firecrawl.credits_included", 3000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks that the configuration required for the given mode is
// present. Missing collaborator credentials are fatal before a run starts,
// never mid-stage.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireKeys := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Firecrawl.Key == "" {
			problems = append(problems, "firecrawl.key is required")
		}
		if c.Jina.Key == "" {
			problems = append(problems, "jina.key is required")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "enrich":
		requireKeys()
	case "serve":
		requireKeys()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Triage.BrandConfidenceThreshold < 0 || c.Triage.BrandConfidenceThreshold > 1 {
		problems = append(problems, "triage.brand_confidence_threshold must be in [0, 1]")
	}
	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
