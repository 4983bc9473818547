package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Provider credentials and models
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	PerplexityAPIKey  string `env:"PERPLEXITY_API_KEY"`
	PerplexityBaseURL string `env:"PERPLEXITY_BASE_URL" envDefault:"https://api.perplexity.ai"`
	PerplexityModel   string `env:"PERPLEXITY_MODEL" envDefault:"sonar"`

	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`

	// Orchestration
	ProviderPriority []string      `env:"PROVIDER_PRIORITY" envSeparator:":" envDefault:"gemini:perplexity:openai"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	SystemPromptPath string        `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/tutor_prompt.txt"`

	// Storage
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"data/aca-ally.db"`
	CachePath      string `env:"CACHE_PATH" envDefault:"data/conversations.bolt"`
	AttemptLogPath string `env:"ATTEMPT_LOG_PATH" envDefault:"logs/attempts.jsonl"`

	// Trending feed
	TrendingLimit       int    `env:"TRENDING_LIMIT" envDefault:"10"`
	TrendingRefreshSpec string `env:"TRENDING_REFRESH_SPEC" envDefault:"@every 5m"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
