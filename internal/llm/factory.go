package llm

import (
	"fmt"
	"strings"

	"github.com/js-web-coder/aca-ally/internal/config"
)

// Factory creates provider clients with consistent logic.
type Factory struct {
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	PerplexityAPIKey  string
	PerplexityBaseURL string
	PerplexityModel   string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiModel       string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenAIModel:       cfg.OpenAIModel,
		PerplexityAPIKey:  cfg.PerplexityAPIKey,
		PerplexityBaseURL: cfg.PerplexityBaseURL,
		PerplexityModel:   cfg.PerplexityModel,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GeminiBaseURL:     cfg.GeminiBaseURL,
		GeminiModel:       cfg.GeminiModel,
	}
}

func (f *Factory) CreateClient(provider string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewOpenAI(f.OpenAIAPIKey, f.OpenAIBaseURL, f.OpenAIModel)
	case ProviderPerplexity:
		return NewPerplexity(f.PerplexityAPIKey, f.PerplexityBaseURL, f.PerplexityModel)
	case ProviderGemini:
		return NewGemini(f.GeminiAPIKey, f.GeminiBaseURL, f.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown ai provider: %s", provider)
	}
}

// CreateClients builds clients for every provider in the priority list.
// Providers whose credentials are absent are skipped rather than failing
// startup; a deployment may legitimately run with a subset configured.
func (f *Factory) CreateClients(priority []string) (map[string]Client, []error) {
	clients := make(map[string]Client, len(priority))
	var errs []error
	for _, name := range priority {
		c, err := f.CreateClient(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		clients[strings.ToLower(name)] = c
	}
	return clients, errs
}
