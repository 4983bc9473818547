package llm

import (
	"context"
	"errors"
)

// Provider names as they appear in configuration, routing tables and
// persisted turn attribution.
const (
	ProviderOpenAI     = "openai"
	ProviderPerplexity = "perplexity"
	ProviderGemini     = "gemini"
)

var (
	// ErrProviderUnavailable covers network failures, non-success backend
	// statuses and per-call timeouts. The orchestrator moves on to the next
	// provider when it sees this.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderAuthError means credentials are missing or rejected. For
	// fallback purposes it behaves like unavailability, but it is kept
	// distinct so logs point at configuration rather than transient outages.
	ErrProviderAuthError = errors.New("provider credentials missing or rejected")

	// ErrStreamInterrupted is carried by the terminal chunk of a stream that
	// died after producing output. The caller must treat the stream as
	// incomplete.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrEmptyPrompt is a programmer error, never subject to fallback.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Chunk is one increment of a streamed answer. A chunk with Err set is
// terminal; the channel is closed right after it.
type Chunk struct {
	Content string
	Err     error
}

// Client is one AI answering backend. Implementations never retry
// internally; retry and fallback belong to the orchestrator.
type Client interface {
	Name() string
	Ask(ctx context.Context, prompt, systemInstruction string) (Response, error)
	Stream(ctx context.Context, prompt, systemInstruction string) (<-chan Chunk, error)
}

var displayNames = map[string]string{
	ProviderOpenAI:     "OpenAI",
	ProviderPerplexity: "Perplexity",
	ProviderGemini:     "Gemini",
}

// DisplayName returns the human-facing provider name used in answer
// attribution.
func DisplayName(provider string) string {
	if n, ok := displayNames[provider]; ok {
		return n
	}
	return provider
}
