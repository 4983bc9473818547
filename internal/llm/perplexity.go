package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultPerplexityBaseURL = "https://api.perplexity.ai"

// PerplexityClient talks to Perplexity's chat completions API, which is
// OpenAI-compatible on the wire, so it rides on the same SDK with a swapped
// base URL.
type PerplexityClient struct {
	client *openai.Client
	model  string
}

func NewPerplexity(apiKey, baseURL, model string) (*PerplexityClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: PERPLEXITY_API_KEY is empty", ErrProviderAuthError)
	}
	if baseURL == "" {
		baseURL = defaultPerplexityBaseURL
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &PerplexityClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (c *PerplexityClient) Name() string { return ProviderPerplexity }

func (c *PerplexityClient) Ask(ctx context.Context, prompt, systemInstruction string) (Response, error) {
	if prompt == "" {
		return Response{}, ErrEmptyPrompt
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages(prompt, systemInstruction),
	})
	if err != nil {
		return Response{}, classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty completion", ErrProviderUnavailable)
	}
	if strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{}, fmt.Errorf("%w: blank completion", ErrProviderUnavailable)
	}
	out := Response{
		Content: resp.Choices[0].Message.Content,
		Model:   c.model,
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens
	out.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}

func (c *PerplexityClient) Stream(ctx context.Context, prompt, systemInstruction string) (<-chan Chunk, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages(prompt, systemInstruction),
		Stream:   true,
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	return relayCompletionStream(ctx, stream), nil
}
