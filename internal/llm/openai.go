package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", ErrProviderAuthError)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (c *OpenAIClient) Name() string { return ProviderOpenAI }

func (c *OpenAIClient) Ask(ctx context.Context, prompt, systemInstruction string) (Response, error) {
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
	// A blank completion is a provider failure, not an answer; the caller
	// must be able to fall back.
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

func (c *OpenAIClient) Stream(ctx context.Context, prompt, systemInstruction string) (<-chan Chunk, error) {
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

// chatMessages prepends the system instruction as a system-role message when
// present.
func chatMessages(prompt, systemInstruction string) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if systemInstruction != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return msgs
}

func relayCompletionStream(ctx context.Context, stream *openai.ChatCompletionStream) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- Chunk{Err: fmt.Errorf("%w: %v", ErrStreamInterrupted, err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- Chunk{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrProviderAuthError, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
