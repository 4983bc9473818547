package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Generative Language REST API directly. No Gemini
// SDK is used; the wire format is small enough that a plain HTTP client with
// an SSE reader covers both call shapes.
type GeminiClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func NewGemini(apiKey, baseURL, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", ErrProviderAuthError)
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiClient{
		client:  &http.Client{},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}, nil
}

func (c *GeminiClient) Name() string { return ProviderGemini }

func (c *GeminiClient) post(ctx context.Context, action, query string, body geminiRequest) (*http.Response, error) {
	url := fmt.Sprintf("%s/models/%s:%s?key=%s%s", c.baseURL, c.model, action, c.apiKey, query)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		kind := ErrProviderUnavailable
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = ErrProviderAuthError
		}
		return nil, fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

func (c *GeminiClient) Ask(ctx context.Context, prompt, systemInstruction string) (Response, error) {
	if prompt == "" {
		return Response{}, ErrEmptyPrompt
	}
	resp, err := c.post(ctx, "generateContent", "", geminiPayload(prompt, systemInstruction))
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return Response{}, fmt.Errorf("%w: unmarshal response: %v", ErrProviderUnavailable, err)
	}
	text := candidateText(gr)
	if text == "" {
		return Response{}, fmt.Errorf("%w: empty candidate", ErrProviderUnavailable)
	}
	return Response{
		Content:          text,
		Model:            c.model,
		PromptTokens:     gr.UsageMetadata.PromptTokenCount,
		CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      gr.UsageMetadata.TotalTokenCount,
	}, nil
}

// Stream uses the SSE variant of generateContent and forwards candidate text
// deltas as they arrive.
func (c *GeminiClient) Stream(ctx context.Context, prompt, systemInstruction string) (<-chan Chunk, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	resp, err := c.post(ctx, "streamGenerateContent", "&alt=sse", geminiPayload(prompt, systemInstruction))
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			var gr geminiResponse
			if err := json.Unmarshal([]byte(payload), &gr); err != nil {
				select {
				case out <- Chunk{Err: fmt.Errorf("%w: unmarshal stream chunk: %v", ErrStreamInterrupted, err)}:
				case <-ctx.Done():
				}
				return
			}
			text := candidateText(gr)
			if text == "" {
				continue
			}
			select {
			case out <- Chunk{Content: text}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- Chunk{Err: fmt.Errorf("%w: %v", ErrStreamInterrupted, err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func geminiPayload(prompt, systemInstruction string) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if systemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}
	return req
}

func candidateText(gr geminiResponse) string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
