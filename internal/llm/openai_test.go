package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"choices": [{"message": {"role": "assistant", "content": %q}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`, content)
	}))
}

func TestOpenAIAsk(t *testing.T) {
	srv := completionServer(t, "4")
	defer srv.Close()

	c, err := NewOpenAI("secret", srv.URL, "gpt-test")
	if err != nil {
		t.Fatalf("new openai: %v", err)
	}
	resp, err := c.Ask(context.Background(), "2+2?", "")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Content != "4" || resp.TotalTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOpenAIAskBlankCompletionIsUnavailable(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t"} {
		srv := completionServer(t, content)
		c, err := NewOpenAI("secret", srv.URL, "gpt-test")
		if err != nil {
			t.Fatalf("new openai: %v", err)
		}
		if _, err := c.Ask(context.Background(), "q", ""); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("content %q: a blank completion must be unavailable, got %v", content, err)
		}
		srv.Close()
	}
}

func TestPerplexityAskBlankCompletionIsUnavailable(t *testing.T) {
	srv := completionServer(t, " ")
	defer srv.Close()

	c, err := NewPerplexity("secret", srv.URL, "sonar")
	if err != nil {
		t.Fatalf("new perplexity: %v", err)
	}
	if _, err := c.Ask(context.Background(), "q", ""); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("a blank completion must be unavailable, got %v", err)
	}
}
