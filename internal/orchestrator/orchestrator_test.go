package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/js-web-coder/aca-ally/internal/conversation"
	"github.com/js-web-coder/aca-ally/internal/llm"
	"github.com/js-web-coder/aca-ally/internal/routing"
	"github.com/js-web-coder/aca-ally/internal/storage"
)

type fakeClient struct {
	name    string
	answer  string
	err     error
	calls   int
	streams []string
	connErr error
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Ask(_ context.Context, prompt, _ string) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.answer}, nil
}

func (f *fakeClient) Stream(ctx context.Context, _, _ string) (<-chan llm.Chunk, error) {
	f.calls++
	if f.connErr != nil {
		return nil, f.connErr
	}
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, s := range f.streams {
			select {
			case out <- llm.Chunk{Content: s}:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			out <- llm.Chunk{Err: f.err}
		}
	}()
	return out, nil
}

type fakeStore struct {
	mu    sync.Mutex
	turns []conversation.Turn
	fail  bool
}

func (s *fakeStore) AppendExchange(_ context.Context, userID, userContent, assistantContent, sourceProvider string) (*conversation.Turn, *conversation.Turn, error) {
	if s.fail {
		return nil, nil, errors.New("cache write failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ut := conversation.Turn{UserID: userID, Role: conversation.RoleUser, Content: userContent}
	at := conversation.Turn{UserID: userID, Role: conversation.RoleAssistant, Content: assistantContent, SourceProvider: sourceProvider}
	s.turns = append(s.turns, ut, at)
	return &ut, &at, nil
}

func (s *fakeStore) Append(_ context.Context, turn *conversation.Turn) (*conversation.Turn, error) {
	if s.fail {
		return nil, errors.New("cache write failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, *turn)
	return turn, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []storage.AttemptEvent
}

func (r *fakeRecorder) RecordAttempt(ev storage.AttemptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

var priority = []string{llm.ProviderGemini, llm.ProviderPerplexity, llm.ProviderOpenAI}

func newTestOrchestrator(clients map[string]llm.Client, store ExchangeStore, rec storage.Recorder) *Orchestrator {
	router := routing.NewSubjectRouter(llm.ProviderGemini)
	return New(clients, priority, router, store, rec, "", time.Second, nil)
}

func TestAskFirstProviderWins(t *testing.T) {
	gemini := &fakeClient{name: llm.ProviderGemini, answer: "photosynthesis converts light to energy"}
	perplexity := &fakeClient{name: llm.ProviderPerplexity, answer: "unused"}
	store := &fakeStore{}
	o := newTestOrchestrator(map[string]llm.Client{
		llm.ProviderGemini:     gemini,
		llm.ProviderPerplexity: perplexity,
	}, store, nil)

	res, err := o.Ask(context.Background(), "u1", "what is photosynthesis?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SourceProvider != llm.ProviderGemini {
		t.Fatalf("expected gemini, got %s", res.SourceProvider)
	}
	if res.Text != gemini.answer {
		t.Fatalf("primary answer must be unannotated, got %q", res.Text)
	}
	if gemini.calls != 1 || perplexity.calls != 0 {
		t.Fatalf("unexpected call counts: gemini=%d perplexity=%d", gemini.calls, perplexity.calls)
	}
	if len(store.turns) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(store.turns))
	}
	if store.turns[0].Role != conversation.RoleUser || store.turns[1].Role != conversation.RoleAssistant {
		t.Fatalf("turns persisted out of order: %+v", store.turns)
	}
}

func TestAskFallsBackToSecondProvider(t *testing.T) {
	gemini := &fakeClient{name: llm.ProviderGemini, err: llm.ErrProviderUnavailable}
	perplexity := &fakeClient{name: llm.ProviderPerplexity, answer: "the treaty was signed in 1648"}
	store := &fakeStore{}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(map[string]llm.Client{
		llm.ProviderGemini:     gemini,
		llm.ProviderPerplexity: perplexity,
	}, store, rec)

	res, err := o.Ask(context.Background(), "u1", "when was the peace of westphalia?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SourceProvider != llm.ProviderPerplexity {
		t.Fatalf("expected perplexity, got %s", res.SourceProvider)
	}
	if gemini.calls != 1 || perplexity.calls != 1 {
		t.Fatalf("expected exactly two invocations, got gemini=%d perplexity=%d", gemini.calls, perplexity.calls)
	}
	if !strings.HasSuffix(res.Text, "(Powered by Perplexity)") {
		t.Fatalf("non-primary answer must carry attribution, got %q", res.Text)
	}
	// Attribution is part of the persisted content, not render-time decoration.
	if store.turns[1].Content != res.Text {
		t.Fatalf("persisted content %q differs from returned %q", store.turns[1].Content, res.Text)
	}
	if len(rec.events) != 2 || rec.events[0].Succeeded || !rec.events[1].Succeeded {
		t.Fatalf("unexpected attempt log: %+v", rec.events)
	}
}

func TestAskTreatsBlankAnswerAsFailure(t *testing.T) {
	gemini := &fakeClient{name: llm.ProviderGemini, answer: "   "}
	perplexity := &fakeClient{name: llm.ProviderPerplexity, answer: "a haiku has seventeen syllables"}
	store := &fakeStore{}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(map[string]llm.Client{
		llm.ProviderGemini:     gemini,
		llm.ProviderPerplexity: perplexity,
	}, store, rec)

	res, err := o.Ask(context.Background(), "u1", "how long is a haiku?", "")
	if err != nil {
		t.Fatalf("a blank answer must fall back, not escalate: %v", err)
	}
	if res.SourceProvider != llm.ProviderPerplexity {
		t.Fatalf("expected the next provider to answer, got %s", res.SourceProvider)
	}
	if gemini.calls != 1 || perplexity.calls != 1 {
		t.Fatalf("unexpected call counts: gemini=%d perplexity=%d", gemini.calls, perplexity.calls)
	}
	if len(rec.events) != 2 || rec.events[0].Succeeded || rec.events[0].ErrorKind != "unavailable" {
		t.Fatalf("blank attempt must be logged as a failure: %+v", rec.events)
	}
	if len(store.turns) != 2 || store.turns[1].Content == "" {
		t.Fatalf("persisted exchange must carry the real answer: %+v", store.turns)
	}
}

func TestAskAllProvidersFail(t *testing.T) {
	gemini := &fakeClient{name: llm.ProviderGemini, err: llm.ErrProviderUnavailable}
	perplexity := &fakeClient{name: llm.ProviderPerplexity, err: llm.ErrProviderAuthError}
	openai := &fakeClient{name: llm.ProviderOpenAI, err: llm.ErrProviderUnavailable}
	store := &fakeStore{}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(map[string]llm.Client{
		llm.ProviderGemini:     gemini,
		llm.ProviderPerplexity: perplexity,
		llm.ProviderOpenAI:     openai,
	}, store, rec)

	res, err := o.Ask(context.Background(), "u1", "help", "")
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got %v", err)
	}
	if res.SourceProvider != SourceNone {
		t.Fatalf("expected source %q, got %q", SourceNone, res.SourceProvider)
	}
	if res.Text != DegradedAnswer {
		t.Fatalf("expected the fixed degraded message, got %q", res.Text)
	}
	if len(store.turns) != 2 {
		t.Fatalf("degraded exchange must still persist 2 turns, got %d", len(store.turns))
	}
	if store.turns[1].SourceProvider != "" {
		t.Fatalf("degraded turn must not carry a source provider, got %q", store.turns[1].SourceProvider)
	}
	if rec.events[1].ErrorKind != "auth" {
		t.Fatalf("auth failures must be distinguishable in the attempt log: %+v", rec.events[1])
	}
}

func TestAskSubjectBiasesOrder(t *testing.T) {
	gemini := &fakeClient{name: llm.ProviderGemini, answer: "gemini answer"}
	openai := &fakeClient{name: llm.ProviderOpenAI, answer: "42"}
	store := &fakeStore{}
	o := newTestOrchestrator(map[string]llm.Client{
		llm.ProviderGemini: gemini,
		llm.ProviderOpenAI: openai,
	}, store, nil)

	res, err := o.Ask(context.Background(), "u1", "solve x^2=4", "Math homework")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SourceProvider != llm.ProviderOpenAI {
		t.Fatalf("math subject should prefer openai, got %s", res.SourceProvider)
	}
	if gemini.calls != 0 {
		t.Fatalf("preferred provider succeeded, gemini should not be invoked")
	}
}

func TestAskValidatesInput(t *testing.T) {
	o := newTestOrchestrator(map[string]llm.Client{}, &fakeStore{}, nil)
	if _, err := o.Ask(context.Background(), "", "hi", ""); err == nil {
		t.Fatalf("missing user id must be an error")
	}
	if _, err := o.Ask(context.Background(), "u1", "   ", ""); err == nil {
		t.Fatalf("blank message must be an error")
	}
}

func TestAskEscalatesStoreFailure(t *testing.T) {
	gemini := &fakeClient{name: llm.ProviderGemini, answer: "ok"}
	o := newTestOrchestrator(map[string]llm.Client{llm.ProviderGemini: gemini}, &fakeStore{fail: true}, nil)
	if _, err := o.Ask(context.Background(), "u1", "hi", ""); err == nil {
		t.Fatalf("a lost turn must surface as an error")
	}
}

func TestProviderOrder(t *testing.T) {
	router := routing.NewSubjectRouter(llm.ProviderGemini)

	got := providerOrder(priority, router, "")
	if got[0] != llm.ProviderGemini {
		t.Fatalf("no subject should keep configured order, got %v", got)
	}

	got = providerOrder(priority, router, "World History")
	if got[0] != llm.ProviderPerplexity {
		t.Fatalf("history should move perplexity first, got %v", got)
	}
	if len(got) != len(priority) {
		t.Fatalf("bias must reorder, not drop providers: %v", got)
	}
}
