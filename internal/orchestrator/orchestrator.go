// Package orchestrator decides which AI provider answers a question, retries
// across providers on failure, attributes the serving provider and persists
// both sides of the exchange.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/js-web-coder/aca-ally/internal/conversation"
	"github.com/js-web-coder/aca-ally/internal/llm"
	"github.com/js-web-coder/aca-ally/internal/routing"
	"github.com/js-web-coder/aca-ally/internal/storage"
)

// SourceNone marks an answer no provider served (the degraded message).
const SourceNone = "none"

// DegradedAnswer is the fixed message returned when every provider fails.
// It never exposes provider error text.
const DegradedAnswer = "Sorry, our study assistants are having trouble answering right now. " +
	"Your question has been saved — please try asking again in a moment."

// Result is an attributed answer. Text is never empty; SourceProvider is a
// configured provider name or SourceNone.
type Result struct {
	Text           string `json:"text"`
	SourceProvider string `json:"source_provider"`
}

// ExchangeStore is the slice of conversation.Store the orchestrator needs.
type ExchangeStore interface {
	AppendExchange(ctx context.Context, userID, userContent, assistantContent, sourceProvider string) (*conversation.Turn, *conversation.Turn, error)
}

type Orchestrator struct {
	clients  map[string]llm.Client
	priority []string
	primary  string
	router   *routing.SubjectRouter
	store    ExchangeStore
	attempts storage.Recorder // optional
	system   string
	timeout  time.Duration
	log      *zap.Logger
}

func New(
	clients map[string]llm.Client,
	priority []string,
	router *routing.SubjectRouter,
	store ExchangeStore,
	attempts storage.Recorder,
	systemPrompt string,
	timeout time.Duration,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	primary := ""
	if len(priority) > 0 {
		primary = strings.ToLower(priority[0])
	}
	return &Orchestrator{
		clients:  clients,
		priority: priority,
		primary:  primary,
		router:   router,
		store:    store,
		attempts: attempts,
		system:   systemPrompt,
		timeout:  timeout,
		log:      log,
	}
}

// Ask tries providers in priority order (biased by subject) until one
// answers. Total exhaustion is not an error: the degraded message comes back
// with SourceProvider "none". Either way exactly two turns are persisted,
// the user's message first. The only errors that cross this boundary are
// programmer errors and a local cache write failure.
func (o *Orchestrator) Ask(ctx context.Context, userID, message, subject string) (Result, error) {
	if userID == "" {
		return Result{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(message) == "" {
		return Result{}, llm.ErrEmptyPrompt
	}

	var text, source string
	for _, name := range o.order(subject) {
		client, ok := o.clients[name]
		if !ok {
			continue
		}
		resp, err := o.try(ctx, userID, client, message)
		if err != nil {
			continue
		}
		text = resp.Content
		source = name
		break
	}

	if source == "" {
		text = DegradedAnswer
		source = SourceNone
	} else if source != o.primary {
		// The suffix is part of the persisted content, never recomputed at
		// read time.
		text = fmt.Sprintf("%s\n\n(Powered by %s)", text, llm.DisplayName(source))
	}

	persistedSource := source
	if persistedSource == SourceNone {
		persistedSource = ""
	}
	if _, _, err := o.store.AppendExchange(ctx, userID, message, text, persistedSource); err != nil {
		return Result{}, err
	}
	return Result{Text: text, SourceProvider: source}, nil
}

// try runs a single provider attempt under the per-provider timeout and
// records its outcome.
func (o *Orchestrator) try(ctx context.Context, userID string, client llm.Client, message string) (llm.Response, error) {
	cctx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := client.Ask(cctx, message, o.system)
	latency := time.Since(start)
	// A blank answer counts as a failed attempt; otherwise the fallback
	// chain would stop on a provider that said nothing.
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = fmt.Errorf("%w: blank answer", llm.ErrProviderUnavailable)
	}

	ev := storage.AttemptEvent{
		Timestamp: start.UTC(),
		UserID:    userID,
		Provider:  client.Name(),
		Succeeded: err == nil,
		LatencyMS: latency.Milliseconds(),
	}
	if err != nil {
		ev.ErrorKind = errorKind(err)
		o.log.Warn("provider attempt failed",
			zap.String("provider", client.Name()),
			zap.String("error_kind", ev.ErrorKind),
			zap.Duration("latency", latency),
			zap.Error(err))
	}
	if o.attempts != nil {
		if recErr := o.attempts.RecordAttempt(ev); recErr != nil {
			o.log.Warn("failed to record attempt", zap.Error(recErr))
		}
	}
	return resp, err
}

func (o *Orchestrator) order(subject string) []string {
	return providerOrder(o.priority, o.router, subject)
}

// providerOrder returns the provider priority for one question: the
// configured order, with the subject's preferred provider moved to the front
// when a subject is given.
func providerOrder(priority []string, router *routing.SubjectRouter, subject string) []string {
	order := slices.Clone(priority)
	for i := range order {
		order[i] = strings.ToLower(order[i])
	}
	if strings.TrimSpace(subject) == "" || router == nil {
		return order
	}
	pref := router.PreferredProvider(subject)
	if i := slices.Index(order, pref); i > 0 {
		order = append(order[:i], order[i+1:]...)
		order = append([]string{pref}, order...)
	}
	return order
}

func errorKind(err error) string {
	if errors.Is(err, llm.ErrProviderAuthError) {
		return "auth"
	}
	return "unavailable"
}
