package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/js-web-coder/aca-ally/internal/conversation"
	"github.com/js-web-coder/aca-ally/internal/llm"
	"github.com/js-web-coder/aca-ally/internal/routing"
)

// TurnStore is the slice of conversation.Store the relay needs.
type TurnStore interface {
	Append(ctx context.Context, turn *conversation.Turn) (*conversation.Turn, error)
}

// StreamingRelay forwards a provider's incremental response to the caller as
// it arrives, without buffering the whole answer first. The user's message is
// persisted before streaming starts, so a disconnect mid-stream never loses
// the prompt; the assembled answer is persisted by the relay itself once the
// stream completes cleanly.
type StreamingRelay struct {
	clients  map[string]llm.Client
	priority []string
	primary  string
	router   *routing.SubjectRouter
	store    TurnStore
	system   string
	log      *zap.Logger
}

func NewRelay(
	clients map[string]llm.Client,
	priority []string,
	router *routing.SubjectRouter,
	store TurnStore,
	systemPrompt string,
	log *zap.Logger,
) *StreamingRelay {
	if log == nil {
		log = zap.NewNop()
	}
	primary := ""
	if len(priority) > 0 {
		primary = strings.ToLower(priority[0])
	}
	return &StreamingRelay{
		clients:  clients,
		priority: priority,
		primary:  primary,
		router:   router,
		store:    store,
		system:   systemPrompt,
		log:      log,
	}
}

// Stream starts a live answer for the given question. Provider failover
// covers only the initial connection; once a stream is established,
// mid-stream failure surfaces as a terminal chunk with Err set and the
// caller must treat the stream as incomplete. An error return means no
// provider could start a stream (or the prompt could not be persisted).
func (r *StreamingRelay) Stream(ctx context.Context, userID, message, subject string) (<-chan llm.Chunk, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(message) == "" {
		return nil, llm.ErrEmptyPrompt
	}

	// The prompt goes down before any provider is dialed. Partial
	// conversations are valid history, never rolled back.
	if _, err := r.store.Append(ctx, &conversation.Turn{
		UserID:  userID,
		Role:    conversation.RoleUser,
		Content: message,
	}); err != nil {
		return nil, err
	}

	var upstream <-chan llm.Chunk
	var source string
	var lastErr error
	for _, name := range r.order(subject) {
		client, ok := r.clients[name]
		if !ok {
			continue
		}
		ch, err := client.Stream(ctx, message, r.system)
		if err != nil {
			lastErr = err
			r.log.Warn("stream connect failed",
				zap.String("provider", name),
				zap.String("error_kind", errorKind(err)),
				zap.Error(err))
			continue
		}
		upstream = ch
		source = name
		break
	}
	if upstream == nil {
		if lastErr == nil {
			lastErr = llm.ErrProviderUnavailable
		}
		return nil, fmt.Errorf("no provider could start a stream: %w", lastErr)
	}

	out := make(chan llm.Chunk)
	go r.forward(ctx, out, upstream, userID, source)
	return out, nil
}

func (r *StreamingRelay) forward(ctx context.Context, out chan<- llm.Chunk, upstream <-chan llm.Chunk, userID, source string) {
	defer close(out)

	var assembled strings.Builder
	for chunk := range upstream {
		if chunk.Err != nil {
			// No synthetic content is invented for an interrupted stream and
			// nothing is persisted; the caller decides whether to retry.
			select {
			case out <- chunk:
			case <-ctx.Done():
			}
			return
		}
		assembled.WriteString(chunk.Content)
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	text := assembled.String()
	if text == "" {
		return
	}
	if source != r.primary {
		suffix := fmt.Sprintf("\n\n(Powered by %s)", llm.DisplayName(source))
		text += suffix
		select {
		case out <- llm.Chunk{Content: suffix}:
		case <-ctx.Done():
			return
		}
	}
	if _, err := r.store.Append(ctx, &conversation.Turn{
		UserID:         userID,
		Role:           conversation.RoleAssistant,
		Content:        text,
		SourceProvider: source,
	}); err != nil {
		r.log.Error("failed to persist assembled stream answer",
			zap.String("user_id", userID),
			zap.String("provider", source),
			zap.Error(err))
	}
}

func (r *StreamingRelay) order(subject string) []string {
	return providerOrder(r.priority, r.router, subject)
}
