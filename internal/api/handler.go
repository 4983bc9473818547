// Package api exposes the orchestration, conversation and feed cores over
// HTTP. Everything here is thin glue: decode, authenticate, delegate,
// encode.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/js-web-coder/aca-ally/internal/conversation"
	"github.com/js-web-coder/aca-ally/internal/feed"
	"github.com/js-web-coder/aca-ally/internal/insight"
	"github.com/js-web-coder/aca-ally/internal/llm"
	"github.com/js-web-coder/aca-ally/internal/orchestrator"
)

// Principal is the authenticated caller. Session handling itself lives
// outside this repo; the handlers only need a stable user id.
type Principal struct {
	UserID string
}

// Authenticator resolves the current principal from a request.
type Authenticator interface {
	CurrentUser(r *http.Request) (Principal, bool)
}

// HeaderAuthenticator trusts an upstream gateway to put the user id in
// X-User-ID. It stands in for the platform's session authenticator.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) CurrentUser(r *http.Request) (Principal, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return Principal{}, false
	}
	return Principal{UserID: id}, true
}

// HistoryReader is the slice of conversation.Store the handlers need.
type HistoryReader interface {
	History(ctx context.Context, userID string, limit int) ([]conversation.Turn, error)
}

type Handler struct {
	orch     *orchestrator.Orchestrator
	relay    *orchestrator.StreamingRelay
	history  HistoryReader
	posts    *feed.PostStore
	trending *feed.Trending
	auth     Authenticator
	logger   *zap.Logger
}

func NewHandler(
	orch *orchestrator.Orchestrator,
	relay *orchestrator.StreamingRelay,
	history HistoryReader,
	posts *feed.PostStore,
	trending *feed.Trending,
	auth Authenticator,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orch:     orch,
		relay:    relay,
		history:  history,
		posts:    posts,
		trending: trending,
		auth:     auth,
		logger:   logger,
	}
}

// Routes wires the handlers onto a mux using method-qualified patterns.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ask", h.handleAsk)
	mux.HandleFunc("POST /api/ask/stream", h.handleAskStream)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/trending", h.handleTrending)
	mux.HandleFunc("POST /api/insight", h.handleInsight)
	mux.HandleFunc("POST /api/posts", h.handleCreatePost)
	mux.HandleFunc("DELETE /api/posts/{id}", h.handleDeletePost)
	mux.HandleFunc("POST /api/posts/{id}/view", h.handleView)
	mux.HandleFunc("POST /api/posts/{id}/like", h.handleLike)
	mux.HandleFunc("DELETE /api/posts/{id}/like", h.handleUnlike)
	mux.HandleFunc("POST /api/posts/{id}/save", h.handleSave)
	mux.HandleFunc("DELETE /api/posts/{id}/save", h.handleUnsave)
	return mux
}

type askRequest struct {
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.orch.Ask(r.Context(), principal.UserID, req.Message, req.Subject)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyPrompt) {
			http.Error(w, "Message must not be empty", http.StatusBadRequest)
			return
		}
		h.logger.Error("ask failed", zap.String("user_id", principal.UserID), zap.Error(err))
		http.Error(w, "Your message may not be recoverable after reload", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, result)
}

// handleAskStream relays provider chunks as server-sent events. Each text
// chunk becomes a data event; an interrupted stream ends with an error event
// so the client knows the answer is incomplete.
func (h *Handler) handleAskStream(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	chunks, err := h.relay.Stream(r.Context(), principal.UserID, req.Message, req.Subject)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyPrompt) {
			http.Error(w, "Message must not be empty", http.StatusBadRequest)
			return
		}
		h.logger.Error("stream failed to start", zap.String("user_id", principal.UserID), zap.Error(err))
		http.Error(w, "No assistant is available right now", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: stream interrupted\n\n")
			flusher.Flush()
			return
		}
		data, err := json.Marshal(chunk.Content)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	turns, err := h.history.History(r.Context(), principal.UserID, limit)
	if err != nil {
		h.logger.Error("history failed", zap.String("user_id", principal.UserID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, turns)
}

type trendingPost struct {
	feed.Post
	TrendingScore  int64   `json:"trending_score"`
	EngagementRate float64 `json:"engagement_rate"`
}

func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	posts := h.trending.Snapshot()
	out := make([]trendingPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, trendingPost{
			Post:           p,
			TrendingScore:  feed.TrendingScore(p),
			EngagementRate: feed.EngagementRate(p),
		})
	}
	writeJSON(w, h.logger, out)
}

type insightRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleInsight(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.auth.CurrentUser(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req insightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.logger, insight.Segment(req.Text))
}

type createPostRequest struct {
	Visibility feed.Visibility `json:"visibility"`
}

func (h *Handler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	req := createPostRequest{Visibility: feed.VisibilityPublic}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	post, err := h.posts.CreatePost(r.Context(), principal.UserID, req.Visibility)
	if err != nil {
		if errors.Is(err, feed.ErrInvalidVisibility) {
			http.Error(w, "Invalid post", http.StatusBadRequest)
			return
		}
		h.logger.Error("create post failed", zap.String("user_id", principal.UserID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(post); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.posts.DeletePost)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, func(ctx context.Context, _, postID string) error {
		return h.posts.RecordView(ctx, postID)
	})
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.posts.Like)
}

func (h *Handler) handleUnlike(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.posts.Unlike)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.posts.Save)
}

func (h *Handler) handleUnsave(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.posts.Unsave)
}

func (h *Handler) postAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, postID string) error) {
	principal, ok := h.auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	postID := r.PathValue("id")
	if postID == "" {
		http.Error(w, "Missing post id", http.StatusBadRequest)
		return
	}
	err := action(r.Context(), principal.UserID, postID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, feed.ErrPostNotFound):
		http.Error(w, "Post not found", http.StatusNotFound)
	case errors.Is(err, feed.ErrNotPostAuthor):
		http.Error(w, "Only the author may do that", http.StatusForbidden)
	case errors.Is(err, feed.ErrAlreadyLiked), errors.Is(err, feed.ErrAlreadySaved):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, feed.ErrNotLiked), errors.Is(err, feed.ErrNotSaved):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("post action failed", zap.String("post_id", postID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
