// Package conversation is the durable log of chat turns. Appends go through
// a dual-write policy: the durable store first, then always the local cache,
// so a turn survives the backend being unreachable. Reads prefer the durable
// store and fall back to the cache transparently.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is one tier of the conversation log.
type Backend interface {
	Append(ctx context.Context, turn *Turn) error
	History(ctx context.Context, userID string, limit int) ([]Turn, error)
}

type Store struct {
	durable Backend
	cache   Backend
	log     *zap.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewStore(durable, cache Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		durable:   durable,
		cache:     cache,
		log:       log,
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// Append persists a single turn. A durable-store failure is logged and
// swallowed; only a cache failure escalates, because then the turn is
// genuinely lost.
func (s *Store) Append(ctx context.Context, turn *Turn) (*Turn, error) {
	if err := validateTurn(turn); err != nil {
		return nil, err
	}
	l := s.lockFor(turn.UserID)
	l.Lock()
	defer l.Unlock()
	if err := s.append(ctx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

// AppendExchange persists a (user, assistant) pair as a non-interleaved unit:
// no other append for the same user can land between the two turns.
// sourceProvider is attached to the assistant turn; pass "" for a degraded
// answer.
func (s *Store) AppendExchange(ctx context.Context, userID, userContent, assistantContent, sourceProvider string) (*Turn, *Turn, error) {
	userTurn := &Turn{
		UserID:  userID,
		Role:    RoleUser,
		Content: userContent,
	}
	assistantTurn := &Turn{
		UserID:         userID,
		Role:           RoleAssistant,
		Content:        assistantContent,
		SourceProvider: sourceProvider,
	}
	if err := validateTurn(userTurn); err != nil {
		return nil, nil, err
	}
	if err := validateTurn(assistantTurn); err != nil {
		return nil, nil, err
	}

	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	if err := s.append(ctx, userTurn); err != nil {
		return nil, nil, err
	}
	if err := s.append(ctx, assistantTurn); err != nil {
		return userTurn, nil, err
	}
	return userTurn, assistantTurn, nil
}

func (s *Store) append(ctx context.Context, turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	if err := s.durable.Append(ctx, turn); err != nil {
		s.log.Warn("durable append failed, cache only",
			zap.String("user_id", turn.UserID),
			zap.String("role", turn.Role),
			zap.Error(err))
	}
	if err := s.cache.Append(ctx, turn); err != nil {
		return fmt.Errorf("conversation turn lost, local cache write failed: %w", err)
	}
	return nil
}

// History reads from the durable store when reachable and falls back to the
// local cache otherwise. Turns come back oldest first; limit > 0 bounds the
// result to the most recent N.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	turns, err := s.durable.History(ctx, userID, limit)
	if err == nil {
		return turns, nil
	}
	s.log.Warn("durable history failed, serving local cache",
		zap.String("user_id", userID),
		zap.Error(err))
	return s.cache.History(ctx, userID, limit)
}

func validateTurn(turn *Turn) error {
	if turn.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return fmt.Errorf("invalid role %q", turn.Role)
	}
	if strings.TrimSpace(turn.Content) == "" {
		return fmt.Errorf("turn content must not be empty")
	}
	return nil
}
