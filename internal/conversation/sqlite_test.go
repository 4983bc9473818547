package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestDurable(t *testing.T) *DurableStore {
	t.Helper()
	s, err := NewDurableStore(filepath.Join(t.TempDir(), "turns.db"))
	if err != nil {
		t.Fatalf("open durable store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDurableAppendAndHistory(t *testing.T) {
	s := newTestDurable(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		turn := &Turn{
			ID:        fmt.Sprintf("t%d", i),
			UserID:    "u1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("question %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Append(ctx, turn); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if turn.Seq == 0 {
			t.Fatalf("append must fill the insertion sequence")
		}
	}

	all, err := s.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("history not chronological at %d", i)
		}
	}

	recent, err := s.History(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("bounded history: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "question 2" || recent[1].Content != "question 3" {
		t.Fatalf("bounded history must be the most recent turns, oldest first: %+v", recent)
	}
}

func TestDurableHistoryTieBreakBySeq(t *testing.T) {
	s := newTestDurable(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, &Turn{
			ID:        fmt.Sprintf("t%d", i),
			UserID:    "u1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("question %d", i),
			CreatedAt: ts,
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := s.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for i, turn := range all {
		if turn.Content != fmt.Sprintf("question %d", i) {
			t.Fatalf("equal timestamps must order by insertion sequence: %+v", all)
		}
	}
}

func TestDurableHistoryIsolatesUsers(t *testing.T) {
	s := newTestDurable(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		if err := s.Append(ctx, &Turn{
			ID:        user + "-turn",
			UserID:    user,
			Role:      RoleUser,
			Content:   "hello from " + user,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("append for %s: %v", user, err)
		}
	}

	turns, err := s.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 || turns[0].UserID != "u1" {
		t.Fatalf("history leaked across users: %+v", turns)
	}
}
