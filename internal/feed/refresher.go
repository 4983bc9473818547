package feed

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trending keeps a periodically refreshed snapshot of the ranked public
// feed so the trending endpoint is a cheap in-memory read.
type Trending struct {
	store *PostStore
	limit int
	cron  *cron.Cron
	log   *zap.Logger

	mu       sync.RWMutex
	snapshot []Post
}

func NewTrending(store *PostStore, limit int, log *zap.Logger) *Trending {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trending{
		store: store,
		limit: limit,
		cron:  cron.New(cron.WithLocation(time.UTC)),
		log:   log,
	}
}

// Start refreshes once immediately, then on the given cron spec
// (e.g. "@every 5m").
func (t *Trending) Start(spec string) error {
	if err := t.Refresh(context.Background()); err != nil {
		t.log.Warn("initial trending refresh failed", zap.Error(err))
	}
	_, err := t.cron.AddFunc(spec, func() {
		if err := t.Refresh(context.Background()); err != nil {
			t.log.Warn("trending refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	t.cron.Start()
	return nil
}

func (t *Trending) Stop() {
	t.cron.Stop()
}

func (t *Trending) Refresh(ctx context.Context) error {
	posts, err := t.store.PublicPosts(ctx)
	if err != nil {
		return err
	}
	ranked := Rank(posts, t.limit)
	t.mu.Lock()
	t.snapshot = ranked
	t.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the last ranked feed.
func (t *Trending) Snapshot() []Post {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Post, len(t.snapshot))
	copy(out, t.snapshot)
	return out
}
