package conversation

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// LocalCache is the local-first tier of the conversation log: a bbolt file
// with one bucket per user, keyed by the bucket sequence. Writes here are
// synchronous and never skipped; when the durable store is unreachable the
// cache is what keeps the conversation alive.
type LocalCache struct {
	db *bolt.DB
}

func OpenLocalCache(path string) (*LocalCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &LocalCache{db: db}, nil
}

func (c *LocalCache) Append(_ context.Context, turn *Turn) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(turn.UserID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if turn.Seq == 0 {
			turn.Seq = int64(seq)
		}
		data, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

func (c *LocalCache) History(_ context.Context, userID string, limit int) ([]Turn, error) {
	var turns []Turn
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var t Turn
			if err := json.Unmarshal(v, &t); err != nil {
				// Skip malformed entries instead of failing the whole read.
				return nil
			}
			turns = append(turns, t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	if turns == nil {
		turns = make([]Turn, 0)
	}
	return turns, nil
}

func (c *LocalCache) Close() error { return c.db.Close() }
