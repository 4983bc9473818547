package conversation

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_turns (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    source_provider TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_turns_user ON chat_turns(user_id, created_at);`

// DurableStore is the authoritative conversation backing. In the deployed
// platform this sits behind the network, which is why every call takes a
// context and why the Store treats its failures as recoverable.
type DurableStore struct {
	db *sql.DB
}

func NewDurableStore(dbPath string) (*DurableStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &DurableStore{db: db}, nil
}

func (s *DurableStore) Append(ctx context.Context, turn *Turn) error {
	query := `
        INSERT INTO chat_turns (id, user_id, role, content, source_provider, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING seq`

	return s.db.QueryRowContext(ctx, query,
		turn.ID, turn.UserID, turn.Role, turn.Content, turn.SourceProvider, turn.CreatedAt,
	).Scan(&turn.Seq)
}

// History returns turns in chronological order. limit <= 0 returns the full
// log (replay shape); limit > 0 returns the most recent N, still oldest
// first (display shape).
func (s *DurableStore) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	query := `
        SELECT id, user_id, role, content, source_provider, created_at, seq
        FROM chat_turns
        WHERE user_id = ?
        ORDER BY created_at ASC, seq ASC`
	args := []any{userID}
	if limit > 0 {
		query = `
        SELECT id, user_id, role, content, source_provider, created_at, seq
        FROM chat_turns
        WHERE user_id = ?
        ORDER BY created_at DESC, seq DESC
        LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Role, &t.Content, &t.SourceProvider, &t.CreatedAt, &t.Seq); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		reverse(turns)
	}
	return turns, nil
}

func (s *DurableStore) Close() error { return s.db.Close() }

func reverse(turns []Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
