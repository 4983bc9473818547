package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    author_id TEXT NOT NULL,
    visibility TEXT NOT NULL DEFAULT 'public',
    views INTEGER NOT NULL DEFAULT 0,
    likes INTEGER NOT NULL DEFAULT 0,
    saves INTEGER NOT NULL DEFAULT 0,
    comments INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS post_likes (
    user_id TEXT NOT NULL,
    post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, post_id)
);

CREATE TABLE IF NOT EXISTS post_saves (
    user_id TEXT NOT NULL,
    post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, post_id)
);`

// PostStore persists posts and their engagement counters. Like/save are
// idempotent per (user, post): the uniqueness constraint decides, not a
// read-then-write, so concurrent doubles are rejected rather than
// double-counted.
type PostStore struct {
	db *sql.DB
}

func NewPostStore(dbPath string) (*PostStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer connection; sqlite serializes writes anyway and this avoids
	// SQLITE_BUSY races between concurrent like transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &PostStore{db: db}, nil
}

func (s *PostStore) Close() error { return s.db.Close() }

func (s *PostStore) CreatePost(ctx context.Context, authorID string, visibility Visibility) (*Post, error) {
	if authorID == "" {
		return nil, fmt.Errorf("author id is required")
	}
	switch visibility {
	case VisibilityPublic, VisibilityPrivate, VisibilityFollowers:
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidVisibility, visibility)
	}
	post := &Post{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		Visibility: visibility,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO posts (id, author_id, visibility, created_at)
        VALUES (?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Visibility, post.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

func (s *PostStore) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, author_id, visibility, views, likes, saves, comments, created_at
        FROM posts WHERE id = ?`, id)
	var p Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Visibility, &p.Views, &p.Likes, &p.Saves, &p.Comments, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return &p, nil
}

// RecordView bumps the view counter. Views are not deduplicated per user;
// they count impressions.
func (s *PostStore) RecordView(ctx context.Context, postID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET views = views + 1 WHERE id = ?`, postID)
	if err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostStore) IncrementComments(ctx context.Context, postID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET comments = comments + 1 WHERE id = ?`, postID)
	if err != nil {
		return fmt.Errorf("increment comments: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostStore) Like(ctx context.Context, userID, postID string) error {
	return s.mark(ctx, userID, postID, "post_likes", "likes", ErrAlreadyLiked)
}

func (s *PostStore) Unlike(ctx context.Context, userID, postID string) error {
	return s.unmark(ctx, userID, postID, "post_likes", "likes", ErrNotLiked)
}

func (s *PostStore) Save(ctx context.Context, userID, postID string) error {
	return s.mark(ctx, userID, postID, "post_saves", "saves", ErrAlreadySaved)
}

func (s *PostStore) Unsave(ctx context.Context, userID, postID string) error {
	return s.unmark(ctx, userID, postID, "post_saves", "saves", ErrNotSaved)
}

// mark inserts the (user, post) row and bumps the counter in one
// transaction. ON CONFLICT DO NOTHING plus RowsAffected is what makes the
// double-action case a rejection instead of a lost or duplicated update.
func (s *PostStore) mark(ctx context.Context, userID, postID, table, counter string, dup error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, post_id, created_at)
        VALUES (?, ?, ?)
        ON CONFLICT (user_id, post_id) DO NOTHING`, table),
		userID, postID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dup
	}

	res, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE posts SET %s = %s + 1 WHERE id = ?`, counter, counter), postID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostStore) unmark(ctx context.Context, userID, postID, table, counter string, missing error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND post_id = ?`, table), userID, postID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}

	// MAX keeps the counter at its floor of zero even if rows and counter
	// ever disagree.
	res, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE posts SET %s = MAX(%s - 1, 0) WHERE id = ?`, counter, counter), postID)
	if err != nil {
		return fmt.Errorf("decrement %s: %w", counter, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePost removes the post if userID is its author; like/save rows
// cascade, so the post drops out of every ranking.
func (s *PostStore) DeletePost(ctx context.Context, userID, postID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = ? AND author_id = ?`, postID, userID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, postID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("check post author: %w", err)
	}
	return ErrNotPostAuthor
}

// PublicPosts returns every public post with current counters, for ranking.
func (s *PostStore) PublicPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, author_id, visibility, views, likes, saves, comments, created_at
        FROM posts
        WHERE visibility = ?`, VisibilityPublic)
	if err != nil {
		return nil, fmt.Errorf("query public posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Visibility, &p.Views, &p.Likes, &p.Saves, &p.Comments, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}
