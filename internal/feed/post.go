package feed

import (
	"errors"
	"time"
)

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityFollowers Visibility = "followers"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrAlreadyLiked      = errors.New("already liked")
	ErrNotLiked          = errors.New("not liked")
	ErrAlreadySaved      = errors.New("already saved")
	ErrNotSaved          = errors.New("not saved")
	ErrNotPostAuthor     = errors.New("not the post author")
	ErrInvalidVisibility = errors.New("invalid visibility")
)

// Post carries the engagement counters the ranker reads. Counters never go
// negative and views only grow; the trending score is computed from them at
// read time, never stored.
type Post struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	Visibility Visibility `json:"visibility"`
	Views      int64      `json:"views"`
	Likes      int64      `json:"likes"`
	Saves      int64      `json:"saves"`
	Comments   int64      `json:"comments"`
	CreatedAt  time.Time  `json:"created_at"`
}
