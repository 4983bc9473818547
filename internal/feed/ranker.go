package feed

import (
	"math"
	"sort"
)

// Fixed scoring policy: a save signals stronger intent than a like, which
// signals stronger intent than a view.
const (
	weightView = 1
	weightLike = 2
	weightSave = 3
)

// DefaultTrendingLimit bounds the trending list when no limit is requested.
const DefaultTrendingLimit = 10

// TrendingScore is a pure function of the post's current counters.
func TrendingScore(p Post) int64 {
	return p.Views*weightView + p.Likes*weightLike + p.Saves*weightSave
}

// EngagementRate is interactions as a percentage of views, rounded to two
// decimal places. An unviewed post rates 0% rather than dividing by zero.
func EngagementRate(p Post) float64 {
	views := p.Views
	if views < 1 {
		views = 1
	}
	rate := float64(p.Likes+p.Saves+p.Comments) / float64(views) * 100
	return math.Round(rate*100) / 100
}

// Rank returns the public posts sorted by trending score descending, ties
// broken by creation time (newest first), truncated to limit. limit <= 0
// means DefaultTrendingLimit. The input is not mutated.
func Rank(posts []Post, limit int) []Post {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	ranked := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.Visibility == VisibilityPublic {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := TrendingScore(ranked[i]), TrendingScore(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
