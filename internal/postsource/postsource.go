// Package postsource defines the abstract interface to the external
// keyword-search / filtered-stream post source (§6) and an HTTP-backed
// implementation adapted from the teacher's Kraken REST client
// (internal/providers/kraken/client.go), stripped of its WebSocket half:
// this system only ever polls a search endpoint, it never subscribes to a
// push feed.
package postsource

import (
	"context"
	"time"
)

// Author is the subset of author metadata the post source can supply
// alongside a candidate post.
type Author struct {
	Username       string     `json:"username,omitempty"`
	Verified       bool       `json:"verified,omitempty"`
	FollowersCount int64      `json:"followers_count,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// Metrics are the post's engagement counters at fetch time.
type Metrics struct {
	Likes   int64
	Reposts int64
	Replies int64
	Quotes  int64
}

// Post is one candidate post returned by search_recent.
type Post struct {
	ExternalID string    `json:"external_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	AuthorID   string    `json:"author_id"`
	Author     Author    `json:"author"`
	Metrics    *Metrics  `json:"metrics,omitempty"`
}

// SearchMeta mirrors the oracle-agnostic pagination envelope search_recent
// returns alongside the post list.
type SearchMeta struct {
	NewestID    string `json:"newest_id,omitempty"`
	OldestID    string `json:"oldest_id,omitempty"`
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

// SearchResult is the full response of search_recent.
type SearchResult struct {
	Posts []Post
	Meta  SearchMeta
}

// Rule is one filter rule, registered or desired.
type Rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// RateLimitError signals the source returned HTTP 429; the orchestrator
// treats this distinctly from other upstream failures (§7 RateLimited).
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "post source rate limited"
}

// RateLimited satisfies guard.RateLimitSignal.
func (e *RateLimitError) RateLimited() bool { return true }

// Source is the abstract interface §6 specifies. Implementations must
// surface *RateLimitError distinctly from other transient failures so the
// orchestrator can back off per §4.G / §7.
type Source interface {
	GetRules(ctx context.Context) ([]Rule, error)
	AddRules(ctx context.Context, rules []Rule) ([]Rule, error)
	DeleteRules(ctx context.Context, ids []string) error
	SearchRecent(ctx context.Context, query string, maxResults int, sinceID string) (SearchResult, error)
}
