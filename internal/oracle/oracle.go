// Package oracle defines the abstract interface to the external scoring
// oracle (§6) and an HTTP-backed implementation, grounded on the same
// guarded-HTTP idiom as package postsource.
package oracle

import (
	"context"

	"github.com/evidengine/core/internal/domain"
)

// MarketContext is the market half of a score_batch request.
type MarketContext struct {
	MarketID string
	Question string
	Outcomes []OutcomeRef
}

// OutcomeRef is one outcome's id/label pair sent to the oracle.
type OutcomeRef struct {
	Key   string
	Label string
}

// PostAuthor is the author metadata sent alongside each post.
type PostAuthor struct {
	Verified  *bool   `json:"verified,omitempty"`
	Followers *int64  `json:"followers,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// PostInitialMetrics are the engagement counters at ingest time, sent
// alongside each post so the oracle can factor virality into its
// judgments if it chooses to.
type PostInitialMetrics struct {
	Likes   *int64 `json:"likes,omitempty"`
	Reposts *int64 `json:"reposts,omitempty"`
	Replies *int64 `json:"replies,omitempty"`
	Quotes  *int64 `json:"quotes,omitempty"`
}

// RequestPost is one post in a score_batch request.
type RequestPost struct {
	PostID          string
	CreatedAtMs     int64
	Text            string
	Author          PostAuthor
	InitialMetrics  *PostInitialMetrics
}

// Request is the full score_batch request body.
type Request struct {
	RequestID string
	Market    MarketContext
	Posts     []RequestPost
}

// ResultRow is one post's oracle judgment, expanded per-outcome by the
// Scoring Dispatcher into one domain.ScoredPost row per outcome.
type ResultRow struct {
	PostID        string
	PerOutcome    map[string]domain.OutcomeScores
	Flags         domain.PostFlags
	DisplayLabels domain.DisplayLabels
}

// Response is the full score_batch response body.
type Response struct {
	Results []ResultRow
}

// Oracle is the abstract scoring-oracle interface.
type Oracle interface {
	ScoreBatch(ctx context.Context, req Request) (Response, error)
}
