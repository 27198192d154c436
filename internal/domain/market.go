// Package domain holds the entities shared across the ingestion, scoring,
// and evidence-computation stages of the pipeline.
package domain

import "time"

// MarketStatus is the lifecycle state of a Market. Only StatusActive
// markets are processed by the pipeline.
type MarketStatus string

const (
	StatusActive   MarketStatus = "active"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
)

// Market is a question with a fixed outcome set.
type Market struct {
	MarketID           string       `db:"market_id" json:"market_id"`
	Question           string       `db:"question" json:"question"`
	NormalizedQuestion string       `db:"normalized_question" json:"normalized_question"`
	Status             MarketStatus `db:"status" json:"status"`
	FilterTemplates    []string     `db:"-" json:"filter_templates"`
	TotalPostsProcessed int64       `db:"total_posts_processed" json:"total_posts_processed"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
}

// Active reports whether the market should be processed by the pipeline.
func (m Market) Active() bool { return m.Status == StatusActive }

// Outcome is a candidate answer within a Market.
type Outcome struct {
	MarketID           string   `db:"market_id" json:"market_id"`
	OutcomeKey         string   `db:"outcome_key" json:"outcome_key"`
	Label              string   `db:"label" json:"label"`
	PriorProbability   *float64 `db:"prior_probability" json:"prior_probability,omitempty"`
	CurrentProbability float64  `db:"current_probability" json:"current_probability"`
}

// PostMetrics carries the optional engagement counters attached to a post.
type PostMetrics struct {
	Likes   *int64 `db:"likes" json:"likes,omitempty"`
	Reposts *int64 `db:"reposts" json:"reposts,omitempty"`
	Replies *int64 `db:"replies" json:"replies,omitempty"`
	Quotes  *int64 `db:"quotes" json:"quotes,omitempty"`
}

// PostFeatures are the spam-signal features computed at ingest time by the
// feature extractor. They are immutable once written.
type PostFeatures struct {
	CashtagCount int     `db:"cashtag_count" json:"cashtag_count"`
	MentionCount int     `db:"mention_count" json:"mention_count"`
	URLCount     int     `db:"url_count" json:"url_count"`
	CapsRatio    float64 `db:"caps_ratio" json:"caps_ratio"`
	IsReply      bool    `db:"is_reply" json:"is_reply,omitempty"`
	IsQuote      bool    `db:"is_quote" json:"is_quote,omitempty"`
}

// RawPost is a post ingested for a specific market, unique on
// (ExternalPostID, MarketID).
type RawPost struct {
	ID              int64        `db:"id" json:"id"`
	ExternalPostID  string       `db:"external_post_id" json:"external_post_id"`
	MarketID        string       `db:"market_id" json:"market_id"`
	Text            string       `db:"text" json:"text"`
	AuthorID        string       `db:"author_id" json:"author_id"`
	PostCreatedAt   time.Time    `db:"post_created_at" json:"post_created_at"`
	IngestedAt      time.Time    `db:"ingested_at" json:"ingested_at"`
	AuthorFollowers *int64       `db:"author_followers" json:"author_followers,omitempty"`
	AuthorVerified  *bool        `db:"author_verified" json:"author_verified,omitempty"`
	AuthorCreatedAt *time.Time   `db:"author_created_at" json:"author_created_at,omitempty"`
	Likes           *int64       `db:"likes" json:"likes,omitempty"`
	Reposts         *int64       `db:"reposts" json:"reposts,omitempty"`
	Replies         *int64       `db:"replies" json:"replies,omitempty"`
	Quotes          *int64       `db:"quotes" json:"quotes,omitempty"`
	Features        PostFeatures `db:"features" json:"features"`
	IsActive        bool         `db:"is_active" json:"is_active"`
}

// CredibilityLabel mirrors the oracle's coarse credibility bucket.
type CredibilityLabel string

const (
	CredibilityHigh   CredibilityLabel = "High"
	CredibilityMedium CredibilityLabel = "Medium"
	CredibilityLow    CredibilityLabel = "Low"
)

// OutcomeScores are the oracle's per-outcome judgments for one post.
type OutcomeScores struct {
	Relevance  float64 `db:"relevance" json:"relevance"`
	Stance     float64 `db:"stance" json:"stance"`
	Strength   float64 `db:"strength" json:"strength"`
	Credibility float64 `db:"credibility" json:"credibility"`
	Confidence float64 `db:"confidence" json:"confidence"`
}

// PostFlags are oracle-derived, per-post flags replicated across a post's
// outcome rows.
type PostFlags struct {
	IsSarcasm    bool `db:"is_sarcasm" json:"is_sarcasm"`
	IsQuestion   bool `db:"is_question" json:"is_question"`
	IsQuote      bool `db:"is_quote" json:"is_quote"`
	IsRumorStyle bool `db:"is_rumor_style" json:"is_rumor_style"`
}

// DisplayLabels are oracle-derived human-facing summaries.
type DisplayLabels struct {
	Summary          string           `db:"summary" json:"summary"`
	Reason           string           `db:"reason" json:"reason"`
	CredibilityLabel CredibilityLabel `db:"credibility_label" json:"credibility_label"`
	StanceLabel      string           `db:"stance_label" json:"stance_label"`
}

// ScoredPost is the scoring of one RawPost against one Outcome, unique on
// (RawPostID, MarketID, OutcomeKey).
type ScoredPost struct {
	RawPostID     int64         `db:"raw_post_id" json:"raw_post_id"`
	MarketID      string        `db:"market_id" json:"market_id"`
	OutcomeKey    string        `db:"outcome_key" json:"outcome_key"`
	Scores        OutcomeScores `db:"scores" json:"scores"`
	Flags         PostFlags     `db:"flags" json:"flags"`
	DisplayLabels DisplayLabels `db:"display_labels" json:"display_labels"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// MarketState is the current probability vector for a market.
type MarketState struct {
	MarketID          string             `db:"market_id" json:"market_id"`
	Probabilities     map[string]float64 `db:"-" json:"probabilities"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
	AcceptedPostCount int                `db:"accepted_post_count" json:"accepted_post_count"`
}

// ProbabilitySnapshot is one append-only history point for a market.
type ProbabilitySnapshot struct {
	MarketID      string             `db:"market_id" json:"market_id"`
	Timestamp     time.Time          `db:"ts" json:"timestamp"`
	Probabilities map[string]float64 `db:"-" json:"probabilities"`
}

// FilterRule tracks the desired-vs-registered state of a single external
// post-source filter.
type FilterRule struct {
	MarketID       string `db:"market_id" json:"market_id"`
	ExternalRuleID string `db:"external_rule_id" json:"external_rule_id"`
	RuleValue      string `db:"rule_value" json:"rule_value"`
	RuleTag        string `db:"rule_tag" json:"rule_tag"`
}

// ScoredPostForEngine is the flattened view of a post the Evidence Engine
// consumes: one RawPost joined with its ScoredPost rows across all
// outcomes for a given market.
type ScoredPostForEngine struct {
	RawPostID       int64
	AuthorID        string
	PostCreatedAt   time.Time
	AuthorFollowers int64
	AuthorVerified  bool
	Likes           int64
	Reposts         int64
	Replies         int64
	Quotes          int64
	Features        PostFeatures
	PerOutcome      map[string]OutcomeScores
}
