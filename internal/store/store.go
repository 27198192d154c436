// Package store defines the Score Store contract: idempotent persistence
// for raw posts, scored posts, market state, snapshots, and filter rules.
package store

import (
	"context"
	"time"

	"github.com/evidengine/core/internal/domain"
)

// TimeRange bounds a range fetch.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// RawPostRepo persists and fetches RawPost rows.
type RawPostRepo interface {
	// UpsertRawPost inserts row, ignoring on a conflicting
	// (external_post_id, market_id) key. Returns the row's stable id,
	// fetching the pre-existing id when the insert was ignored.
	UpsertRawPost(ctx context.Context, row domain.RawPost) (int64, error)

	// RecentByMarket returns raw posts for marketID with post_created_at
	// within window. The postgres implementation returns only active
	// posts, newest post_created_at first.
	RecentByMarket(ctx context.Context, marketID string, window TimeRange) ([]domain.RawPost, error)

	// UnscoredByMarket returns up to limit raw posts for marketID that
	// have no row in scored posts for that market, most recently
	// ingested first.
	UnscoredByMarket(ctx context.Context, marketID string, limit int) ([]domain.RawPost, error)

	// NewestExternalID returns the external_post_id of the stored post for
	// marketID with the newest post_created_at, used as the ingest
	// watermark. Returns
	// ("", false) when no posts exist yet.
	NewestExternalID(ctx context.Context, marketID string) (string, bool, error)

	// CountByMarket returns the total number of raw posts stored for
	// marketID, used to update market.total_posts_processed.
	CountByMarket(ctx context.Context, marketID string) (int64, error)
}

// ScoredPostRepo persists and fetches ScoredPost rows.
type ScoredPostRepo interface {
	// UpsertScored replaces rows on a conflicting
	// (raw_post_id, market_id, outcome_key) key.
	UpsertScored(ctx context.Context, rows []domain.ScoredPost) error

	// ByRawPostIDs returns all scored rows for the given raw post ids
	// within marketID.
	ByRawPostIDs(ctx context.Context, marketID string, rawPostIDs []int64) ([]domain.ScoredPost, error)
}

// MarketRepo reads market and outcome metadata. Market lifecycle writes
// (creation, status transitions) are owned by an external system; only
// total_posts_processed and outcome probabilities are written here.
type MarketRepo interface {
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
	ActiveMarkets(ctx context.Context) ([]domain.Market, error)
	OutcomesByMarket(ctx context.Context, marketID string) ([]domain.Outcome, error)
	SetTotalPostsProcessed(ctx context.Context, marketID string, total int64) error
	SetOutcomeProbabilities(ctx context.Context, marketID string, probabilities map[string]float64) error
}

// MarketStateRepo persists the current probability vector per market.
type MarketStateRepo interface {
	// UpsertMarketState replaces the row on a conflicting market_id key.
	UpsertMarketState(ctx context.Context, state domain.MarketState) error
	GetMarketState(ctx context.Context, marketID string) (domain.MarketState, bool, error)
}

// SnapshotRepo appends probability history.
type SnapshotRepo interface {
	AppendSnapshot(ctx context.Context, snapshot domain.ProbabilitySnapshot) error
}

// FilterRuleRepo tracks the local bookkeeping of issued external filter
// rules, keyed by (market_id, external_rule_id).
type FilterRuleRepo interface {
	ByMarket(ctx context.Context, marketID string) ([]domain.FilterRule, error)
	All(ctx context.Context) ([]domain.FilterRule, error)
	Upsert(ctx context.Context, rule domain.FilterRule) error
	Delete(ctx context.Context, marketID, externalRuleID string) error
}

// Store aggregates every repository the pipeline needs, mirroring the
// teacher's Repository aggregator.
type Store struct {
	RawPosts     RawPostRepo
	ScoredPosts  ScoredPostRepo
	Markets      MarketRepo
	MarketStates MarketStateRepo
	Snapshots    SnapshotRepo
	FilterRules  FilterRuleRepo
}

// HealthCheck reports connectivity for operational monitoring.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// HealthChecker is implemented by store backends that can report health.
type HealthChecker interface {
	Health(ctx context.Context) (HealthCheck, error)
}
