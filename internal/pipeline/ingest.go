// Package pipeline implements the Ingestion Dispatcher, Scoring
// Dispatcher, Rule Synchronizer, and Pipeline Orchestrator (§4.D-§4.G):
// the control loop around the pure Evidence Engine.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/features"
	"github.com/evidengine/core/internal/postsource"
	"github.com/evidengine/core/internal/store"
)

const defaultIngestBatch = 20

// IngestionDispatcher pulls candidate posts from a post source,
// deduplicates and enriches them with extracted features, and upserts
// them into the Score Store (§4.E).
type IngestionDispatcher struct {
	Source   postsource.Source
	Markets  store.MarketRepo
	RawPosts store.RawPostRepo
	Batch    int
	Log      zerolog.Logger
}

// IngestResult summarizes one ingest_for_market call. Inserted counts the
// posts whose upsert returned without error; a post the store ignored as a
// duplicate of an existing (external_post_id, market_id) row is counted
// too, so Inserted is not the number of new rows.
type IngestResult struct {
	Fetched  int
	Inserted int
}

// IngestForMarket runs one ingest_for_market cycle for marketID (§4.E).
// It performs at most one post-source call, per the "one outbound rate
// hint per market per tick" requirement in §4.E/§5; the caller is
// responsible for spacing calls across markets (inter_market_delay_ms).
func (d *IngestionDispatcher) IngestForMarket(ctx context.Context, marketID string) (IngestResult, error) {
	market, err := d.Markets.GetMarket(ctx, marketID)
	if err != nil {
		return IngestResult{}, apperr.NewNotFound("ingest.get_market", err)
	}
	if len(market.FilterTemplates) == 0 {
		return IngestResult{}, nil
	}

	query := buildQuery(market.FilterTemplates)

	sinceID, hasWatermark, err := d.RawPosts.NewestExternalID(ctx, marketID)
	if err != nil {
		return IngestResult{}, apperr.NewStoreError("ingest.watermark", err)
	}
	if !hasWatermark {
		sinceID = ""
	}

	batch := d.Batch
	if batch <= 0 {
		batch = defaultIngestBatch
	}

	result, err := d.Source.SearchRecent(ctx, query, batch, sinceID)
	if err != nil {
		var rl *postsource.RateLimitError
		if errors.As(err, &rl) {
			return IngestResult{}, apperr.NewRateLimited("ingest.search_recent", rl)
		}
		return IngestResult{}, apperr.NewUpstreamPostSource("ingest.search_recent", err)
	}

	inserted := 0
	now := time.Now().UTC()
	for _, post := range result.Posts {
		row := toRawPost(marketID, post, now)
		if _, err := d.RawPosts.UpsertRawPost(ctx, row); err != nil {
			return IngestResult{Fetched: len(result.Posts), Inserted: inserted}, apperr.NewStoreError("ingest.upsert_raw_post", err)
		}
		inserted++
	}

	d.Log.Info().
		Str("market_id", marketID).
		Int("fetched", len(result.Posts)).
		Int("inserted", inserted).
		Msg("ingest cycle complete")

	return IngestResult{Fetched: len(result.Posts), Inserted: inserted}, nil
}

// buildQuery joins filter templates with OR and appends the standard
// filters (§4.E). Exact post-source query syntax is source-defined; this
// matches the common keyword-search grammar of the reference sources in
// the example pack.
func buildQuery(templates []string) string {
	joined := strings.Join(templates, " OR ")
	return "(" + joined + ") -is:retweet"
}

func toRawPost(marketID string, post postsource.Post, ingestedAt time.Time) domain.RawPost {
	row := domain.RawPost{
		ExternalPostID: post.ExternalID,
		MarketID:       marketID,
		Text:           post.Text,
		AuthorID:       post.AuthorID,
		PostCreatedAt:  post.CreatedAt,
		IngestedAt:     ingestedAt,
		Features:       features.Extract(post.Text),
		IsActive:       true,
	}
	if post.Author.FollowersCount != 0 {
		followers := post.Author.FollowersCount
		row.AuthorFollowers = &followers
	}
	verified := post.Author.Verified
	row.AuthorVerified = &verified
	if post.Author.CreatedAt != nil {
		row.AuthorCreatedAt = post.Author.CreatedAt
	}
	if post.Metrics != nil {
		likes, reposts, replies, quotes := post.Metrics.Likes, post.Metrics.Reposts, post.Metrics.Replies, post.Metrics.Quotes
		row.Likes = &likes
		row.Reposts = &reposts
		row.Replies = &replies
		row.Quotes = &quotes
	}
	return row
}
