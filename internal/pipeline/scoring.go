package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/oracle"
	"github.com/evidengine/core/internal/store"
)

const defaultScoreBatch = 12

// ScoringDispatcher batches unscored raw posts, calls the scoring oracle,
// and persists per-outcome scored rows (§4.D).
type ScoringDispatcher struct {
	Oracle      oracle.Oracle
	Markets     store.MarketRepo
	RawPosts    store.RawPostRepo
	ScoredPosts store.ScoredPostRepo
	Batch       int
	Log         zerolog.Logger
}

// ScoreUnscored runs one score_unscored cycle for marketID, returning the
// number of posts scored. A missing outcome key in the oracle's response
// is implied as zero relevance/zero stance, never synthesized (§4.D/§9).
func (d *ScoringDispatcher) ScoreUnscored(ctx context.Context, marketID string) (int, error) {
	outcomes, err := d.Markets.OutcomesByMarket(ctx, marketID)
	if err != nil {
		return 0, apperr.NewStoreError("score.outcomes_by_market", err)
	}
	if len(outcomes) == 0 {
		return 0, nil
	}

	batch := d.Batch
	if batch <= 0 {
		batch = defaultScoreBatch
	}

	unscored, err := d.RawPosts.UnscoredByMarket(ctx, marketID, batch)
	if err != nil {
		return 0, apperr.NewStoreError("score.unscored_by_market", err)
	}
	if len(unscored) == 0 {
		return 0, nil
	}

	market, err := d.Markets.GetMarket(ctx, marketID)
	if err != nil {
		return 0, apperr.NewNotFound("score.get_market", err)
	}

	req := buildOracleRequest(market, outcomes, unscored)

	resp, err := d.Oracle.ScoreBatch(ctx, req)
	if err != nil {
		return 0, apperr.NewUpstreamOracle("score.score_batch", err)
	}

	rows, scoredCount, err := expandScoredRows(marketID, outcomes, unscored, resp)
	if err != nil {
		return 0, apperr.NewUpstreamOracle("score.expand_response", err)
	}

	if err := d.ScoredPosts.UpsertScored(ctx, rows); err != nil {
		return 0, apperr.NewStoreError("score.upsert_scored", err)
	}

	d.Log.Info().
		Str("market_id", marketID).
		Int("posts_scored", scoredCount).
		Msg("scoring cycle complete")

	return scoredCount, nil
}

func buildOracleRequest(market domain.Market, outcomes []domain.Outcome, posts []domain.RawPost) oracle.Request {
	outcomeRefs := make([]oracle.OutcomeRef, 0, len(outcomes))
	for _, o := range outcomes {
		outcomeRefs = append(outcomeRefs, oracle.OutcomeRef{Key: o.OutcomeKey, Label: o.Label})
	}

	reqPosts := make([]oracle.RequestPost, 0, len(posts))
	for _, p := range posts {
		rp := oracle.RequestPost{
			PostID:      fmt.Sprintf("%d", p.ID),
			CreatedAtMs: p.PostCreatedAt.UnixMilli(),
			Text:        p.Text,
			Author: oracle.PostAuthor{
				Verified:  p.AuthorVerified,
				Followers: p.AuthorFollowers,
			},
		}
		if p.Likes != nil || p.Reposts != nil || p.Replies != nil || p.Quotes != nil {
			rp.InitialMetrics = &oracle.PostInitialMetrics{
				Likes:   p.Likes,
				Reposts: p.Reposts,
				Replies: p.Replies,
				Quotes:  p.Quotes,
			}
		}
		reqPosts = append(reqPosts, rp)
	}

	return oracle.Request{
		Market: oracle.MarketContext{
			MarketID: market.MarketID,
			Question: market.Question,
			Outcomes: outcomeRefs,
		},
		Posts: reqPosts,
	}
}

// expandScoredRows maps oracle.Response rows, keyed by post_id string, back
// onto the original domain.RawPost ids and expands each into one
// domain.ScoredPost row per outcome (§4.D). A post present in the request
// but absent from the response is simply not scored this cycle; it
// remains eligible for the next score_unscored call. The returned count is
// the number of posts actually found in the response, not the batch size
// requested.
func expandScoredRows(marketID string, outcomes []domain.Outcome, posts []domain.RawPost, resp oracle.Response) ([]domain.ScoredPost, int, error) {
	byPostID := make(map[string]oracle.ResultRow, len(resp.Results))
	for _, r := range resp.Results {
		byPostID[r.PostID] = r
	}

	var rows []domain.ScoredPost
	scoredCount := 0
	for _, p := range posts {
		result, ok := byPostID[fmt.Sprintf("%d", p.ID)]
		if !ok {
			continue
		}
		scoredCount++
		for _, o := range outcomes {
			scores, present := result.PerOutcome[o.OutcomeKey]
			if !present {
				scores = domain.OutcomeScores{}
			}
			rows = append(rows, domain.ScoredPost{
				RawPostID:     p.ID,
				MarketID:      marketID,
				OutcomeKey:    o.OutcomeKey,
				Scores:        scores,
				Flags:         result.Flags,
				DisplayLabels: result.DisplayLabels,
			})
		}
	}
	return rows, scoredCount, nil
}
