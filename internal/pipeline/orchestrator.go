package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/evidence"
	"github.com/evidengine/core/internal/metrics"
	"github.com/evidengine/core/internal/store"
)

// RefreshStatus is the terminal status of one refresh() call (§7).
type RefreshStatus string

const (
	RefreshOK          RefreshStatus = "ok"
	RefreshNoop        RefreshStatus = "noop"
	RefreshRateLimited RefreshStatus = "rate_limited"
	RefreshError       RefreshStatus = "error"
)

// Pipeline stage names, shared between stage-error metrics/logging and the
// OnStage progress hook so both sides agree on a single vocabulary.
const (
	StageIngest   = "ingest"
	StageScore    = "score"
	StageCompute  = "compute"
	StageSnapshot = "snapshot"
)

// RefreshResult is the shape returned by refresh() and one element of
// refresh_all()'s per-market results (§7).
type RefreshResult struct {
	Status         RefreshStatus      `json:"status"`
	MarketID       string             `json:"market_id,omitempty"`
	TweetsFetched  int                `json:"tweets_fetched"`
	TweetsIngested int                `json:"tweets_ingested"`
	PostsScored    int                `json:"posts_scored"`
	Probabilities  map[string]float64 `json:"probabilities,omitempty"`
	DurationMS     int64              `json:"duration_ms"`
	Errors         []string           `json:"errors"`
}

// Orchestrator runs refresh/refresh_all over the ingest -> score ->
// compute -> snapshot pipeline (§4.G). Each stage's error is recorded and
// does not abort later stages, except that compute/snapshot need the
// market's outcome set to proceed.
type Orchestrator struct {
	Ingest      *IngestionDispatcher
	Score       *ScoringDispatcher
	Markets     store.MarketRepo
	States      store.MarketStateRepo
	Snaps       store.SnapshotRepo
	RawPosts    store.RawPostRepo
	ScoredPosts store.ScoredPostRepo

	MinRefreshInterval time.Duration
	InterMarketDelay   time.Duration

	Metrics *metrics.Registry
	Log     zerolog.Logger

	// OnStage, when set, is invoked as each pipeline stage for marketID
	// begins. It exists for interactive progress reporting (the CLI's
	// --pretty mode drives a step logger off of it) and is never required
	// for correctness; nil is a valid value and skips reporting entirely.
	OnStage func(marketID, stage string)

	mu          sync.Mutex
	marketLocks map[string]*sync.Mutex
}

func (o *Orchestrator) reportStage(marketID, stage string) {
	if o.OnStage != nil {
		o.OnStage(marketID, stage)
	}
}

// lockMarket returns an unlock func holding the single logical owner for
// marketID for the duration of one refresh, so a process never runs two
// ticks of the same market concurrently even if callers invoke Refresh from
// multiple goroutines. Cross-process ownership is the deployer's
// responsibility.
func (o *Orchestrator) lockMarket(marketID string) func() {
	o.mu.Lock()
	if o.marketLocks == nil {
		o.marketLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := o.marketLocks[marketID]
	if !ok {
		lock = &sync.Mutex{}
		o.marketLocks[marketID] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Refresh runs one refresh cycle for marketID (§4.G).
func (o *Orchestrator) Refresh(ctx context.Context, marketID string) RefreshResult {
	unlock := o.lockMarket(marketID)
	defer unlock()

	start := time.Now()
	result := RefreshResult{MarketID: marketID}

	market, err := o.Markets.GetMarket(ctx, marketID)
	if err != nil {
		result.Status = RefreshError
		result.Errors = append(result.Errors, err.Error())
		o.finish(&result, start)
		return result
	}
	if !market.Active() {
		result.Status = RefreshNoop
		o.finish(&result, start)
		return result
	}

	if state, ok, err := o.States.GetMarketState(ctx, marketID); err == nil && ok {
		withinInterval := o.MinRefreshInterval > 0 && time.Since(state.UpdatedAt) < o.MinRefreshInterval
		if withinInterval && state.AcceptedPostCount > 0 {
			result.Status = RefreshRateLimited
			o.finish(&result, start)
			return result
		}
	}

	o.reportStage(marketID, StageIngest)
	rateLimited := false
	ingestResult, err := o.Ingest.IngestForMarket(ctx, marketID)
	if err != nil {
		rateLimited = apperr.KindOf(err) == apperr.RateLimited
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageIngest, err)
	} else {
		result.TweetsFetched = ingestResult.Fetched
		result.TweetsIngested = ingestResult.Inserted
		if o.Metrics != nil {
			o.Metrics.PostsIngested.WithLabelValues(marketID).Add(float64(ingestResult.Inserted))
		}
	}

	o.reportStage(marketID, StageScore)
	scored, err := o.Score.ScoreUnscored(ctx, marketID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageScore, err)
	} else {
		result.PostsScored = scored
		if o.Metrics != nil {
			o.Metrics.PostsScored.WithLabelValues(marketID).Add(float64(scored))
		}
	}

	o.reportStage(marketID, StageCompute)
	outcomes, err := o.Markets.OutcomesByMarket(ctx, marketID)
	if err != nil {
		result.Status = RefreshError
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageCompute, err)
		o.finish(&result, start)
		return result
	}
	if len(outcomes) == 0 {
		result.Status = RefreshNoop
		o.finish(&result, start)
		return result
	}

	probabilities, acceptedCount, err := o.computeProbabilities(ctx, marketID, outcomes)
	if err != nil {
		result.Status = RefreshError
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageCompute, err)
		o.finish(&result, start)
		return result
	}
	result.Probabilities = probabilities

	o.reportStage(marketID, StageSnapshot)
	now := time.Now().UTC()
	state := domain.MarketState{
		MarketID:          marketID,
		Probabilities:     probabilities,
		UpdatedAt:         now,
		AcceptedPostCount: acceptedCount,
	}
	if err := o.States.UpsertMarketState(ctx, state); err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageSnapshot, err)
	}

	snapshot := domain.ProbabilitySnapshot{MarketID: marketID, Timestamp: now, Probabilities: probabilities}
	if err := o.Snaps.AppendSnapshot(ctx, snapshot); err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageSnapshot, err)
	}

	if err := o.Markets.SetOutcomeProbabilities(ctx, marketID, probabilities); err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.recordStageError(StageCompute, err)
	}

	if total, err := o.RawPosts.CountByMarket(ctx, marketID); err == nil {
		_ = o.Markets.SetTotalPostsProcessed(ctx, marketID, total)
	}

	if o.Metrics != nil {
		o.Metrics.ProbabilityGap.WithLabelValues(marketID).Set(leaderProbability(probabilities))
	}

	if len(result.Errors) > 0 {
		result.Status = RefreshError
	} else {
		result.Status = RefreshOK
	}
	if rateLimited {
		result.Status = RefreshRateLimited
	}

	o.finish(&result, start)
	return result
}

// computeProbabilities loads the current market state as priors, pulls
// every scored post within the engine's recency window, flattens it into
// evidence.PostInput rows, and runs the evidence-softmax-v1 algorithm.
func (o *Orchestrator) computeProbabilities(ctx context.Context, marketID string, outcomes []domain.Outcome) (map[string]float64, int, error) {
	prev := make(map[string]float64)
	if state, ok, err := o.States.GetMarketState(ctx, marketID); err == nil && ok {
		prev = state.Probabilities
	}

	window := store.TimeRange{From: time.Now().Add(-72 * time.Hour), To: time.Now()}
	posts, err := o.RawPosts.RecentByMarket(ctx, marketID, window)
	if err != nil {
		return nil, 0, apperr.NewStoreError("compute.recent_by_market", err)
	}

	rawPostIDs := make([]int64, 0, len(posts))
	for _, p := range posts {
		rawPostIDs = append(rawPostIDs, p.ID)
	}
	scoredRows, err := o.ScoredPosts.ByRawPostIDs(ctx, marketID, rawPostIDs)
	if err != nil {
		return nil, 0, apperr.NewStoreError("compute.by_raw_post_ids", err)
	}

	perOutcomeByPost := make(map[int64]map[string]domain.OutcomeScores)
	for _, row := range scoredRows {
		m, ok := perOutcomeByPost[row.RawPostID]
		if !ok {
			m = make(map[string]domain.OutcomeScores)
			perOutcomeByPost[row.RawPostID] = m
		}
		m[row.OutcomeKey] = row.Scores
	}

	outcomeInputs := make([]evidence.OutcomeInput, 0, len(outcomes))
	for _, o := range outcomes {
		outcomeInputs = append(outcomeInputs, evidence.OutcomeInput{OutcomeKey: o.OutcomeKey, PriorProbability: o.PriorProbability})
	}

	postInputs := make([]evidence.PostInput, 0, len(posts))
	for _, p := range posts {
		perOutcome, hasScores := perOutcomeByPost[p.ID]
		if !hasScores {
			continue
		}
		postInputs = append(postInputs, evidence.PostInput{
			AuthorID:        p.AuthorID,
			PostCreatedAtMs: p.PostCreatedAt.UnixMilli(),
			AuthorFollowers: derefInt64(p.AuthorFollowers),
			AuthorVerified:  derefBool(p.AuthorVerified),
			Likes:           derefInt64(p.Likes),
			Reposts:         derefInt64(p.Reposts),
			Replies:         derefInt64(p.Replies),
			Quotes:          derefInt64(p.Quotes),
			CashtagCount:    p.Features.CashtagCount,
			URLCount:        p.Features.URLCount,
			CapsRatio:       p.Features.CapsRatio,
			PerOutcome:      perOutcome,
		})
	}

	nowMs := time.Now().UnixMilli()
	result := evidence.Compute(nowMs, outcomeInputs, prev, postInputs)
	return result.Probabilities, result.Diagnostics.AcceptedPosts, nil
}

// RefreshAll iterates every active market sequentially, spacing calls by
// InterMarketDelay, and stopping early on a rate-limited market so the
// caller's next tick can resume from a cooled-down state (§4.G/§5).
func (o *Orchestrator) RefreshAll(ctx context.Context) []RefreshResult {
	markets, err := o.Markets.ActiveMarkets(ctx)
	if err != nil {
		return []RefreshResult{{Status: RefreshError, Errors: []string{err.Error()}}}
	}

	results := make([]RefreshResult, 0, len(markets))
	for i, m := range markets {
		result := o.Refresh(ctx, m.MarketID)
		results = append(results, result)

		if result.Status == RefreshRateLimited {
			o.Log.Warn().Str("market_id", m.MarketID).Msg("rate limited, stopping refresh_all early")
			break
		}
		if i < len(markets)-1 && o.InterMarketDelay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(o.InterMarketDelay):
			}
		}
	}
	return results
}

func (o *Orchestrator) recordStageError(stage string, err error) {
	o.Log.Warn().Err(err).Str("stage", stage).Msg("pipeline stage error")
	if o.Metrics != nil {
		o.Metrics.StageErrors.WithLabelValues(stage, apperr.KindOf(err).String()).Inc()
	}
}

func (o *Orchestrator) finish(result *RefreshResult, start time.Time) {
	result.DurationMS = time.Since(start).Milliseconds()
	if o.Metrics != nil {
		o.Metrics.RefreshTotal.WithLabelValues(string(result.Status)).Inc()
	}
	o.Log.Info().
		Str("market_id", result.MarketID).
		Str("status", string(result.Status)).
		Int("tweets_fetched", result.TweetsFetched).
		Int("tweets_ingested", result.TweetsIngested).
		Int("posts_scored", result.PostsScored).
		Int64("duration_ms", result.DurationMS).
		Msg("refresh complete")
}

func leaderProbability(probabilities map[string]float64) float64 {
	var max float64
	for _, p := range probabilities {
		if p > max {
			max = p
		}
	}
	return max
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefBool(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}
