package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evidengine/core/internal/config"
	"github.com/evidengine/core/internal/guard"
	applog "github.com/evidengine/core/internal/log"
	"github.com/evidengine/core/internal/metrics"
	"github.com/evidengine/core/internal/oracle"
	"github.com/evidengine/core/internal/pipeline"
	"github.com/evidengine/core/internal/postsource"
	"github.com/evidengine/core/internal/store"
	"github.com/evidengine/core/internal/store/postgres"
)

// app bundles every long-lived dependency a subcommand needs, built once
// from the loaded config.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	store   *store.Store
	metrics *metrics.Registry

	orchestrator *pipeline.Orchestrator
	rulesync     *pipeline.RuleSynchronizer

	progressMu sync.Mutex
	progress   map[string]*applog.StepLogger
}

// onStage drives a per-market step logger off the orchestrator's OnStage
// hook, printing a live spinner/progress line for an interactive refresh.
// It is only wired when the CLI is running in --pretty mode.
func (a *app) onStage(marketID, stage string) {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()

	sl, ok := a.progress[marketID]
	if !ok {
		sl = applog.NewRefreshStepLogger(marketID)
		a.progress[marketID] = sl
	}
	sl.StartStep(stage)
}

// finishProgress closes every step logger opened since the last call: all
// of them with Fail(reason) when reason is non-empty, otherwise all with
// Finish(). reason is one string for the whole batch, so in a multi-market
// run every market's closing line reports failure if any market failed.
// It is a no-op when --pretty wasn't set, since no loggers were ever
// opened.
func (a *app) finishProgress(reason string) {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()

	for _, sl := range a.progress {
		if reason != "" {
			sl.Fail(reason)
		} else {
			sl.Finish()
		}
	}
	a.progress = make(map[string]*applog.StepLogger)
}

func newApp(ctx context.Context, cfgPath string, pretty bool) (*app, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, func() {}, err
	}

	logger := applog.Bootstrap(cfg.LogLevel, pretty)

	db, err := postgres.Open(ctx, cfg.DatabaseURL, 10, 5)
	if err != nil {
		return nil, func() {}, err
	}
	closeFn := func() { db.Close() }

	st := postgres.NewStore(db, 10*time.Second)

	limiter := guard.NewLimiter()
	breaker := guard.NewBreakerManager()

	source := postsource.NewClient(postsource.Config{
		BaseURL:        cfg.PostSourceURL,
		Token:          cfg.PostSourceToken,
		RateLimitRPS:   cfg.PostSourceRateLimitRPS,
		RateLimitBurst: cfg.PostSourceRateLimitBurst,
	}, limiter, breaker)

	scoringOracle := oracle.NewClient(oracle.Config{
		Endpoint:       cfg.OracleEndpoint,
		APIKey:         cfg.OracleAPIKey,
		ModelName:      cfg.OracleModelName,
		RateLimitRPS:   cfg.OracleRateLimitRPS,
		RateLimitBurst: cfg.OracleRateLimitBurst,
	}, limiter, breaker)

	registry := metrics.NewRegistry()

	ingest := &pipeline.IngestionDispatcher{
		Source:   source,
		Markets:  st.Markets,
		RawPosts: st.RawPosts,
		Batch:    cfg.IngestBatch,
		Log:      logger,
	}
	scoring := &pipeline.ScoringDispatcher{
		Oracle:      scoringOracle,
		Markets:     st.Markets,
		RawPosts:    st.RawPosts,
		ScoredPosts: st.ScoredPosts,
		Batch:       cfg.ScoreBatch,
		Log:         logger,
	}
	orch := &pipeline.Orchestrator{
		Ingest:             ingest,
		Score:              scoring,
		Markets:            st.Markets,
		States:             st.MarketStates,
		Snaps:              st.Snapshots,
		RawPosts:           st.RawPosts,
		ScoredPosts:        st.ScoredPosts,
		MinRefreshInterval: time.Duration(cfg.MinRefreshIntervalMS) * time.Millisecond,
		InterMarketDelay:   time.Duration(cfg.InterMarketDelayMS) * time.Millisecond,
		Metrics:            registry,
		Log:                logger,
	}
	sync := &pipeline.RuleSynchronizer{
		Source:  source,
		Markets: st.Markets,
		Rules:   st.FilterRules,
		Log:     logger,
	}

	a := &app{
		cfg:          cfg,
		log:          logger,
		store:        st,
		metrics:      registry,
		orchestrator: orch,
		rulesync:     sync,
		progress:     make(map[string]*applog.StepLogger),
	}
	if pretty {
		orch.OnStage = a.onStage
	}

	return a, closeFn, nil
}
