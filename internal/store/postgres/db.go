// Package postgres implements the Score Store contracts of package store
// against PostgreSQL, using sqlx and lib/pq, in the idiom of the
// premove/trades/regime repositories this module is grounded on:
// conflict-on-natural-key upserts, context-scoped timeouts, typed
// natural-key errors.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"

	"github.com/evidengine/core/internal/store"
)

// Open opens a sqlx connection pool against dsn and verifies
// connectivity.
func Open(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStore wires every repository against a shared connection pool.
func NewStore(db *sqlx.DB, timeout time.Duration) *store.Store {
	return &store.Store{
		RawPosts:     NewRawPostRepo(db, timeout),
		ScoredPosts:  NewScoredPostRepo(db, timeout),
		Markets:      NewMarketRepo(db, timeout),
		MarketStates: NewMarketStateRepo(db, timeout),
		Snapshots:    NewSnapshotRepo(db, timeout),
		FilterRules:  NewFilterRuleRepo(db, timeout),
	}
}

// Health reports pool connectivity and timing, mirroring the teacher's
// HealthCheck shape.
func Health(ctx context.Context, db *sqlx.DB) (store.HealthCheck, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []string
	if err := db.PingContext(ctx); err != nil {
		errs = append(errs, err.Error())
	}

	stats := db.Stats()
	return store.HealthCheck{
		Healthy: len(errs) == 0,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"open": stats.OpenConnections,
			"idle": stats.Idle,
			"in_use": stats.InUse,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}, nil
}
