package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/store"
)

type snapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo creates a PostgreSQL-backed store.SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) store.SnapshotRepo {
	return &snapshotRepo{db: db, timeout: timeout}
}

// AppendSnapshot inserts one append-only history row. There is no
// conflict target: (market_id, timestamp) is expected unique by
// construction since the orchestrator stamps timestamps monotonically
// within a single worker.
func (r *snapshotRepo) AppendSnapshot(ctx context.Context, snapshot domain.ProbabilitySnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	probsJSON, err := json.Marshal(snapshot.Probabilities)
	if err != nil {
		return fmt.Errorf("marshal snapshot probabilities: %w", err)
	}

	const query = `
		INSERT INTO probability_snapshots (market_id, ts, probabilities)
		VALUES ($1, $2, $3)`

	if _, err := r.db.ExecContext(ctx, query, snapshot.MarketID, snapshot.Timestamp, probsJSON); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}
