package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/store"
)

type marketStateRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMarketStateRepo creates a PostgreSQL-backed store.MarketStateRepo.
func NewMarketStateRepo(db *sqlx.DB, timeout time.Duration) store.MarketStateRepo {
	return &marketStateRepo{db: db, timeout: timeout}
}

func (r *marketStateRepo) UpsertMarketState(ctx context.Context, state domain.MarketState) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	probsJSON, err := json.Marshal(state.Probabilities)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	const query = `
		INSERT INTO market_state (market_id, probabilities, updated_at, accepted_post_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id) DO UPDATE SET
			probabilities = EXCLUDED.probabilities,
			updated_at = EXCLUDED.updated_at,
			accepted_post_count = EXCLUDED.accepted_post_count`

	if _, err := r.db.ExecContext(ctx, query, state.MarketID, probsJSON, state.UpdatedAt, state.AcceptedPostCount); err != nil {
		return fmt.Errorf("upsert market state: %w", err)
	}
	return nil
}

func (r *marketStateRepo) GetMarketState(ctx context.Context, marketID string) (domain.MarketState, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT market_id, probabilities, updated_at, accepted_post_count
		FROM market_state WHERE market_id = $1`

	var marketIDOut string
	var probsJSON []byte
	var updatedAt time.Time
	var acceptedPostCount int

	row := r.db.QueryRowxContext(ctx, query, marketID)
	if err := row.Scan(&marketIDOut, &probsJSON, &updatedAt, &acceptedPostCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MarketState{}, false, nil
		}
		return domain.MarketState{}, false, fmt.Errorf("get market state: %w", err)
	}

	var probabilities map[string]float64
	if len(probsJSON) > 0 {
		if err := json.Unmarshal(probsJSON, &probabilities); err != nil {
			return domain.MarketState{}, false, fmt.Errorf("unmarshal probabilities: %w", err)
		}
	}

	return domain.MarketState{
		MarketID:          marketIDOut,
		Probabilities:     probabilities,
		UpdatedAt:         updatedAt,
		AcceptedPostCount: acceptedPostCount,
	}, true, nil
}
