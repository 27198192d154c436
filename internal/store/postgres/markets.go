package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/store"
)

type marketRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMarketRepo creates a PostgreSQL-backed store.MarketRepo.
func NewMarketRepo(db *sqlx.DB, timeout time.Duration) store.MarketRepo {
	return &marketRepo{db: db, timeout: timeout}
}

func (r *marketRepo) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT market_id, question, normalized_question, status, total_posts_processed, created_at
		FROM markets WHERE market_id = $1`

	var m domain.Market
	err := r.db.GetContext(ctx, &m, query, marketID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("market %s: %w", marketID, sql.ErrNoRows)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("get market: %w", err)
	}

	templates, err := r.filterTemplates(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	m.FilterTemplates = templates
	return m, nil
}

func (r *marketRepo) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT market_id, question, normalized_question, status, total_posts_processed, created_at
		FROM markets WHERE status = $1 ORDER BY market_id`

	var markets []domain.Market
	if err := r.db.SelectContext(ctx, &markets, query, domain.StatusActive); err != nil {
		return nil, fmt.Errorf("list active markets: %w", err)
	}
	for i := range markets {
		templates, err := r.filterTemplates(ctx, markets[i].MarketID)
		if err != nil {
			return nil, err
		}
		markets[i].FilterTemplates = templates
	}
	return markets, nil
}

func (r *marketRepo) filterTemplates(ctx context.Context, marketID string) ([]string, error) {
	const query = `
		SELECT template FROM market_filter_templates
		WHERE market_id = $1 ORDER BY position`

	var templates []string
	if err := r.db.SelectContext(ctx, &templates, query, marketID); err != nil {
		return nil, fmt.Errorf("list filter templates: %w", err)
	}
	return templates, nil
}

func (r *marketRepo) OutcomesByMarket(ctx context.Context, marketID string) ([]domain.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT market_id, outcome_key, label, prior_probability, current_probability
		FROM outcomes WHERE market_id = $1 ORDER BY outcome_key`

	var outcomes []domain.Outcome
	if err := r.db.SelectContext(ctx, &outcomes, query, marketID); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return outcomes, nil
}

func (r *marketRepo) SetTotalPostsProcessed(ctx context.Context, marketID string, total int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `UPDATE markets SET total_posts_processed = $2 WHERE market_id = $1`
	if _, err := r.db.ExecContext(ctx, query, marketID, total); err != nil {
		return fmt.Errorf("set total posts processed: %w", err)
	}
	return nil
}

func (r *marketRepo) SetOutcomeProbabilities(ctx context.Context, marketID string, probabilities map[string]float64) error {
	if len(probabilities) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome probability tx: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE outcomes SET current_probability = $3 WHERE market_id = $1 AND outcome_key = $2`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare outcome probability update: %w", err)
	}
	defer stmt.Close()

	for outcomeKey, probability := range probabilities {
		if _, err := stmt.ExecContext(ctx, marketID, outcomeKey, probability); err != nil {
			return fmt.Errorf("update outcome probability: %w", err)
		}
	}
	return tx.Commit()
}
