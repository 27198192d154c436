package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/store"
)

type filterRuleRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFilterRuleRepo creates a PostgreSQL-backed store.FilterRuleRepo.
func NewFilterRuleRepo(db *sqlx.DB, timeout time.Duration) store.FilterRuleRepo {
	return &filterRuleRepo{db: db, timeout: timeout}
}

func (r *filterRuleRepo) ByMarket(ctx context.Context, marketID string) ([]domain.FilterRule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT market_id, external_rule_id, rule_value, rule_tag
		FROM filter_rules WHERE market_id = $1`

	var rules []domain.FilterRule
	if err := r.db.SelectContext(ctx, &rules, query, marketID); err != nil {
		return nil, fmt.Errorf("list filter rules by market: %w", err)
	}
	return rules, nil
}

func (r *filterRuleRepo) All(ctx context.Context) ([]domain.FilterRule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `SELECT market_id, external_rule_id, rule_value, rule_tag FROM filter_rules`

	var rules []domain.FilterRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list all filter rules: %w", err)
	}
	return rules, nil
}

func (r *filterRuleRepo) Upsert(ctx context.Context, rule domain.FilterRule) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO filter_rules (market_id, external_rule_id, rule_value, rule_tag)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, external_rule_id) DO UPDATE SET
			rule_value = EXCLUDED.rule_value,
			rule_tag = EXCLUDED.rule_tag`

	if _, err := r.db.ExecContext(ctx, query, rule.MarketID, rule.ExternalRuleID, rule.RuleValue, rule.RuleTag); err != nil {
		return fmt.Errorf("upsert filter rule: %w", err)
	}
	return nil
}

func (r *filterRuleRepo) Delete(ctx context.Context, marketID, externalRuleID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM filter_rules WHERE market_id = $1 AND external_rule_id = $2`
	if _, err := r.db.ExecContext(ctx, query, marketID, externalRuleID); err != nil {
		return fmt.Errorf("delete filter rule: %w", err)
	}
	return nil
}
