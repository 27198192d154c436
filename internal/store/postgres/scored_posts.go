package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/store"
)

type scoredPostRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoredPostRepo creates a PostgreSQL-backed store.ScoredPostRepo.
func NewScoredPostRepo(db *sqlx.DB, timeout time.Duration) store.ScoredPostRepo {
	return &scoredPostRepo{db: db, timeout: timeout}
}

// UpsertScored replaces rows on a conflicting (raw_post_id, market_id,
// outcome_key) key, batched in a single transaction per the
// premove_artifacts batch-upsert idiom this module is grounded on.
func (r *scoredPostRepo) UpsertScored(ctx context.Context, rows []domain.ScoredPost) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rows)/50+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scored post tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO scored_posts (
			raw_post_id, market_id, outcome_key,
			relevance, stance, strength, credibility, confidence,
			is_sarcasm, is_question, is_quote, is_rumor_style,
			summary, reason, credibility_label, stance_label, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (raw_post_id, market_id, outcome_key) DO UPDATE SET
			relevance = EXCLUDED.relevance,
			stance = EXCLUDED.stance,
			strength = EXCLUDED.strength,
			credibility = EXCLUDED.credibility,
			confidence = EXCLUDED.confidence,
			is_sarcasm = EXCLUDED.is_sarcasm,
			is_question = EXCLUDED.is_question,
			is_quote = EXCLUDED.is_quote,
			is_rumor_style = EXCLUDED.is_rumor_style,
			summary = EXCLUDED.summary,
			reason = EXCLUDED.reason,
			credibility_label = EXCLUDED.credibility_label,
			stance_label = EXCLUDED.stance_label,
			created_at = EXCLUDED.created_at`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare scored post upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			row.RawPostID, row.MarketID, row.OutcomeKey,
			row.Scores.Relevance, row.Scores.Stance, row.Scores.Strength, row.Scores.Credibility, row.Scores.Confidence,
			row.Flags.IsSarcasm, row.Flags.IsQuestion, row.Flags.IsQuote, row.Flags.IsRumorStyle,
			row.DisplayLabels.Summary, row.DisplayLabels.Reason, row.DisplayLabels.CredibilityLabel, row.DisplayLabels.StanceLabel,
			createdAt,
		); err != nil {
			if pqErr, ok := err.(*pq.Error); ok {
				return fmt.Errorf("upsert scored post (%s): %w", pqErr.Code, err)
			}
			return fmt.Errorf("upsert scored post: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scored post tx: %w", err)
	}
	return nil
}

func (r *scoredPostRepo) ByRawPostIDs(ctx context.Context, marketID string, rawPostIDs []int64) ([]domain.ScoredPost, error) {
	if len(rawPostIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT raw_post_id, market_id, outcome_key,
			relevance, stance, strength, credibility, confidence,
			is_sarcasm, is_question, is_quote, is_rumor_style,
			summary, reason, credibility_label, stance_label, created_at
		FROM scored_posts
		WHERE market_id = $1 AND raw_post_id = ANY($2)`

	rows, err := r.db.QueryxContext(ctx, query, marketID, pq.Array(rawPostIDs))
	if err != nil {
		return nil, fmt.Errorf("query scored posts: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredPost
	for rows.Next() {
		var row domain.ScoredPost
		if err := rows.Scan(
			&row.RawPostID, &row.MarketID, &row.OutcomeKey,
			&row.Scores.Relevance, &row.Scores.Stance, &row.Scores.Strength, &row.Scores.Credibility, &row.Scores.Confidence,
			&row.Flags.IsSarcasm, &row.Flags.IsQuestion, &row.Flags.IsQuote, &row.Flags.IsRumorStyle,
			&row.DisplayLabels.Summary, &row.DisplayLabels.Reason, &row.DisplayLabels.CredibilityLabel, &row.DisplayLabels.StanceLabel,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scored post: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
