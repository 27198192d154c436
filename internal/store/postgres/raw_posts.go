package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/store"
)

type rawPostRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRawPostRepo creates a PostgreSQL-backed store.RawPostRepo.
func NewRawPostRepo(db *sqlx.DB, timeout time.Duration) store.RawPostRepo {
	return &rawPostRepo{db: db, timeout: timeout}
}

func (r *rawPostRepo) UpsertRawPost(ctx context.Context, row domain.RawPost) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	featuresJSON, err := json.Marshal(row.Features)
	if err != nil {
		return 0, fmt.Errorf("marshal features: %w", err)
	}

	const query = `
		INSERT INTO raw_posts (
			external_post_id, market_id, text, author_id, post_created_at, ingested_at,
			author_followers, author_verified, author_created_at,
			likes, reposts, replies, quotes, features, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,true)
		ON CONFLICT (external_post_id, market_id) DO NOTHING
		RETURNING id`

	var id int64
	err = r.db.QueryRowxContext(ctx, query,
		row.ExternalPostID, row.MarketID, row.Text, row.AuthorID, row.PostCreatedAt, row.IngestedAt,
		row.AuthorFollowers, row.AuthorVerified, row.AuthorCreatedAt,
		row.Likes, row.Reposts, row.Replies, row.Quotes, featuresJSON,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		const lookup = `SELECT id FROM raw_posts WHERE external_post_id = $1 AND market_id = $2`
		if lookupErr := r.db.GetContext(ctx, &id, lookup, row.ExternalPostID, row.MarketID); lookupErr != nil {
			return 0, fmt.Errorf("lookup existing raw post: %w", lookupErr)
		}
		return id, nil
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return 0, fmt.Errorf("insert raw post (%s): %w", pqErr.Code, err)
		}
		return 0, fmt.Errorf("insert raw post: %w", err)
	}
	return id, nil
}

func (r *rawPostRepo) RecentByMarket(ctx context.Context, marketID string, window store.TimeRange) ([]domain.RawPost, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT id, external_post_id, market_id, text, author_id, post_created_at, ingested_at,
			author_followers, author_verified, author_created_at,
			likes, reposts, replies, quotes, features, is_active
		FROM raw_posts
		WHERE market_id = $1 AND post_created_at >= $2 AND post_created_at <= $3 AND is_active
		ORDER BY post_created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, marketID, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("query recent raw posts: %w", err)
	}
	defer rows.Close()
	return scanRawPosts(rows)
}

func (r *rawPostRepo) UnscoredByMarket(ctx context.Context, marketID string, limit int) ([]domain.RawPost, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT p.id, p.external_post_id, p.market_id, p.text, p.author_id, p.post_created_at, p.ingested_at,
			p.author_followers, p.author_verified, p.author_created_at,
			p.likes, p.reposts, p.replies, p.quotes, p.features, p.is_active
		FROM raw_posts p
		WHERE p.market_id = $1 AND p.is_active
		  AND NOT EXISTS (
			SELECT 1 FROM scored_posts s WHERE s.raw_post_id = p.id AND s.market_id = p.market_id
		  )
		ORDER BY p.ingested_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unscored raw posts: %w", err)
	}
	defer rows.Close()
	return scanRawPosts(rows)
}

func (r *rawPostRepo) NewestExternalID(ctx context.Context, marketID string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT external_post_id FROM raw_posts
		WHERE market_id = $1
		ORDER BY post_created_at DESC, id DESC
		LIMIT 1`

	var externalID string
	err := r.db.GetContext(ctx, &externalID, query, marketID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query newest external id: %w", err)
	}
	return externalID, true, nil
}

func (r *rawPostRepo) CountByMarket(ctx context.Context, marketID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	const query = `SELECT COUNT(*) FROM raw_posts WHERE market_id = $1`
	if err := r.db.GetContext(ctx, &count, query, marketID); err != nil {
		return 0, fmt.Errorf("count raw posts: %w", err)
	}
	return count, nil
}

func scanRawPosts(rows *sqlx.Rows) ([]domain.RawPost, error) {
	var out []domain.RawPost
	for rows.Next() {
		var row domain.RawPost
		var featuresJSON []byte
		if err := rows.Scan(
			&row.ID, &row.ExternalPostID, &row.MarketID, &row.Text, &row.AuthorID, &row.PostCreatedAt, &row.IngestedAt,
			&row.AuthorFollowers, &row.AuthorVerified, &row.AuthorCreatedAt,
			&row.Likes, &row.Reposts, &row.Replies, &row.Quotes, &featuresJSON, &row.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan raw post: %w", err)
		}
		if len(featuresJSON) > 0 {
			if err := json.Unmarshal(featuresJSON, &row.Features); err != nil {
				return nil, fmt.Errorf("unmarshal features: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
