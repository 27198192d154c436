package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/postsource"
	"github.com/evidengine/core/internal/store"
)

type fakeMarketRepo struct {
	markets map[string]domain.Market
	active  []domain.Market
	outcomes map[string][]domain.Outcome
	probabilities map[string]map[string]float64
	totals  map[string]int64
}

func newFakeMarketRepo() *fakeMarketRepo {
	return &fakeMarketRepo{
		markets:       make(map[string]domain.Market),
		outcomes:      make(map[string][]domain.Outcome),
		probabilities: make(map[string]map[string]float64),
		totals:        make(map[string]int64),
	}
}

func (f *fakeMarketRepo) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, ok := f.markets[marketID]
	if !ok {
		return domain.Market{}, assert.AnError
	}
	return m, nil
}
func (f *fakeMarketRepo) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	return f.active, nil
}
func (f *fakeMarketRepo) OutcomesByMarket(ctx context.Context, marketID string) ([]domain.Outcome, error) {
	return f.outcomes[marketID], nil
}
func (f *fakeMarketRepo) SetTotalPostsProcessed(ctx context.Context, marketID string, total int64) error {
	f.totals[marketID] = total
	return nil
}
func (f *fakeMarketRepo) SetOutcomeProbabilities(ctx context.Context, marketID string, probabilities map[string]float64) error {
	f.probabilities[marketID] = probabilities
	return nil
}

type fakeRawPostRepo struct {
	byID     map[int64]domain.RawPost
	byMarket map[string][]domain.RawPost
	nextID   int64
	watermark map[string]string
}

func newFakeRawPostRepo() *fakeRawPostRepo {
	return &fakeRawPostRepo{
		byID:      make(map[int64]domain.RawPost),
		byMarket:  make(map[string][]domain.RawPost),
		watermark: make(map[string]string),
	}
}

func (f *fakeRawPostRepo) UpsertRawPost(ctx context.Context, row domain.RawPost) (int64, error) {
	for _, existing := range f.byMarket[row.MarketID] {
		if existing.ExternalPostID == row.ExternalPostID {
			return existing.ID, nil
		}
	}
	f.nextID++
	row.ID = f.nextID
	f.byID[row.ID] = row
	f.byMarket[row.MarketID] = append(f.byMarket[row.MarketID], row)
	f.watermark[row.MarketID] = row.ExternalPostID
	return row.ID, nil
}
func (f *fakeRawPostRepo) RecentByMarket(ctx context.Context, marketID string, window store.TimeRange) ([]domain.RawPost, error) {
	return f.byMarket[marketID], nil
}
func (f *fakeRawPostRepo) UnscoredByMarket(ctx context.Context, marketID string, limit int) ([]domain.RawPost, error) {
	posts := f.byMarket[marketID]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}
func (f *fakeRawPostRepo) NewestExternalID(ctx context.Context, marketID string) (string, bool, error) {
	id, ok := f.watermark[marketID]
	return id, ok, nil
}
func (f *fakeRawPostRepo) CountByMarket(ctx context.Context, marketID string) (int64, error) {
	return int64(len(f.byMarket[marketID])), nil
}

type fakeSource struct {
	result postsource.SearchResult
	err    error
	calls  int
}

func (f *fakeSource) GetRules(ctx context.Context) ([]postsource.Rule, error) { return nil, nil }
func (f *fakeSource) AddRules(ctx context.Context, rules []postsource.Rule) ([]postsource.Rule, error) {
	return nil, nil
}
func (f *fakeSource) DeleteRules(ctx context.Context, ids []string) error { return nil }
func (f *fakeSource) SearchRecent(ctx context.Context, query string, maxResults int, sinceID string) (postsource.SearchResult, error) {
	f.calls++
	return f.result, f.err
}

func TestIngestForMarket_NoTemplatesIsNoop(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1", Status: domain.StatusActive}
	source := &fakeSource{}
	d := &IngestionDispatcher{Source: source, Markets: markets, RawPosts: newFakeRawPostRepo(), Log: zerolog.Nop()}

	result, err := d.IngestForMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, IngestResult{}, result)
	assert.Equal(t, 0, source.calls)
}

func TestIngestForMarket_InsertsNewPosts(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1", Status: domain.StatusActive, FilterTemplates: []string{"foo"}}
	source := &fakeSource{result: postsource.SearchResult{
		Posts: []postsource.Post{
			{ExternalID: "p1", Text: "hello world", AuthorID: "a1", CreatedAt: time.Now()},
			{ExternalID: "p2", Text: "second post", AuthorID: "a2", CreatedAt: time.Now()},
		},
	}}
	rawPosts := newFakeRawPostRepo()
	d := &IngestionDispatcher{Source: source, Markets: markets, RawPosts: rawPosts, Log: zerolog.Nop()}

	result, err := d.IngestForMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Inserted)
	assert.Len(t, rawPosts.byMarket["m1"], 2)
}

func TestIngestForMarket_IsIdempotentOnRepeatExternalID(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1", Status: domain.StatusActive, FilterTemplates: []string{"foo"}}
	post := postsource.Post{ExternalID: "p1", Text: "hello world", AuthorID: "a1", CreatedAt: time.Now()}
	source := &fakeSource{result: postsource.SearchResult{Posts: []postsource.Post{post}}}
	rawPosts := newFakeRawPostRepo()
	d := &IngestionDispatcher{Source: source, Markets: markets, RawPosts: rawPosts, Log: zerolog.Nop()}

	_, err := d.IngestForMarket(context.Background(), "m1")
	require.NoError(t, err)
	_, err = d.IngestForMarket(context.Background(), "m1")
	require.NoError(t, err)

	assert.Len(t, rawPosts.byMarket["m1"], 1)
}

func TestIngestForMarket_RateLimitErrorIsTyped(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1", Status: domain.StatusActive, FilterTemplates: []string{"foo"}}
	source := &fakeSource{err: &postsource.RateLimitError{RetryAfter: time.Second}}
	d := &IngestionDispatcher{Source: source, Markets: markets, RawPosts: newFakeRawPostRepo(), Log: zerolog.Nop()}

	_, err := d.IngestForMarket(context.Background(), "m1")
	require.Error(t, err)
	assert.Equal(t, apperr.RateLimited, apperr.KindOf(err))
}
