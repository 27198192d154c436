package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/oracle"
)

type fakeScoredPostRepo struct {
	rows []domain.ScoredPost
}

func (f *fakeScoredPostRepo) UpsertScored(ctx context.Context, rows []domain.ScoredPost) error {
	f.rows = append(f.rows, rows...)
	return nil
}
func (f *fakeScoredPostRepo) ByRawPostIDs(ctx context.Context, marketID string, rawPostIDs []int64) ([]domain.ScoredPost, error) {
	want := make(map[int64]bool, len(rawPostIDs))
	for _, id := range rawPostIDs {
		want[id] = true
	}
	var out []domain.ScoredPost
	for _, r := range f.rows {
		if r.MarketID == marketID && want[r.RawPostID] {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeOracle struct {
	resp oracle.Response
	err  error
}

func (f *fakeOracle) ScoreBatch(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	return f.resp, f.err
}

func TestScoreUnscored_NoOutcomesIsNoop(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1"}
	d := &ScoringDispatcher{Oracle: &fakeOracle{}, Markets: markets, RawPosts: newFakeRawPostRepo(), ScoredPosts: &fakeScoredPostRepo{}, Log: zerolog.Nop()}

	n, err := d.ScoreUnscored(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScoreUnscored_ExpandsOneRowPerOutcome(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1", Question: "will it happen?"}
	markets.outcomes["m1"] = []domain.Outcome{{MarketID: "m1", OutcomeKey: "yes"}, {MarketID: "m1", OutcomeKey: "no"}}

	rawPosts := newFakeRawPostRepo()
	id, err := rawPosts.UpsertRawPost(context.Background(), domain.RawPost{ExternalPostID: "p1", MarketID: "m1", Text: "hello", PostCreatedAt: time.Now()})
	require.NoError(t, err)

	scored := &fakeScoredPostRepo{}
	oracleClient := &fakeOracle{resp: oracle.Response{Results: []oracle.ResultRow{
		{
			PostID: fmt.Sprintf("%d", id),
			PerOutcome: map[string]domain.OutcomeScores{
				"yes": {Relevance: 0.9, Stance: 0.6, Strength: 0.5, Credibility: 0.8, Confidence: 0.7},
			},
		},
	}}}

	d := &ScoringDispatcher{Oracle: oracleClient, Markets: markets, RawPosts: rawPosts, ScoredPosts: scored, Log: zerolog.Nop()}
	n, err := d.ScoreUnscored(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, scored.rows, 2)

	var yesRow, noRow domain.ScoredPost
	for _, r := range scored.rows {
		if r.OutcomeKey == "yes" {
			yesRow = r
		} else {
			noRow = r
		}
	}
	assert.Equal(t, 0.9, yesRow.Scores.Relevance)
	assert.Equal(t, domain.OutcomeScores{}, noRow.Scores)
}

func TestScoreUnscored_PostAbsentFromResponseStaysUnscored(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.markets["m1"] = domain.Market{MarketID: "m1"}
	markets.outcomes["m1"] = []domain.Outcome{{MarketID: "m1", OutcomeKey: "yes"}}

	rawPosts := newFakeRawPostRepo()
	_, err := rawPosts.UpsertRawPost(context.Background(), domain.RawPost{ExternalPostID: "p1", MarketID: "m1", Text: "hello", PostCreatedAt: time.Now()})
	require.NoError(t, err)

	scored := &fakeScoredPostRepo{}
	d := &ScoringDispatcher{Oracle: &fakeOracle{resp: oracle.Response{}}, Markets: markets, RawPosts: rawPosts, ScoredPosts: scored, Log: zerolog.Nop()}

	n, err := d.ScoreUnscored(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, scored.rows)
}
