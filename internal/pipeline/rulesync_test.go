package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/postsource"
)

type fakeFilterRuleRepo struct {
	rules map[string][]domain.FilterRule
}

func newFakeFilterRuleRepo() *fakeFilterRuleRepo {
	return &fakeFilterRuleRepo{rules: make(map[string][]domain.FilterRule)}
}

func (f *fakeFilterRuleRepo) ByMarket(ctx context.Context, marketID string) ([]domain.FilterRule, error) {
	return f.rules[marketID], nil
}
func (f *fakeFilterRuleRepo) All(ctx context.Context) ([]domain.FilterRule, error) {
	var out []domain.FilterRule
	for _, rs := range f.rules {
		out = append(out, rs...)
	}
	return out, nil
}
func (f *fakeFilterRuleRepo) Upsert(ctx context.Context, rule domain.FilterRule) error {
	f.rules[rule.MarketID] = append(f.rules[rule.MarketID], rule)
	return nil
}
func (f *fakeFilterRuleRepo) Delete(ctx context.Context, marketID, externalRuleID string) error {
	var kept []domain.FilterRule
	for _, r := range f.rules[marketID] {
		if r.ExternalRuleID != externalRuleID {
			kept = append(kept, r)
		}
	}
	f.rules[marketID] = kept
	return nil
}

type fakeRuleSource struct {
	fakeSource
	registered []postsource.Rule
	added      []postsource.Rule
	deleted    []string
	nextID     int
}

func (f *fakeRuleSource) GetRules(ctx context.Context) ([]postsource.Rule, error) {
	return f.registered, nil
}
func (f *fakeRuleSource) AddRules(ctx context.Context, rules []postsource.Rule) ([]postsource.Rule, error) {
	var out []postsource.Rule
	for _, r := range rules {
		f.nextID++
		r.ID = fmt.Sprintf("r%d", f.nextID)
		out = append(out, r)
		f.added = append(f.added, r)
	}
	return out, nil
}
func (f *fakeRuleSource) DeleteRules(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func TestSyncRules_RegistersMissingRuleForActiveMarket(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.active = []domain.Market{{MarketID: "m1", Status: domain.StatusActive, FilterTemplates: []string{"foo OR bar"}}}
	rules := newFakeFilterRuleRepo()
	source := &fakeRuleSource{}

	s := &RuleSynchronizer{Source: source, Markets: markets, Rules: rules, Log: zerolog.Nop()}
	result, err := s.SyncRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 0, result.Deleted)
	require.Len(t, rules.rules["m1"], 1)
	assert.Equal(t, "m1", rules.rules["m1"][0].RuleTag)
}

func TestSyncRules_DeletesRuleForInactiveMarket(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.active = nil
	rules := newFakeFilterRuleRepo()
	rules.rules["m1"] = []domain.FilterRule{{MarketID: "m1", ExternalRuleID: "r1", RuleTag: "m1"}}
	source := &fakeRuleSource{registered: []postsource.Rule{{ID: "r1", Value: "foo OR bar", Tag: "m1"}}}

	s := &RuleSynchronizer{Source: source, Markets: markets, Rules: rules, Log: zerolog.Nop()}
	result, err := s.SyncRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, rules.rules["m1"])
	assert.Equal(t, []string{"r1"}, source.deleted)
}

func TestSyncRules_SkipsMarketAlreadyRegistered(t *testing.T) {
	markets := newFakeMarketRepo()
	markets.active = []domain.Market{{MarketID: "m1", Status: domain.StatusActive, FilterTemplates: []string{"foo"}}}
	rules := newFakeFilterRuleRepo()
	source := &fakeRuleSource{registered: []postsource.Rule{{ID: "r1", Value: "foo", Tag: "m1"}}}

	s := &RuleSynchronizer{Source: source, Markets: markets, Rules: rules, Log: zerolog.Nop()}
	result, err := s.SyncRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Deleted)
}

func TestSyncRules_DetectsDriftFromExternalDeletion(t *testing.T) {
	// A rule this process believes it registered (local bookkeeping) was
	// removed directly on the post source; reconciling against local
	// state alone would never notice, so the desired rule must be
	// re-added once the external GetRules call reflects the gap.
	markets := newFakeMarketRepo()
	markets.active = []domain.Market{{MarketID: "m1", Status: domain.StatusActive, FilterTemplates: []string{"foo"}}}
	rules := newFakeFilterRuleRepo()
	rules.rules["m1"] = []domain.FilterRule{{MarketID: "m1", ExternalRuleID: "r1", RuleTag: "m1"}}
	source := &fakeRuleSource{registered: nil}

	s := &RuleSynchronizer{Source: source, Markets: markets, Rules: rules, Log: zerolog.Nop()}
	result, err := s.SyncRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
}
