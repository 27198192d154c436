package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/postsource"
	"github.com/evidengine/core/internal/store"
)

// RuleSynchronizer reconciles active markets against the post source's
// registered filter rules (§4.F). Deletes are issued before adds so slot
// quotas free up first; a per-market failure is logged and skipped rather
// than aborting the whole sync.
type RuleSynchronizer struct {
	Source  postsource.Source
	Markets store.MarketRepo
	Rules   store.FilterRuleRepo
	Log     zerolog.Logger
}

// SyncResult summarizes one sync_rules call.
type SyncResult struct {
	Deleted int
	Added   int
	Errors  []string
}

func (s *RuleSynchronizer) SyncRules(ctx context.Context) (SyncResult, error) {
	activeMarkets, err := s.Markets.ActiveMarkets(ctx)
	if err != nil {
		return SyncResult{}, apperr.NewStoreError("rulesync.active_markets", err)
	}
	registered, err := s.Source.GetRules(ctx)
	if err != nil {
		return SyncResult{}, apperr.NewUpstreamPostSource("rulesync.get_rules", err)
	}

	desired := make(map[string]bool, len(activeMarkets))
	for _, m := range activeMarkets {
		if len(m.FilterTemplates) > 0 {
			desired[m.MarketID] = true
		}
	}

	// Rules are tagged with their owning market_id on creation (see the
	// add loop below), so the tag is what ties an externally-registered
	// rule back to a market here.
	registeredByMarket := make(map[string][]postsource.Rule)
	for _, r := range registered {
		registeredByMarket[r.Tag] = append(registeredByMarket[r.Tag], r)
	}

	var result SyncResult

	// Deletes first: rules whose tag references a market that is no
	// longer active (or has no templates).
	var toDelete []string
	for marketID, rules := range registeredByMarket {
		if desired[marketID] {
			continue
		}
		for _, r := range rules {
			toDelete = append(toDelete, r.ID)
		}
	}
	if len(toDelete) > 0 {
		if err := s.Source.DeleteRules(ctx, toDelete); err != nil {
			result.Errors = append(result.Errors, err.Error())
			s.Log.Warn().Err(err).Int("count", len(toDelete)).Msg("rule deletion failed, will retry next sync")
		} else {
			for marketID, rules := range registeredByMarket {
				if desired[marketID] {
					continue
				}
				for _, r := range rules {
					if err := s.Rules.Delete(ctx, marketID, r.ID); err != nil {
						result.Errors = append(result.Errors, err.Error())
					}
				}
			}
			result.Deleted = len(toDelete)
		}
	}

	// Adds second: active markets with no registered rule yet.
	for _, m := range activeMarkets {
		if len(m.FilterTemplates) == 0 {
			continue
		}
		if len(registeredByMarket[m.MarketID]) > 0 {
			continue
		}
		template := m.FilterTemplates[0]
		added, err := s.Source.AddRules(ctx, []postsource.Rule{{Value: template, Tag: m.MarketID}})
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			s.Log.Warn().Err(err).Str("market_id", m.MarketID).Msg("rule registration failed, will retry next sync")
			continue
		}
		for _, a := range added {
			rule := domain.FilterRule{
				MarketID:       m.MarketID,
				ExternalRuleID: a.ID,
				RuleValue:      a.Value,
				RuleTag:        m.MarketID,
			}
			if err := s.Rules.Upsert(ctx, rule); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Added++
		}
	}

	s.Log.Info().
		Int("deleted", result.Deleted).
		Int("added", result.Added).
		Int("errors", len(result.Errors)).
		Msg("rule sync complete")

	return result, nil
}
