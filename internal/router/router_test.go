package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/infrastructure/cache"
)

func newFixture(rules []*entities.RoutingRule, accounts map[string]*entities.MerchantAccount) *Router {
	return New(
		cache.NewSnapshot(rules),
		cache.NewSnapshot(accounts),
		nil,
		config.RoutingConfig{DefaultPrimaryMID: "default-mid"},
	)
}

func TestRouteMatchesHighestPriorityRule(t *testing.T) {
	rules := []*entities.RoutingRule{
		{ID: "r2", Priority: 2, Active: true, Target: entities.RoutingTarget{PrimaryMID: "m2"}},
		{ID: "r1", Priority: 1, Active: true, Target: entities.RoutingTarget{PrimaryMID: "m1", FallbackMIDs: []string{"m2"}}},
	}
	accounts := map[string]*entities.MerchantAccount{
		"m1": {MID: "m1", Currency: "USD"},
		"m2": {MID: "m2", Currency: "USD"},
	}
	r := newFixture(rules, accounts)

	chain, err := r.Route(context.Background(), Request{Currency: "USD", At: time.Now()})
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, chain)
}

func TestRouteTieBreaksByRuleIDAscending(t *testing.T) {
	rules := []*entities.RoutingRule{
		{ID: "rb", Priority: 1, Active: true, Target: entities.RoutingTarget{PrimaryMID: "mb"}},
		{ID: "ra", Priority: 1, Active: true, Target: entities.RoutingTarget{PrimaryMID: "ma"}},
	}
	accounts := map[string]*entities.MerchantAccount{
		"ma": {MID: "ma", Currency: "USD"},
		"mb": {MID: "mb", Currency: "USD"},
	}
	r := newFixture(rules, accounts)

	chain, err := r.Route(context.Background(), Request{Currency: "USD", At: time.Now()})
	require.NoError(t, err)
	require.Equal(t, []string{"ma"}, chain)
}

func TestRouteFallsBackToDefaultWhenNoRuleMatches(t *testing.T) {
	accounts := map[string]*entities.MerchantAccount{
		"default-mid": {MID: "default-mid", Currency: "USD"},
	}
	r := newFixture(nil, accounts)

	chain, err := r.Route(context.Background(), Request{Currency: "USD", At: time.Now()})
	require.NoError(t, err)
	require.Equal(t, []string{"default-mid"}, chain)
}

func TestRouteFiltersKillSwitchedAndCurrencyMismatch(t *testing.T) {
	rules := []*entities.RoutingRule{
		{ID: "r1", Priority: 1, Active: true, Target: entities.RoutingTarget{PrimaryMID: "m1", FallbackMIDs: []string{"m2", "m3"}}},
	}
	accounts := map[string]*entities.MerchantAccount{
		"m1": {MID: "m1", Currency: "USD", KillSwitch: true},
		"m2": {MID: "m2", Currency: "EUR"},
		"m3": {MID: "m3", Currency: "USD"},
	}
	r := newFixture(rules, accounts)

	chain, err := r.Route(context.Background(), Request{Currency: "USD", At: time.Now()})
	require.NoError(t, err)
	require.Equal(t, []string{"m3"}, chain)
}

func TestRouteAmountRangeInclusiveLowerExclusiveUpper(t *testing.T) {
	rules := []*entities.RoutingRule{
		{
			ID: "r1", Priority: 1, Active: true,
			Conditions: entities.RoutingConditions{Amount: entities.AmountRange{MinMinor: 100, MaxMinor: 200}},
			Target:     entities.RoutingTarget{PrimaryMID: "m1"},
		},
	}
	accounts := map[string]*entities.MerchantAccount{"m1": {MID: "m1", Currency: "USD"}}
	r := newFixture(rules, accounts)

	_, err := r.Route(context.Background(), Request{Currency: "USD", AmountMinor: 100, At: time.Now()})
	require.NoError(t, err)

	_, err = r.Route(context.Background(), Request{Currency: "USD", AmountMinor: 200, At: time.Now()})
	require.Error(t, err) // falls through to default which isn't configured in accounts
}

func TestRouteNoEligibleAccountErrors(t *testing.T) {
	rules := []*entities.RoutingRule{
		{ID: "r1", Priority: 1, Active: true, Target: entities.RoutingTarget{PrimaryMID: "missing-mid"}},
	}
	r := newFixture(rules, map[string]*entities.MerchantAccount{})

	_, err := r.Route(context.Background(), Request{Currency: "USD", At: time.Now()})
	require.Error(t, err)
}
