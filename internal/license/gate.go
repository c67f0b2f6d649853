// Package license implements the bot-start license gate of spec.md §4.15: cached entitlement
// lookup, bot-count and exchange-allowlist checks, and plan-default fallbacks.
//
// Grounded on the teacher's internal/domain/gates coded-decision style and internal/cache's TTL
// cache for the entitlement lookup.
package license

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/controlplane/internal/cache"
)

// Plan is a subscription tier with a set of defaults used when a workspace entitlement omits a
// field.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// PlanDefaults carries the per-plan limits spec.md §4.15 references.
type PlanDefaults struct {
	MaxBotsTotal   int
	MaxRunningBots int
	Exchanges      []string // "*" means all
}

var defaultsByPlan = map[Plan]PlanDefaults{
	PlanFree:       {MaxBotsTotal: 1, MaxRunningBots: 1, Exchanges: []string{"binance"}},
	PlanPro:        {MaxBotsTotal: 10, MaxRunningBots: 5, Exchanges: []string{"*"}},
	PlanEnterprise: {MaxBotsTotal: 1000, MaxRunningBots: 1000, Exchanges: []string{"*"}},
}

// Entitlement is a workspace's resolved license record.
type Entitlement struct {
	Plan               Plan
	MaxBotsTotal       int      // 0 means "use plan default"
	MaxRunningBots     int      // 0 means "use plan default"
	AllowedExchanges   []string // empty means "use plan default"
	AllowedStrategyKinds []string
	AllowedStrategyIDs []string
	AllowedAIModels    []string
	EnforcementOff     bool
}

func (e Entitlement) resolvedMaxBotsTotal() int {
	if e.MaxBotsTotal > 0 {
		return e.MaxBotsTotal
	}
	return defaultsByPlan[e.Plan].MaxBotsTotal
}

func (e Entitlement) resolvedMaxRunningBots() int {
	if e.MaxRunningBots > 0 {
		return e.MaxRunningBots
	}
	return defaultsByPlan[e.Plan].MaxRunningBots
}

func (e Entitlement) resolvedExchanges() []string {
	if len(e.AllowedExchanges) > 0 {
		return e.AllowedExchanges
	}
	return defaultsByPlan[e.Plan].Exchanges
}

// EntitlementSource resolves a user's entitlement from the workspace/billing system.
type EntitlementSource interface {
	Fetch(ctx context.Context, userID string) (Entitlement, error)
}

// StaticSource returns the same entitlement for every user, keyed off a configured plan. The
// real billing/workspace integration is out of scope; this lets single-tenant deployments run
// the gate against a fixed plan from config without a billing client.
type StaticSource struct {
	Entitlement Entitlement
}

func (s StaticSource) Fetch(ctx context.Context, userID string) (Entitlement, error) {
	return s.Entitlement, nil
}

// Decision codes spec.md §4.15 names.
const (
	DecisionEnforcementOff           = "enforcement_off"
	DecisionMaxBotsTotalExceeded     = "max_bots_total_exceeded"
	DecisionMaxRunningBotsExceeded   = "max_running_bots_exceeded"
	DecisionExchangeNotAllowed       = "exchange_not_allowed"
	DecisionLicenseServerUnreachable = "license_server_unreachable"
	DecisionOK                       = "ok"
)

// Input bundles what enforceBotStartLicense needs to evaluate one start attempt.
type Input struct {
	UserID          string
	Exchange        string
	TotalBots       int
	RunningBots     int
	IsAlreadyRunning bool
}

// Result is enforceBotStartLicense's output.
type Result struct {
	Decision    string
	Entitlement *Entitlement
}

// Gate caches entitlement lookups with the TTL spec.md §4.15 names (default 600s).
type Gate struct {
	source EntitlementSource
	cache  cache.Cache
	ttl    time.Duration
}

func NewGate(source EntitlementSource, c cache.Cache, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &Gate{source: source, cache: c, ttl: ttl}
}

func cacheKey(userID string) string { return fmt.Sprintf("license:entitlement:%s", userID) }

// EnforceBotStartLicense implements spec.md §4.15's decision table.
func (g *Gate) EnforceBotStartLicense(ctx context.Context, in Input) Result {
	ent, err := g.fetchEntitlement(ctx, in.UserID)
	if err != nil {
		return Result{Decision: DecisionLicenseServerUnreachable}
	}

	if ent.EnforcementOff {
		return Result{Decision: DecisionEnforcementOff, Entitlement: &ent}
	}

	if in.IsAlreadyRunning {
		return Result{Decision: DecisionOK, Entitlement: &ent}
	}

	if in.TotalBots >= ent.resolvedMaxBotsTotal() {
		return Result{Decision: DecisionMaxBotsTotalExceeded, Entitlement: &ent}
	}
	if in.RunningBots >= ent.resolvedMaxRunningBots() {
		return Result{Decision: DecisionMaxRunningBotsExceeded, Entitlement: &ent}
	}
	if !exchangeAllowed(ent.resolvedExchanges(), in.Exchange) {
		return Result{Decision: DecisionExchangeNotAllowed, Entitlement: &ent}
	}

	return Result{Decision: DecisionOK, Entitlement: &ent}
}

// exchangeAllowed accepts "*" as a wildcard matching any exchange.
func exchangeAllowed(allowed []string, exchange string) bool {
	for _, a := range allowed {
		if a == "*" || a == exchange {
			return true
		}
	}
	return false
}

// CheckBotStartInput is the caller-supplied context CheckBotStart needs beyond userID, since the
// botruntime.LicenseChecker interface only carries a bot id; callers (C13) construct this from
// their own bot/exchange bookkeeping before calling through StartChecker.
type CheckBotStartInput struct {
	UserID      string
	Exchange    string
	TotalBots   int
	RunningBots int
}

// StartChecker adapts Gate to botruntime.LicenseChecker: callers resolve the full Input per bot
// (userID/exchange/counts) via Lookup before a transition, since the FSM only passes a bot id.
type StartChecker struct {
	Gate   *Gate
	Lookup func(ctx context.Context, botID string) (CheckBotStartInput, error)
}

func (s StartChecker) CheckBotStart(ctx context.Context, botID string) error {
	in, err := s.Lookup(ctx, botID)
	if err != nil {
		return fmt.Errorf("license: lookup failed for bot %s: %w", botID, err)
	}
	res := s.Gate.EnforceBotStartLicense(ctx, Input{
		UserID: in.UserID, Exchange: in.Exchange, TotalBots: in.TotalBots, RunningBots: in.RunningBots,
	})
	if res.Decision != DecisionOK && res.Decision != DecisionEnforcementOff {
		return fmt.Errorf("license: %s", res.Decision)
	}
	return nil
}

func (g *Gate) fetchEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	key := cacheKey(userID)
	if raw, hit, err := g.cache.Get(ctx, key); err == nil && hit {
		var ent Entitlement
		if json.Unmarshal(raw, &ent) == nil {
			return ent, nil
		}
	}

	ent, err := g.source.Fetch(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	if raw, err := json.Marshal(ent); err == nil {
		_ = g.cache.Set(ctx, key, raw, g.ttl)
	}
	return ent, nil
}
