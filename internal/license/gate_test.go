package license

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sawpanic/controlplane/internal/cache"
)

type fakeSource struct {
	ent Entitlement
	err error
}

func (f fakeSource) Fetch(ctx context.Context, userID string) (Entitlement, error) {
	return f.ent, f.err
}

func TestEnforceBotStartLicenseOKWithinLimits(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanPro}}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "binance", TotalBots: 2, RunningBots: 1})
	if res.Decision != DecisionOK {
		t.Fatalf("expected ok, got %s", res.Decision)
	}
}

func TestEnforceBotStartLicenseMaxBotsExceeded(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanFree}}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "binance", TotalBots: 1, RunningBots: 0})
	if res.Decision != DecisionMaxBotsTotalExceeded {
		t.Fatalf("expected max_bots_total_exceeded, got %s", res.Decision)
	}
}

func TestEnforceBotStartLicenseExchangeNotAllowed(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanFree}}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "kucoin", TotalBots: 0, RunningBots: 0})
	if res.Decision != DecisionExchangeNotAllowed {
		t.Fatalf("expected exchange_not_allowed, got %s", res.Decision)
	}
}

func TestEnforceBotStartLicenseWildcardExchangeAllowsAll(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanEnterprise}}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "anything", TotalBots: 0, RunningBots: 0})
	if res.Decision != DecisionOK {
		t.Fatalf("expected ok via wildcard, got %s", res.Decision)
	}
}

func TestEnforceBotStartLicenseServerUnreachable(t *testing.T) {
	g := NewGate(fakeSource{err: errors.New("timeout")}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1"})
	if res.Decision != DecisionLicenseServerUnreachable {
		t.Fatalf("expected license_server_unreachable, got %s", res.Decision)
	}
}

func TestEnforceBotStartLicenseAlreadyRunningSkipsLimitChecks(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanFree}}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "binance", TotalBots: 99, RunningBots: 99, IsAlreadyRunning: true})
	if res.Decision != DecisionOK {
		t.Fatalf("expected ok for already-running bot, got %s", res.Decision)
	}
}

func TestEnforceBotStartLicenseEnforcementOff(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanFree, EnforcementOff: true}}, cache.NewMemory(), time.Minute)
	res := g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "kucoin", TotalBots: 99, RunningBots: 99})
	if res.Decision != DecisionEnforcementOff {
		t.Fatalf("expected enforcement_off, got %s", res.Decision)
	}
}

func TestEntitlementCachedAcrossCalls(t *testing.T) {
	calls := 0
	src := fakeSourceCounter{ent: Entitlement{Plan: PlanPro}, calls: &calls}
	g := NewGate(src, cache.NewMemory(), time.Minute)
	g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "binance"})
	g.EnforceBotStartLicense(context.Background(), Input{UserID: "u1", Exchange: "binance"})
	if calls != 1 {
		t.Fatalf("expected entitlement fetched once due to caching, got %d calls", calls)
	}
}

type fakeSourceCounter struct {
	ent   Entitlement
	calls *int
}

func (f fakeSourceCounter) Fetch(ctx context.Context, userID string) (Entitlement, error) {
	*f.calls++
	return f.ent, nil
}

func TestStartCheckerReturnsErrorOnDenial(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanFree}}, cache.NewMemory(), time.Minute)
	sc := StartChecker{
		Gate: g,
		Lookup: func(ctx context.Context, botID string) (CheckBotStartInput, error) {
			return CheckBotStartInput{UserID: "u1", Exchange: "kucoin"}, nil
		},
	}
	if err := sc.CheckBotStart(context.Background(), "bot1"); err == nil {
		t.Fatal("expected denial to surface as error")
	}
}

func TestStartCheckerAllowsOnOK(t *testing.T) {
	g := NewGate(fakeSource{ent: Entitlement{Plan: PlanEnterprise}}, cache.NewMemory(), time.Minute)
	sc := StartChecker{
		Gate: g,
		Lookup: func(ctx context.Context, botID string) (CheckBotStartInput, error) {
			return CheckBotStartInput{UserID: "u1", Exchange: "binance"}, nil
		},
	}
	if err := sc.CheckBotStart(context.Background(), "bot1"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}
