package newsrisk

import (
	"context"
	"testing"
	"time"

	"github.com/sawpanic/controlplane/internal/cache"
)

type fakeSource struct {
	events []Event
	err    error
}

func (f fakeSource) FetchWindow(ctx context.Context, from, to time.Time, currencies []string) ([]Event, error) {
	return f.events, f.err
}

type fakeStore struct {
	upserted []Event
	window   []Event
}

func (f *fakeStore) Upsert(ctx context.Context, events []Event) error {
	f.upserted = events
	return nil
}

func (f *fakeStore) ForwardWindow(ctx context.Context, from, to time.Time, currencies []string) ([]Event, error) {
	return f.window, nil
}

func TestRefreshEconomicCalendarUpsertsFetchedEvents(t *testing.T) {
	events := []Event{{Source: "forexfactory", SourceID: "1", Currency: "USD", Impact: 3, Timestamp: time.Now()}}
	source := fakeSource{events: events}
	store := &fakeStore{}
	r := NewRefresher(source, store, cache.NewMemory(), []string{"USD"})
	if err := r.RefreshEconomicCalendar(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected 1 event upserted, got %d", len(store.upserted))
	}
}

func TestEvaluateNewsBlackoutActiveWithinWindow(t *testing.T) {
	now := time.Now()
	events := []Event{{Currency: "USD", Impact: 3, Timestamp: now}}
	res := EvaluateNewsBlackout(now.Add(5*time.Minute), "USD", events, BlackoutConfig{ImpactMin: 2, PreMinutes: 10, PostMinutes: 10})
	if !res.Active {
		t.Fatal("expected blackout active within window")
	}
}

func TestEvaluateNewsBlackoutInactiveOutsideWindow(t *testing.T) {
	now := time.Now()
	events := []Event{{Currency: "USD", Impact: 3, Timestamp: now}}
	res := EvaluateNewsBlackout(now.Add(time.Hour), "USD", events, BlackoutConfig{ImpactMin: 2, PreMinutes: 10, PostMinutes: 10})
	if res.Active {
		t.Fatal("expected blackout inactive outside window")
	}
}

// TestEvaluateNewsBlackoutS6LiteralWindow reproduces spec.md's S6 scenario literally: a USD
// high-impact event at T=12:00Z with preMinutes=30/postMinutes=30 is active at 11:40Z with
// activeWindow=[11:30,12:30], and inactive by 13:00Z.
func TestEvaluateNewsBlackoutS6LiteralWindow(t *testing.T) {
	eventTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{{Currency: "USD", Impact: 3, Timestamp: eventTime}}
	cfg := BlackoutConfig{ImpactMin: 3, PreMinutes: 30, PostMinutes: 30}

	at1140 := time.Date(2026, 1, 1, 11, 40, 0, 0, time.UTC)
	res := EvaluateNewsBlackout(at1140, "USD", events, cfg)
	if !res.Active {
		t.Fatal("expected newsRisk=true at 11:40Z")
	}
	if res.Currency != "USD" {
		t.Fatalf("expected currency=USD, got %q", res.Currency)
	}
	if res.ActiveWindow == nil {
		t.Fatal("expected activeWindow to be populated")
	}
	wantFrom := time.Date(2026, 1, 1, 11, 30, 0, 0, time.UTC)
	wantTo := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	if !res.ActiveWindow.From.Equal(wantFrom) || !res.ActiveWindow.To.Equal(wantTo) {
		t.Fatalf("expected activeWindow=[11:30,12:30], got [%v,%v]", res.ActiveWindow.From, res.ActiveWindow.To)
	}

	at1300 := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	res2 := EvaluateNewsBlackout(at1300, "USD", events, cfg)
	if res2.Active {
		t.Fatal("expected newsRisk=false at 13:00Z")
	}
}

func TestEvaluateNewsBlackoutIgnoresLowImpact(t *testing.T) {
	now := time.Now()
	events := []Event{{Currency: "USD", Impact: 1, Timestamp: now}}
	res := EvaluateNewsBlackout(now, "USD", events, BlackoutConfig{ImpactMin: 2, PreMinutes: 10, PostMinutes: 10})
	if res.Active {
		t.Fatal("expected low-impact event to be ignored")
	}
}

func TestApplyNewsRiskPrependsTagWhenActive(t *testing.T) {
	snap := FeatureSnapshot{Tags: []string{"breakout", "trend"}}
	out := ApplyNewsRiskToFeatureSnapshot(snap, BlackoutResult{Active: true})
	if out.Tags[0] != "news_risk" {
		t.Fatalf("expected news_risk prepended, got %v", out.Tags)
	}
	if !out.NewsRisk {
		t.Fatal("expected NewsRisk=true")
	}
}

func TestApplyNewsRiskRemovesTagWhenInactive(t *testing.T) {
	snap := FeatureSnapshot{Tags: []string{"news_risk", "breakout"}}
	out := ApplyNewsRiskToFeatureSnapshot(snap, BlackoutResult{Active: false})
	for _, tag := range out.Tags {
		if tag == "news_risk" {
			t.Fatal("expected news_risk removed when inactive")
		}
	}
}

func TestApplyNewsRiskCapsTagsAtFive(t *testing.T) {
	snap := FeatureSnapshot{Tags: []string{"a", "b", "c", "d", "e", "f"}}
	out := ApplyNewsRiskToFeatureSnapshot(snap, BlackoutResult{Active: false})
	if len(out.Tags) != 5 {
		t.Fatalf("expected tags capped at 5, got %d", len(out.Tags))
	}
}

func TestApplyNewsRiskDedupsTags(t *testing.T) {
	snap := FeatureSnapshot{Tags: []string{"a", "a", "b"}}
	out := ApplyNewsRiskToFeatureSnapshot(snap, BlackoutResult{Active: false})
	if len(out.Tags) != 2 {
		t.Fatalf("expected deduped tags, got %v", out.Tags)
	}
}

func TestDayBucketCachesResult(t *testing.T) {
	store := &fakeStore{window: []Event{{Currency: "USD", Impact: 2, Timestamp: time.Now()}}}
	r := NewRefresher(fakeSource{}, store, cache.NewMemory(), []string{"USD"})
	events, err := r.DayBucket(context.Background(), "USD", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	// second call should hit cache, not the store's window fallback being re-queried (store is
	// simple here so we can't assert call count directly, but confirm no panic/error on repeat).
	if _, err := r.DayBucket(context.Background(), "USD", time.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestNextEventReturnsEarliestAboveImpactMin(t *testing.T) {
	now := time.Now()
	store := &fakeStore{window: []Event{
		{Currency: "USD", Impact: 1, Timestamp: now.Add(time.Minute)},
		{Currency: "USD", Impact: 3, Timestamp: now.Add(2 * time.Hour)},
		{Currency: "USD", Impact: 3, Timestamp: now.Add(time.Hour)},
	}}
	r := NewRefresher(fakeSource{}, store, cache.NewMemory(), []string{"USD"})
	e, err := r.NextEvent(context.Background(), "USD", 2)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Timestamp != now.Add(time.Hour) {
		t.Fatalf("expected earliest high-impact event, got %+v", e)
	}
}
