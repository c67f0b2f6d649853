// Package newsrisk implements the economic-calendar risk overlay of spec.md §4.14: refreshing a
// forward calendar window, evaluating news blackout windows per currency, and rewriting feature
// snapshots with capped, deduplicated risk tags.
//
// Grounded on the teacher's internal/persistence/postgres upsert-by-natural-key repo style for
// the calendar store, and internal/premove's risk-overlay-on-a-snapshot shape for
// ApplyNewsRiskToFeatureSnapshot.
package newsrisk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/controlplane/internal/cache"
)

// Event is one economic-calendar entry.
type Event struct {
	Source    string
	SourceID  string
	Currency  string
	Impact    int // 1=low 2=medium 3=high, matched against impactMin
	Timestamp time.Time
	Title     string
}

// EventStore persists calendar events, upserted by (source, sourceId).
type EventStore interface {
	Upsert(ctx context.Context, events []Event) error
	ForwardWindow(ctx context.Context, from, to time.Time, currencies []string) ([]Event, error)
}

// CalendarSource fetches the raw forward-looking event window from an upstream provider.
type CalendarSource interface {
	FetchWindow(ctx context.Context, from, to time.Time, currencies []string) ([]Event, error)
}

// Refresher pulls the forward window and upserts it, caching day-bucketed and next-event views.
type Refresher struct {
	source     CalendarSource
	store      EventStore
	cache      cache.Cache
	currencies []string
	now        func() time.Time
}

func NewRefresher(source CalendarSource, store EventStore, c cache.Cache, currencies []string) *Refresher {
	return &Refresher{source: source, store: store, cache: c, currencies: currencies, now: time.Now}
}

const (
	forwardWindow  = 3 * 24 * time.Hour
	dayBucketTTL   = 6 * time.Hour
	nextEventTTL   = 5 * time.Minute
)

// RefreshEconomicCalendar implements spec.md §4.14's refresh: pull a 3-day forward window and
// upsert it by natural key. It does not touch the day-bucket/next-event cache views: DayBucket
// and NextEvent fill those on read, and cached views expire only by their 6h/5m TTLs.
func (r *Refresher) RefreshEconomicCalendar(ctx context.Context) error {
	now := r.now()
	events, err := r.source.FetchWindow(ctx, now, now.Add(forwardWindow), r.currencies)
	if err != nil {
		return fmt.Errorf("newsrisk: fetch window failed: %w", err)
	}
	if err := r.store.Upsert(ctx, events); err != nil {
		return fmt.Errorf("newsrisk: upsert failed: %w", err)
	}
	return nil
}

// dayBucketKey and nextEventKey name the cached views spec.md §4.14 describes.
func dayBucketKey(currency string, day time.Time) string {
	return fmt.Sprintf("newsrisk:daybucket:%s:%s", currency, day.Format("2006-01-02"))
}

func nextEventKey(currency string, impactMin int) string {
	return fmt.Sprintf("newsrisk:nextevent:%s:%d", currency, impactMin)
}

// DayBucket returns the events falling on `day` for currency, from the 6h-TTL cache when
// present, else querying the store and populating the cache.
func (r *Refresher) DayBucket(ctx context.Context, currency string, day time.Time) ([]Event, error) {
	key := dayBucketKey(currency, day)
	if raw, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		var events []Event
		if json.Unmarshal(raw, &events) == nil {
			return events, nil
		}
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	events, err := r.store.ForwardWindow(ctx, dayStart, dayStart.Add(24*time.Hour), []string{currency})
	if err != nil {
		return nil, fmt.Errorf("newsrisk: day bucket query failed: %w", err)
	}
	if raw, err := json.Marshal(events); err == nil {
		_ = r.cache.Set(ctx, key, raw, dayBucketTTL)
	}
	return events, nil
}

// NextEvent returns the soonest event at or above impactMin for currency, from the 5m-TTL cache
// when present, else querying the store's forward window and populating the cache.
func (r *Refresher) NextEvent(ctx context.Context, currency string, impactMin int) (*Event, error) {
	key := nextEventKey(currency, impactMin)
	if raw, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		var e Event
		if json.Unmarshal(raw, &e) == nil {
			return &e, nil
		}
	}

	now := r.now()
	events, err := r.store.ForwardWindow(ctx, now, now.Add(forwardWindow), []string{currency})
	if err != nil {
		return nil, fmt.Errorf("newsrisk: next event query failed: %w", err)
	}
	var next *Event
	for i := range events {
		if events[i].Impact < impactMin {
			continue
		}
		if next == nil || events[i].Timestamp.Before(next.Timestamp) {
			e := events[i]
			next = &e
		}
	}
	if next == nil {
		return nil, nil
	}
	if raw, err := json.Marshal(next); err == nil {
		_ = r.cache.Set(ctx, key, raw, nextEventTTL)
	}
	return next, nil
}

// BlackoutConfig carries the pre/post windows and impact floor spec.md §4.14 names.
type BlackoutConfig struct {
	ImpactMin   int
	PreMinutes  int
	PostMinutes int
}

// ActiveWindow is the `{from,to,event}` window spec.md §3's BlackoutResult carries while a
// blackout is active.
type ActiveWindow struct {
	From  time.Time
	To    time.Time
	Event Event
}

// BlackoutResult is evaluateNewsBlackout's output: spec.md §3's
// `{newsRisk, currency, activeWindow?:{from,to,event}, nextEvent?}`.
type BlackoutResult struct {
	Active       bool
	Currency     string
	ActiveWindow *ActiveWindow
	NextEvent    *Event
}

// EvaluateNewsBlackout implements spec.md §4.14: active iff any event with impact >= impactMin
// and matching currency lies within [ts-preMinutes, ts+postMinutes] of now. When no event is
// currently active, NextEvent names the soonest qualifying upcoming event, per spec.md §3.
func EvaluateNewsBlackout(now time.Time, currency string, events []Event, cfg BlackoutConfig) BlackoutResult {
	var next *Event
	for i := range events {
		e := events[i]
		if e.Currency != currency || e.Impact < cfg.ImpactMin {
			continue
		}
		windowStart := e.Timestamp.Add(-time.Duration(cfg.PreMinutes) * time.Minute)
		windowEnd := e.Timestamp.Add(time.Duration(cfg.PostMinutes) * time.Minute)
		if !now.Before(windowStart) && !now.After(windowEnd) {
			return BlackoutResult{
				Active:   true,
				Currency: currency,
				ActiveWindow: &ActiveWindow{
					From:  windowStart,
					To:    windowEnd,
					Event: e,
				},
			}
		}
		if e.Timestamp.After(now) && (next == nil || e.Timestamp.Before(next.Timestamp)) {
			ev := e
			next = &ev
		}
	}
	return BlackoutResult{Active: false, Currency: currency, NextEvent: next}
}

const maxSnapshotTags = 5

// FeatureSnapshot is the minimal shape ApplyNewsRiskToFeatureSnapshot needs and rewrites; the
// prediction pipeline's richer snapshot embeds this.
type FeatureSnapshot struct {
	Tags         []string
	NewsRisk     bool
	NewsBlackout *BlackoutResult
}

// ApplyNewsRiskToFeatureSnapshot implements spec.md §4.14's idempotent rewrite: dedup tags,
// prepend "news_risk" when active (else remove it), attach the blackout summary, cap tags at 5.
func ApplyNewsRiskToFeatureSnapshot(snap FeatureSnapshot, blackout BlackoutResult) FeatureSnapshot {
	out := snap
	out.NewsRisk = blackout.Active
	if blackout.Active {
		out.NewsBlackout = &blackout
	} else {
		out.NewsBlackout = nil
	}

	deduped := dedupTags(snap.Tags)
	filtered := make([]string, 0, len(deduped))
	for _, t := range deduped {
		if t != "news_risk" {
			filtered = append(filtered, t)
		}
	}
	if blackout.Active {
		filtered = append([]string{"news_risk"}, filtered...)
	}
	if len(filtered) > maxSnapshotTags {
		filtered = filtered[:maxSnapshotTags]
	}
	out.Tags = filtered
	return out
}

func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
