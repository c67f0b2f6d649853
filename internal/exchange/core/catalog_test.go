package core

import (
	"testing"
	"time"

	"github.com/sawpanic/controlplane/internal/domain/normalize"
)

func TestCatalogCacheMetaTTL(t *testing.T) {
	c := NewCatalogCache()
	fakeNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fakeNow }

	c.SetMeta("BTCUSDT", normalize.SymbolMeta{MinQty: 0.01})
	meta, fresh, present := c.Meta("BTCUSDT")
	if !present || !fresh || meta.MinQty != 0.01 {
		t.Fatalf("expected fresh present meta, got fresh=%v present=%v", fresh, present)
	}

	fakeNow = fakeNow.Add(11 * time.Minute)
	_, fresh, present = c.Meta("BTCUSDT")
	if !present {
		t.Fatal("stale entry should still be present for fallback use")
	}
	if fresh {
		t.Fatal("expected meta to be stale after 11 minutes (10 min TTL)")
	}
}

func TestCatalogCacheSymbolsTTL(t *testing.T) {
	c := NewCatalogCache()
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }
	c.SetSymbols([]string{"BTCUSDT", "ETHUSDT"})

	_, fresh, present := c.Symbols()
	if !present || !fresh {
		t.Fatal("expected fresh symbol listing immediately after set")
	}

	fakeNow = fakeNow.Add(16 * time.Minute)
	_, fresh, present = c.Symbols()
	if !present || fresh {
		t.Fatal("expected stale-but-present symbol listing after 16 minutes (15 min TTL)")
	}
}
