package core

import (
	"sync"
	"time"

	"github.com/sawpanic/controlplane/internal/domain/normalize"
)

// CatalogCache caches per-venue symbol listings (15 min TTL) and per-symbol meta (10 min TTL),
// per spec.md §3 and §4.3. On a 429, a stale entry still satisfies the request if present —
// Symbols() and Meta() report whether an entry is fresh and whether one is present at all.
//
// Grounded on the teacher's binance/orderbook.go OrderBookCache (a map + ttl guarded by an
// explicit Get/Set pair); generalized to two independent TTLs and a read-many/write-one
// discipline via sync.RWMutex, per spec.md §5's shared-state note (populated entry is
// copy-on-read).
type CatalogCache struct {
	mu        sync.RWMutex
	symbols   cacheEntry[[]string]
	metas     map[string]cacheEntry[normalize.SymbolMeta]
	symbolTTL time.Duration
	metaTTL   time.Duration
	now       func() time.Time
}

type cacheEntry[T any] struct {
	value T
	at    time.Time
	set   bool
}

func NewCatalogCache() *CatalogCache {
	return &CatalogCache{
		metas:     make(map[string]cacheEntry[normalize.SymbolMeta]),
		symbolTTL: 15 * time.Minute,
		metaTTL:   10 * time.Minute,
		now:       time.Now,
	}
}

// Symbols returns the cached symbol listing and whether it is still fresh.
func (c *CatalogCache) Symbols() (symbols []string, fresh bool, present bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.symbols.set {
		return nil, false, false
	}
	cp := make([]string, len(c.symbols.value))
	copy(cp, c.symbols.value)
	return cp, c.now().Sub(c.symbols.at) < c.symbolTTL, true
}

func (c *CatalogCache) SetSymbols(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	c.symbols = cacheEntry[[]string]{value: cp, at: c.now(), set: true}
}

// Meta returns the cached SymbolMeta for symbol and whether it is still fresh.
func (c *CatalogCache) Meta(symbol string) (meta normalize.SymbolMeta, fresh bool, present bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.metas[symbol]
	if !ok {
		return normalize.SymbolMeta{}, false, false
	}
	return e.value, c.now().Sub(e.at) < c.metaTTL, true
}

func (c *CatalogCache) SetMeta(symbol string, meta normalize.SymbolMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metas[symbol] = cacheEntry[normalize.SymbolMeta]{value: meta, at: c.now(), set: true}
}
