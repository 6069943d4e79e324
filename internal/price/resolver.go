package price

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"pricewatch-telegram-bot/internal/metrics"
)

// resolveBatchSize bounds how many single-symbol lookups run against
// the exchange at the same time.
const resolveBatchSize = 8

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// Resolver is the fallback lookup for symbols absent from the bulk
// snapshot. Concurrent lookups for the same symbol are coalesced into
// one upstream call, and successful results are cached briefly.
type Resolver struct {
	client MarketData
	snap   *Snapshot
	ttl    time.Duration
	flight singleflight.Group
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

func NewResolver(client MarketData, snap *Snapshot, ttl time.Duration) *Resolver {
	return &Resolver{
		client: client,
		snap:   snap,
		ttl:    ttl,
		now:    time.Now,
		cache:  map[string]cachedPrice{},
	}
}

// Resolve returns the current price for symbol, or false when the
// upstream could not provide one this attempt. Failures are not
// cached, so the next call starts a fresh lookup.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (float64, bool) {
	if p, ok := r.cached(symbol); ok {
		metrics.ResolverCacheHits.Inc()
		return p, true
	}

	v, err, _ := r.flight.Do(symbol, func() (interface{}, error) {
		if p, ok := r.cached(symbol); ok {
			return p, nil
		}

		metrics.UpstreamLookups.Inc()
		p, err := r.client.Level1Price(ctx, symbol)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[symbol] = cachedPrice{price: p, fetchedAt: r.now()}
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		log.Debugf("could not resolve price for %s: %v", symbol, err)
		return 0, false
	}
	return v.(float64), true
}

// PriceFast prefers the bulk snapshot when it holds the symbol and is
// at most twice the snapshot TTL stale, kicking off a non-blocking
// refresh once the TTL has passed. It only falls back to a blocking
// Resolve when the snapshot cannot serve the symbol. The render path
// uses this to stay off the network whenever possible.
func (r *Resolver) PriceFast(ctx context.Context, symbol string) (float64, bool) {
	if p, age, ok := r.snap.Lookup(symbol); ok && age <= 2*r.snap.TTL() {
		if age > r.snap.TTL() {
			go func() {
				refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				r.snap.Refresh(refreshCtx)
			}()
		}
		return p, true
	}
	return r.Resolve(ctx, symbol)
}

// SnapshotPrices refreshes the bulk snapshot if due and returns the
// installed symbol->price map. The matcher partitions its symbol
// universe against this map before paying for per-symbol lookups.
func (r *Resolver) SnapshotPrices(ctx context.Context) map[string]float64 {
	return r.snap.Refresh(ctx)
}

// ResolveBatch resolves many symbols, at most resolveBatchSize at a
// time within a batch and sequentially across batches. Symbols that
// fail to resolve are simply absent from the result.
func (r *Resolver) ResolveBatch(ctx context.Context, symbols []string) map[string]float64 {
	resolved := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	for start := 0; start < len(symbols); start += resolveBatchSize {
		end := start + resolveBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}

		g, batchCtx := errgroup.WithContext(ctx)
		for _, symbol := range symbols[start:end] {
			symbol := symbol
			g.Go(func() error {
				if p, ok := r.Resolve(batchCtx, symbol); ok {
					mu.Lock()
					resolved[symbol] = p
					mu.Unlock()
				}
				return nil
			})
		}
		g.Wait()
	}
	return resolved
}

func (r *Resolver) cached(symbol string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.cache[symbol]; ok && r.now().Sub(e.fetchedAt) < r.ttl {
		return e.price, true
	}
	return 0, false
}
