package price

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"pricewatch-telegram-bot/internal/metrics"
	"pricewatch-telegram-bot/internal/upstream"
)

// MarketData is the slice of the upstream client the price layer needs.
type MarketData interface {
	AllTickers(ctx context.Context) ([]upstream.Ticker, error)
	Level1Price(ctx context.Context, symbol string) (float64, error)
}

// Snapshot holds the bulk symbol->price map refreshed at most once per
// TTL window. The map is replaced atomically on refresh and never
// mutated in place, so a reader always sees prices from one refresh.
type Snapshot struct {
	client MarketData
	ttl    time.Duration
	flight singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	prices    map[string]float64
	fetchedAt time.Time
}

func NewSnapshot(client MarketData, ttl time.Duration) *Snapshot {
	return &Snapshot{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		prices: map[string]float64{},
	}
}

func (s *Snapshot) TTL() time.Duration { return s.ttl }

// Refresh returns the current map when it is non-empty and younger
// than the TTL, otherwise fetches the full bulk ticker list once and
// installs it. On fetch failure the previous map is kept: stale but
// available beats unavailable. Concurrent callers share one fetch.
func (s *Snapshot) Refresh(ctx context.Context) map[string]float64 {
	if prices, ok := s.fresh(); ok {
		return prices
	}

	v, _, _ := s.flight.Do("refresh", func() (interface{}, error) {
		if prices, ok := s.fresh(); ok {
			return prices, nil
		}

		tickers, err := s.client.AllTickers(ctx)
		if err != nil {
			log.Warnf("bulk ticker refresh failed, serving previous snapshot: %v", err)
			return s.Prices(), nil
		}

		next := make(map[string]float64, len(tickers))
		for _, t := range tickers {
			next[t.Symbol] = t.Price
		}

		s.mu.Lock()
		s.prices = next
		s.fetchedAt = s.now()
		s.mu.Unlock()

		metrics.SnapshotRefreshes.Inc()
		log.Debugf("ticker snapshot refreshed with %d symbols", len(next))
		return next, nil
	})
	return v.(map[string]float64)
}

// Lookup returns the snapshot price of symbol and the snapshot's age.
func (s *Snapshot) Lookup(symbol string) (float64, time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, s.now().Sub(s.fetchedAt), ok
}

// Prices returns the currently installed map. Callers must treat it as
// read-only; refreshes install a new map instead of mutating it.
func (s *Snapshot) Prices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices
}

func (s *Snapshot) fresh() (map[string]float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.prices) > 0 && s.now().Sub(s.fetchedAt) < s.ttl {
		return s.prices, true
	}
	return nil, false
}
