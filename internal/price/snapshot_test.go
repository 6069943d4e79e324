package price

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch-telegram-bot/internal/upstream"
)

// fakeMarket is a scriptable MarketData implementation.
type fakeMarket struct {
	mu          sync.Mutex
	bulkCalls   int
	bulkFn      func() ([]upstream.Ticker, error)
	level1Calls map[string]int
	level1Fn    func(symbol string) (float64, error)
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{level1Calls: map[string]int{}}
}

func (f *fakeMarket) AllTickers(ctx context.Context) ([]upstream.Ticker, error) {
	f.mu.Lock()
	f.bulkCalls++
	fn := f.bulkFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no bulk fixture")
	}
	return fn()
}

func (f *fakeMarket) Level1Price(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	f.level1Calls[symbol]++
	fn := f.level1Fn
	f.mu.Unlock()
	if fn == nil {
		return 0, errors.New("no level1 fixture")
	}
	return fn(symbol)
}

func (f *fakeMarket) bulkCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bulkCalls
}

func (f *fakeMarket) level1CallCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level1Calls[symbol]
}

func tickers(prices map[string]float64) []upstream.Ticker {
	var ts []upstream.Ticker
	for s, p := range prices {
		ts = append(ts, upstream.Ticker{Symbol: s, Price: p})
	}
	return ts
}

func TestSnapshotRefreshWithinTTLSkipsNetwork(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000}), nil
	}

	snap := NewSnapshot(market, time.Minute)

	first := snap.Refresh(context.Background())
	second := snap.Refresh(context.Background())

	assert.Equal(t, 1, market.bulkCallCount())
	assert.Equal(t, 50000.0, first["BTC-USDT"])
	assert.Equal(t, 50000.0, second["BTC-USDT"])
}

func TestSnapshotRefreshAfterTTLFetchesAgain(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000}), nil
	}

	snap := NewSnapshot(market, time.Minute)
	now := time.Now()
	snap.now = func() time.Time { return now }

	snap.Refresh(context.Background())
	now = now.Add(2 * time.Minute)

	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 51000}), nil
	}
	refreshed := snap.Refresh(context.Background())

	assert.Equal(t, 2, market.bulkCallCount())
	assert.Equal(t, 51000.0, refreshed["BTC-USDT"])
}

func TestSnapshotKeepsPreviousMapOnFetchFailure(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000, "ETH-USDT": 3000}), nil
	}

	snap := NewSnapshot(market, time.Minute)
	now := time.Now()
	snap.now = func() time.Time { return now }

	snap.Refresh(context.Background())
	now = now.Add(2 * time.Minute)

	market.bulkFn = func() ([]upstream.Ticker, error) {
		return nil, errors.New("exchange down")
	}
	stale := snap.Refresh(context.Background())

	require.Len(t, stale, 2)
	assert.Equal(t, 50000.0, stale["BTC-USDT"])
}

func TestSnapshotReplacesMapAtomically(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000, "ETH-USDT": 3000}), nil
	}

	snap := NewSnapshot(market, time.Minute)
	now := time.Now()
	snap.now = func() time.Time { return now }

	old := snap.Refresh(context.Background())
	now = now.Add(2 * time.Minute)

	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 60000, "ETH-USDT": 4000}), nil
	}
	fresh := snap.Refresh(context.Background())

	// A reader holding the old map still sees one consistent cycle.
	assert.Equal(t, 50000.0, old["BTC-USDT"])
	assert.Equal(t, 3000.0, old["ETH-USDT"])
	assert.Equal(t, 60000.0, fresh["BTC-USDT"])
	assert.Equal(t, 4000.0, fresh["ETH-USDT"])
}

func TestSnapshotLookupReportsAge(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000}), nil
	}

	snap := NewSnapshot(market, time.Minute)
	now := time.Now()
	snap.now = func() time.Time { return now }

	snap.Refresh(context.Background())
	now = now.Add(30 * time.Second)

	price, age, ok := snap.Lookup("BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, 30*time.Second, age)

	_, _, ok = snap.Lookup("XRP-USDT")
	assert.False(t, ok)
}
