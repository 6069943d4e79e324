package price

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch-telegram-bot/internal/upstream"
)

func newResolverUnderTest(market MarketData) *Resolver {
	snap := NewSnapshot(market, time.Minute)
	return NewResolver(market, snap, 10*time.Second)
}

func TestResolveCachesSuccess(t *testing.T) {
	market := newFakeMarket()
	market.level1Fn = func(string) (float64, error) { return 123.45, nil }

	r := newResolverUnderTest(market)

	p, ok := r.Resolve(context.Background(), "OBS-USDT")
	require.True(t, ok)
	assert.Equal(t, 123.45, p)

	p, ok = r.Resolve(context.Background(), "OBS-USDT")
	require.True(t, ok)
	assert.Equal(t, 123.45, p)
	assert.Equal(t, 1, market.level1CallCount("OBS-USDT"))
}

func TestResolveDoesNotCacheFailure(t *testing.T) {
	market := newFakeMarket()
	fail := true
	market.level1Fn = func(string) (float64, error) {
		if fail {
			return 0, errors.New("timeout")
		}
		return 99.9, nil
	}

	r := newResolverUnderTest(market)

	_, ok := r.Resolve(context.Background(), "OBS-USDT")
	assert.False(t, ok)

	fail = false
	p, ok := r.Resolve(context.Background(), "OBS-USDT")
	require.True(t, ok)
	assert.Equal(t, 99.9, p)
	assert.Equal(t, 2, market.level1CallCount("OBS-USDT"))
}

func TestResolveExpiresCacheAfterTTL(t *testing.T) {
	market := newFakeMarket()
	market.level1Fn = func(string) (float64, error) { return 10, nil }

	r := newResolverUnderTest(market)
	now := time.Now()
	r.now = func() time.Time { return now }

	r.Resolve(context.Background(), "OBS-USDT")
	now = now.Add(time.Minute)
	r.Resolve(context.Background(), "OBS-USDT")

	assert.Equal(t, 2, market.level1CallCount("OBS-USDT"))
}

func TestResolveCoalescesConcurrentLookups(t *testing.T) {
	market := newFakeMarket()
	gate := make(chan struct{})
	market.level1Fn = func(string) (float64, error) {
		<-gate
		return 777.0, nil
	}

	r := newResolverUnderTest(market)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]float64, callers)
	oks := make([]bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], oks[i] = r.Resolve(context.Background(), "OBS-USDT")
		}(i)
	}

	// Let every caller reach the in-flight lookup before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, market.level1CallCount("OBS-USDT"))
	for i := 0; i < callers; i++ {
		require.True(t, oks[i])
		assert.Equal(t, 777.0, results[i])
	}
}

func TestPriceFastPrefersFreshSnapshot(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000}), nil
	}
	market.level1Fn = func(string) (float64, error) { return 1, nil }

	r := newResolverUnderTest(market)
	r.snap.Refresh(context.Background())

	p, ok := r.PriceFast(context.Background(), "BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, p)
	assert.Equal(t, 0, market.level1CallCount("BTC-USDT"))
}

func TestPriceFastServesStaleSnapshotAndRefreshesAsync(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000}), nil
	}

	r := newResolverUnderTest(market)
	var mu sync.Mutex
	now := time.Now()
	r.snap.now = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	r.snap.Refresh(context.Background())

	// Past one TTL but within two: still served, refresh kicked off.
	mu.Lock()
	now = now.Add(90 * time.Second)
	mu.Unlock()

	p, ok := r.PriceFast(context.Background(), "BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, p)

	assert.Eventually(t, func() bool {
		return market.bulkCallCount() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPriceFastFallsBackToResolveWhenSnapshotTooStale(t *testing.T) {
	market := newFakeMarket()
	market.bulkFn = func() ([]upstream.Ticker, error) {
		return tickers(map[string]float64{"BTC-USDT": 50000}), nil
	}
	market.level1Fn = func(string) (float64, error) { return 51000, nil }

	r := newResolverUnderTest(market)
	var mu sync.Mutex
	now := time.Now()
	r.snap.now = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	r.snap.Refresh(context.Background())
	mu.Lock()
	now = now.Add(5 * time.Minute)
	mu.Unlock()

	p, ok := r.PriceFast(context.Background(), "BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 51000.0, p)
	assert.Equal(t, 1, market.level1CallCount("BTC-USDT"))
}

func TestResolveBatchBoundsConcurrency(t *testing.T) {
	market := newFakeMarket()
	var inFlight, peak int32
	market.level1Fn = func(string) (float64, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 1.0, nil
	}

	r := newResolverUnderTest(market)

	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = "SYM" + string(rune('A'+i)) + "-USDT"
	}

	resolved := r.ResolveBatch(context.Background(), symbols)

	assert.Len(t, resolved, 30)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(resolveBatchSize))
}

func TestResolveBatchSkipsFailedSymbols(t *testing.T) {
	market := newFakeMarket()
	market.level1Fn = func(symbol string) (float64, error) {
		if symbol == "DEAD-USDT" {
			return 0, errors.New("no such symbol")
		}
		return 2.5, nil
	}

	r := newResolverUnderTest(market)

	resolved := r.ResolveBatch(context.Background(), []string{"A-USDT", "DEAD-USDT", "B-USDT"})
	assert.Len(t, resolved, 2)
	assert.NotContains(t, resolved, "DEAD-USDT")
}
