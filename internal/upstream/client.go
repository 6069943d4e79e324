package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	allTickersPath = "/api/v1/market/allTickers"
	level1Path     = "/api/v1/market/orderbook/level1"
)

// Ticker is one entry of the bulk ticker list.
type Ticker struct {
	Symbol string
	Price  float64
}

// Client talks to the exchange's public market-data endpoints.
// Every call carries a fixed timeout and a bounded retry count with
// exponential backoff; an exhausted call returns an error, it never hangs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	retryDelay time.Duration
}

// NewClient creates a market-data client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
	}
}

// AllTickers fetches the full bulk ticker list. Symbols whose price is
// missing or not a finite number are dropped.
func (c *Client) AllTickers(ctx context.Context) ([]Ticker, error) {
	var resp struct {
		Code string `json:"code"`
		Data struct {
			Time   int64 `json:"time"`
			Ticker []struct {
				Symbol string `json:"symbol"`
				Last   string `json:"last"`
			} `json:"ticker"`
		} `json:"data"`
	}

	if err := c.getJSON(ctx, c.baseURL+allTickersPath, &resp); err != nil {
		return nil, errors.Wrap(err, "could not fetch bulk tickers")
	}

	tickers := make([]Ticker, 0, len(resp.Data.Ticker))
	for _, t := range resp.Data.Ticker {
		price, err := strconv.ParseFloat(t.Last, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			log.Debugf("skipping ticker %s with unusable price %q", t.Symbol, t.Last)
			continue
		}
		tickers = append(tickers, Ticker{Symbol: t.Symbol, Price: price})
	}
	return tickers, nil
}

// Level1Price fetches the order-book level-1 price for a single symbol.
func (c *Client) Level1Price(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Code string `json:"code"`
		Data struct {
			Price string `json:"price"`
		} `json:"data"`
	}

	u := c.baseURL + level1Path + "?symbol=" + url.QueryEscape(symbol)
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, errors.Wrapf(err, "could not fetch level-1 price for %s", symbol)
	}

	price, err := strconv.ParseFloat(resp.Data.Price, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unusable level-1 price %q for %s", resp.Data.Price, symbol)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, errors.Errorf("no tradable price for %s", symbol)
	}
	return price, nil
}

// getJSON issues a GET with retries and exponential backoff for
// transient failures. Non-2xx responses count as transient: the
// exchange returns 429/5xx under load.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	backoff := c.retryDelay
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			log.Debugf("retry %d/%d for %s after %v: %v", attempt, c.attempts, rawURL, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		lastErr = c.getJSONOnce(ctx, rawURL, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
