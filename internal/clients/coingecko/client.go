package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dcawallet-api/internal/config"
	"dcawallet-api/internal/models"
)

// ErrUnavailable wraps every provider failure: network errors, non-200
// responses, unparseable bodies. Callers treat them all the same way.
var ErrUnavailable = errors.New("coingecko unavailable")

// Client represents a CoinGecko API client
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	log         *logrus.Entry
}

// NewClient creates a new CoinGecko client
func NewClient(cfg config.CoinGeckoConfig) *Client {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 0.5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		maxRetries:  cfg.MaxRetries,
		log:         logrus.WithField("component", "coingecko"),
	}
}

// marketChartResponse mirrors /coins/bitcoin/market_chart. Prices arrive as
// [timestamp_ms, price] pairs; json.Number keeps them out of float64.
type marketChartResponse struct {
	Prices [][]json.Number `json:"prices"`
}

// GetDailySeries fetches the daily BTC price series for the last days days.
func (c *Client) GetDailySeries(ctx context.Context, days int, currency string) ([]models.PricePoint, error) {
	endpoint := fmt.Sprintf("/coins/bitcoin/market_chart?vs_currency=%s&days=%d&interval=daily",
		url.QueryEscape(currency), days)

	body, err := c.makeRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var chart marketChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: failed to parse market chart: %v", ErrUnavailable, err)
	}

	points := make([]models.PricePoint, 0, len(chart.Prices))
	for _, pair := range chart.Prices {
		if len(pair) != 2 {
			continue
		}
		ts, err := pair[0].Int64()
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			continue
		}
		points = append(points, models.PricePoint{TimestampMS: ts, Price: price})
	}
	return points, nil
}

type simplePriceResponse map[string]map[string]json.Number

// GetSpotPrice fetches the current BTC price in the given currency.
func (c *Client) GetSpotPrice(ctx context.Context, currency string) (decimal.Decimal, error) {
	endpoint := "/simple/price?ids=bitcoin&vs_currencies=" + url.QueryEscape(currency)

	body, err := c.makeRequest(ctx, endpoint)
	if err != nil {
		return decimal.Zero, err
	}

	var response simplePriceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to parse spot price: %v", ErrUnavailable, err)
	}

	raw, ok := response["bitcoin"][currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no spot price for currency %s", ErrUnavailable, currency)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad spot price %q: %v", ErrUnavailable, raw.String(), err)
	}
	return price, nil
}

type historyResponse struct {
	MarketData struct {
		CurrentPrice map[string]json.Number `json:"current_price"`
	} `json:"market_data"`
}

// GetHistoricalPrice fetches the BTC price on a specific calendar day.
func (c *Client) GetHistoricalPrice(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error) {
	// CoinGecko wants dd-mm-yyyy here, unlike everywhere else.
	endpoint := "/coins/bitcoin/history?date=" + date.UTC().Format("02-01-2006")

	body, err := c.makeRequest(ctx, endpoint)
	if err != nil {
		return decimal.Zero, err
	}

	var response historyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to parse history: %v", ErrUnavailable, err)
	}

	raw, ok := response.MarketData.CurrentPrice[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no historical price for %s on %s",
			ErrUnavailable, currency, date.UTC().Format("2006-01-02"))
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad historical price %q: %v", ErrUnavailable, raw.String(), err)
	}
	return price, nil
}

func (c *Client) makeRequest(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Retrying CoinGecko request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dcawallet-api/1.0")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: network error: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
