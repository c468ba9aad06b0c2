// Package gamma provides HTTP and WebSocket clients for the Polymarket
// Gamma / CLOB market-data APIs.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/marketsync/marketsync/internal/domain"
)

// Config holds the REST client settings.
type Config struct {
	// BaseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
	BaseURL string
	// RequestTimeout bounds each HTTP request. Defaults to 30s.
	RequestTimeout time.Duration
	// MinRequestInterval paces consecutive requests. Zero disables pacing.
	MinRequestInterval time.Duration
}

// Client is the REST client for the Gamma API, which provides market
// discovery and metadata.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Gamma API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinRequestInterval > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    lim,
	}
}

// ListParams controls market listing pagination and ordering.
type ListParams struct {
	Limit     int
	Offset    int
	Closed    *bool  // nil requests both open and closed markets
	Order     string // upstream sort key, e.g. "volume24hr"
	Ascending bool
}

// ListMarkets returns one page of markets. Records are returned as raw API
// DTOs; callers validate each one via ToRecord.
func (c *Client) ListMarkets(ctx context.Context, p ListParams) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("offset", strconv.Itoa(p.Offset))
	if p.Closed != nil {
		params.Set("closed", strconv.FormatBool(*p.Closed))
	}
	if p.Order != "" {
		params.Set("order", p.Order)
		params.Set("ascending", strconv.FormatBool(p.Ascending))
	}

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("gamma: list markets offset=%d: %w", p.Offset, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("gamma: decode markets: %w", err)
	}
	return markets, nil
}

// FetchPage retrieves one ingestion page of open markets ordered by
// descending 24h volume and converts it to domain records. Malformed records
// are dropped and counted in malformed rather than failing the page.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) (records []domain.MarketRecord, malformed int, err error) {
	closed := false
	raw, err := c.ListMarkets(ctx, ListParams{
		Limit:     limit,
		Offset:    offset,
		Closed:    &closed,
		Order:     "volume24hr",
		Ascending: false,
	})
	if err != nil {
		return nil, 0, err
	}

	records = make([]domain.MarketRecord, 0, len(raw))
	for i := range raw {
		rec, convErr := raw[i].ToRecord()
		if convErr != nil {
			malformed++
			continue
		}
		records = append(records, rec)
	}
	return records, malformed, nil
}

// GetMarket returns a single market by its ID.
func (c *Client) GetMarket(ctx context.Context, id string) (APIMarket, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return APIMarket{}, fmt.Errorf("gamma: get market %s: %w", id, err)
	}

	var market APIMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return APIMarket{}, fmt.Errorf("gamma: decode market: %w", err)
	}
	return market, nil
}

// doGet sends an unauthenticated GET request to the Gamma API, pacing
// requests through the client's rate limiter.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps upstream status codes onto domain sentinels so the
// poller can distinguish retryable failures from permanent ones.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransient, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
