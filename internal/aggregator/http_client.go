package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/account-sync/internal/config"
	"github.com/account-sync/internal/syncerr"
	"golang.org/x/time/rate"
)

// HTTPClient talks to the aggregator's REST API.
// Outbound calls are throttled by a shared token-bucket limiter so many
// concurrent sync executions cannot exceed the provider's request quota.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a new aggregator HTTP client.
func NewHTTPClient(cfg *config.AggregatorConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("aggregator base URL cannot be empty")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}, nil
}

// FetchAccounts retrieves the user's linked accounts.
func (c *HTTPClient) FetchAccounts(ctx context.Context, accessToken string) ([]*Account, error) {
	var resp struct {
		Accounts []*Account `json:"accounts"`
	}
	if err := c.get(ctx, "/accounts", accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// FetchHoldings retrieves the user's investment holdings.
func (c *HTTPClient) FetchHoldings(ctx context.Context, accessToken string) ([]*Holding, error) {
	var resp struct {
		Holdings []*Holding `json:"holdings"`
	}
	if err := c.get(ctx, "/investments/holdings", accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Holdings, nil
}

// FetchTransactions retrieves transactions from fromDate to now.
func (c *HTTPClient) FetchTransactions(ctx context.Context, accessToken string, fromDate time.Time) ([]*Transaction, error) {
	params := url.Values{}
	params.Set("start_date", fromDate.Format("2006-01-02"))

	var resp struct {
		Transactions []*Transaction `json:"transactions"`
	}
	if err := c.get(ctx, "/transactions", accessToken, params, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// get performs a rate-limited GET and decodes the response, classifying
// failures into the sync error taxonomy.
func (c *HTTPClient) get(ctx context.Context, path, accessToken string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return syncerr.NewRetryable("aggregator request cancelled while throttled", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return syncerr.NewFatal("AGGREGATOR_REQUEST", "failed to build aggregator request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient
		return syncerr.NewRetryable("aggregator request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return syncerr.NewAggregatorError(resp.StatusCode, fmt.Errorf("aggregator returned %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerr.NewRetryable("failed to decode aggregator response", err)
	}

	return nil
}
