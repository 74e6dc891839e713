package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// DataClient is the read-only client for the Polymarket data API. It serves
// lead trader activity, positions for either account, and the follower
// balance. Every request waits on a shared rate limiter.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDataClient creates a data API client.
//
// baseURL is the API root, e.g. "https://data-api.polymarket.com".
// rps and burst configure the client-side rate limit.
func NewDataClient(baseURL string, rps float64, burst int, timeout time.Duration) *DataClient {
	if burst < 1 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DataClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Activity returns the most recent trades of user, newest first.
func (d *DataClient) Activity(ctx context.Context, user string, limit int) ([]APIActivity, error) {
	q := url.Values{}
	q.Set("user", user)
	q.Set("type", "TRADE")
	q.Set("limit", strconv.Itoa(limit))

	body, err := d.doGet(ctx, "/activity", q)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: activity: %w", err)
	}

	var out []APIActivity
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode activity: %w", err)
	}
	return out, nil
}

// Positions returns the open positions of address.
func (d *DataClient) Positions(ctx context.Context, address string) ([]APIPosition, error) {
	q := url.Values{}
	q.Set("address", address)

	body, err := d.doGet(ctx, "/positions", q)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: positions: %w", err)
	}

	var out []APIPosition
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}
	return out, nil
}

// Balance returns the USD balance of address.
func (d *DataClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("address", address)

	body, err := d.doGet(ctx, "/balance", q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/data: balance: %w", err)
	}

	// The endpoint answers with an object, or a one-element array on some
	// deployments.
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []APIBalance
		if err := json.Unmarshal(body, &list); err != nil {
			return decimal.Zero, fmt.Errorf("polymarket/data: decode balance: %w", err)
		}
		if len(list) == 0 {
			return decimal.Zero, nil
		}
		return list[0].Amount(), nil
	}

	var bal APIBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/data: decode balance: %w", err)
	}
	return bal.Amount(), nil
}

// doGet sends a rate-limited unauthenticated GET request.
func (d *DataClient) doGet(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := d.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
