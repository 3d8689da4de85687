package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ordergate/internal/sign"
)

const apiKeyHeader = "X-MBX-APIKEY"

// SignObserver receives signing durations in seconds.
type SignObserver interface {
	RecordSignLatency(seconds float64)
}

// Client is a minimal REST client for the exchange endpoints the gateway
// needs: exchange info, average price, and order placement.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *sign.Signer
	observer   SignObserver
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSignObserver registers a receiver for signing latencies.
func WithSignObserver(o SignObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client. signer may be nil for unsigned-only use.
func NewClient(baseURL string, signer *sign.Signer, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     signer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetExchangeInfo fetches trading rules for all symbols.
func (c *Client) GetExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("GetExchangeInfo: %w", err)
	}

	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("GetExchangeInfo: decode: %w", err)
	}
	return &info, nil
}

// GetAvgPrice fetches the current average price for a symbol. Used as the
// reference price for MARKET-order notional checks when the stream has no
// price yet.
func (c *Client) GetAvgPrice(ctx context.Context, symbol string) (*AvgPrice, error) {
	if symbol == "" {
		return nil, fmt.Errorf("GetAvgPrice: symbol is required")
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/avgPrice", params)
	if err != nil {
		return nil, fmt.Errorf("GetAvgPrice: %w", err)
	}

	var avg AvgPrice
	if err := json.Unmarshal(body, &avg); err != nil {
		return nil, fmt.Errorf("GetAvgPrice: decode: %w", err)
	}
	return &avg, nil
}

// PlaceOrder signs params and submits them to the order endpoint. The
// caller supplies validated order parameters; stamping and signing happen
// here, immediately before transmission, so the timestamp is as fresh as
// possible.
func (c *Client) PlaceOrder(ctx context.Context, params map[string]string) (*OrderAck, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("PlaceOrder: client has no signer")
	}

	signStart := time.Now()
	signed := c.signer.SignedRequest(params)
	if c.observer != nil {
		c.observer.RecordSignLatency(time.Since(signStart).Seconds())
	}

	form := url.Values{}
	for k, v := range signed {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v3/order", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("PlaceOrder: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(apiKeyHeader, c.signer.APIKey())

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("PlaceOrder: %w", err)
	}

	var ack OrderAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("PlaceOrder: decode: %w", err)
	}
	return &ack, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}
