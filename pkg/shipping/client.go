// Package shipping calls the remote shipping quote endpoint.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/breaker"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errQuoteURLRequired = errors.New("shipping quote url is required")

// Client posts destination and quantity to the quote endpoint.
type Client struct {
	httpClient *http.Client
	quoteURL   string
	apiKey     string
	breaker    *breaker.Breaker[quoteResponse]
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithBreaker guards the endpoint with a circuit breaker.
func WithBreaker(cfg config.BreakerConfig, logg *logger.Logger) Option {
	return func(c *Client) {
		c.breaker = breaker.New[quoteResponse]("shipping_quote", cfg, logg)
	}
}

// WithTimeout replaces the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a client for quoteURL.
func NewClient(quoteURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(quoteURL)
	if trimmed == "" {
		return nil, errQuoteURLRequired
	}

	client := &Client{
		quoteURL:   trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// QuoteRequest is the destination being priced.
type QuoteRequest struct {
	PostalCode    string `json:"postalCode"`
	State         string `json:"state"`
	TotalQuantity int    `json:"totalQuantity"`
}

type quoteResponse struct {
	Success           bool   `json:"success"`
	Amount            int64  `json:"amount"`
	OptionName        string `json:"optionName"`
	EstimatedDelivery string `json:"estimatedDelivery"`
	Error             string `json:"error"`
}

// Quote returns the shipping option for the destination. Any failure,
// including an explicit success:false, is a QUOTE_UNAVAILABLE error.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (types.ShippingQuote, error) {
	if c == nil {
		return types.ShippingQuote{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, "shipping client not configured")
	}

	call := func() (quoteResponse, error) { return c.do(ctx, req) }
	var (
		resp quoteResponse
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(call)
	} else {
		resp, err = call()
	}
	if err != nil {
		if breaker.IsRejected(err) {
			return types.ShippingQuote{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "shipping quotes temporarily disabled")
		}
		return types.ShippingQuote{}, err
	}

	if !resp.Success {
		reason := strings.TrimSpace(resp.Error)
		if reason == "" {
			reason = "shipping not available for destination"
		}
		return types.ShippingQuote{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, reason).
			WithDetails(map[string]any{"postal_code": req.PostalCode})
	}
	if resp.Amount < 0 {
		return types.ShippingQuote{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, "shipping quote returned a negative amount")
	}

	return types.ShippingQuote{
		OptionName:        resp.OptionName,
		Amount:            resp.Amount,
		EstimatedDelivery: resp.EstimatedDelivery,
	}, nil
}

func (c *Client) do(ctx context.Context, req QuoteRequest) (quoteResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "marshal shipping request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.quoteURL, bytes.NewReader(payload))
	if err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "build shipping request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "execute shipping request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "shipping request failed")
	}

	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "decode shipping response")
	}
	return out, nil
}
