package tax

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

var errQuoteURLRequired = errors.New("tax quote url is required")

// Client calls the remote tax quote endpoint.
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
		c.breaker = breaker.New[quoteResponse]("tax_quote", cfg, logg)
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

type remoteBreakdown struct {
	TaxType          string `json:"taxType"`
	CGST             int64  `json:"cgst"`
	SGST             int64  `json:"sgst"`
	IGST             int64  `json:"igst"`
	TotalTax         int64  `json:"totalTax"`
	GSTRate          string `json:"gstRate"`
	PriceIncludesTax bool   `json:"priceIncludesTax"`
}

type quoteResponse struct {
	Success      bool             `json:"success"`
	TaxBreakdown *remoteBreakdown `json:"taxBreakdown"`
	Error        string           `json:"error"`
}

// Estimate implements Estimator.
func (c *Client) Estimate(ctx context.Context, req Request) (types.TaxBreakdown, error) {
	if c == nil {
		return types.TaxBreakdown{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, "tax client not configured")
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
			return types.TaxBreakdown{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "tax quotes temporarily disabled")
		}
		return types.TaxBreakdown{}, err
	}

	if !resp.Success || resp.TaxBreakdown == nil {
		reason := strings.TrimSpace(resp.Error)
		if reason == "" {
			reason = "tax quote unavailable"
		}
		return types.TaxBreakdown{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, reason)
	}

	b := resp.TaxBreakdown
	if b.TotalTax < 0 {
		return types.TaxBreakdown{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, "tax quote returned a negative amount")
	}
	return types.TaxBreakdown{
		TaxType:          b.TaxType,
		CGST:             b.CGST,
		SGST:             b.SGST,
		IGST:             b.IGST,
		TotalTax:         b.TotalTax,
		GSTRate:          b.GSTRate,
		PriceIncludesTax: b.PriceIncludesTax,
	}, nil
}

func (c *Client) do(ctx context.Context, req Request) (quoteResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "marshal tax request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.quoteURL, bytes.NewReader(payload))
	if err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "build tax request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "execute tax request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "tax request failed")
	}

	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return quoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "decode tax response")
	}
	return out, nil
}
