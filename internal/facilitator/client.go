// Package facilitator speaks to the external gasless fee-paying service
// named in spec §4.6's gasless path: it advertises a fee payer per
// network and settles a pre-built, partially-signed transfer on the
// caller's behalf. Grounded on internal/chainrpc.Client for the plain
// HTTP+JSON transport shape, wrapped instead around a REST surface since
// the facilitator protocol is request/response JSON, not JSON-RPC 2.0.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aegix-network/aegix/internal/cache"
	"github.com/aegix-network/aegix/internal/errors"
)

// Config controls Client construction.
type Config struct {
	BaseURL          string
	PollInterval     time.Duration
	FeePayerCacheTTL time.Duration
	Timeout          time.Duration
}

// Client talks to the facilitator's capability/fee-payer/settle surface.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      cache.Cache
}

// New builds a Client. c may be nil, in which case fee-payer lookups are
// never cached.
func New(cfg Config, c cache.Cache) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FeePayerCacheTTL <= 0 {
		cfg.FeePayerCacheTTL = 5 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
	}
}

// Capabilities reports which networks the facilitator currently
// sponsors, the input to PaymentEngine's gasless-eligibility check.
type Capabilities struct {
	SupportedNetworks []string `json:"supportedNetworks"`
}

func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	var caps Capabilities
	if err := c.getJSON(ctx, "/supported", &caps); err != nil {
		return nil, errors.Chain(err, "facilitator: capability probe failed")
	}
	return &caps, nil
}

// FeePayer returns the facilitator's current fee-payer address for
// network, cached for FeePayerCacheTTL.
func (c *Client) FeePayer(ctx context.Context, network string) (string, error) {
	cacheKey := "facilitator:fee_payer:" + network
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			return string(cached), nil
		}
	}

	var resp struct {
		FeePayer string `json:"feePayer"`
	}
	if err := c.getJSON(ctx, "/fee-payer?network="+network, &resp); err != nil {
		return "", errors.Chain(err, "facilitator: fee payer lookup failed for %s", network)
	}

	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, []byte(resp.FeePayer), c.cfg.FeePayerCacheTTL)
	}
	return resp.FeePayer, nil
}

// SettleRequest carries the payment-payload/payment-requirements pair
// the gasless leg submits to /settle.
type SettleRequest struct {
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// SettleResult is the facilitator's response to a settle call.
type SettleResult struct {
	Success              bool   `json:"success"`
	TransactionSignature string `json:"transaction"`
	ErrorReason          string `json:"errorReason,omitempty"`
}

// Settle submits a partially-signed transfer for the facilitator to
// countersign as fee payer and broadcast. A context deadline here is
// what bounds the "ChainError, no retry" classification for a
// facilitator timeout per SPEC_FULL.md's Open Question resolution.
func (c *Client) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Internal(err, "facilitator: encode settle request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal(err, "facilitator: build settle request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Chain(err, "facilitator: settle request failed")
	}
	defer httpResp.Body.Close()

	var result SettleResult
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		return nil, errors.Chain(err, "facilitator: malformed settle response")
	}
	if !result.Success {
		return &result, errors.Chain(nil, "facilitator: settle rejected: %s", result.ErrorReason)
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("facilitator: build request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("facilitator: %s: %w", path, err)
	}
	defer httpResp.Body.Close()
	return json.NewDecoder(httpResp.Body).Decode(out)
}
