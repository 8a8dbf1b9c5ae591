// Package httpfeed reads push-style prices from an HTTP JSON endpoint.
//
// The endpoint must answer GET with {"value": "<decimal>", "timestamp": <unix>}.
package httpfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
	"github.com/StrathCole/oracle-resolver/pkg/version"
)

const defaultTimeout = 5 * time.Second

// ErrUnexpectedStatus indicates a non-200 answer.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status code")

var (
	_ upstream.ValueFeed = (*Client)(nil)
	_ upstream.RoundFeed = (*Client)(nil)
)

type response struct {
	Value     json.Number `json:"value"`
	Timestamp int64       `json:"timestamp"`
}

// Client polls a single endpoint on demand.
type Client struct {
	url      string
	decimals uint8
	client   *http.Client
}

// New creates a client for url whose answers are scaled to decimals.
func New(url string, decimals uint8, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:      url,
		decimals: decimals,
		client:   &http.Client{Timeout: timeout},
	}
}

// Decimals probes the endpoint once and returns the configured precision.
func (c *Client) Decimals(ctx context.Context) (uint8, error) {
	if _, err := c.fetch(ctx); err != nil {
		return 0, err
	}
	return c.decimals, nil
}

// Latest implements upstream.ValueFeed.
func (c *Client) Latest(ctx context.Context) (upstream.Value, error) {
	return c.fetch(ctx)
}

// LatestRound implements upstream.RoundFeed. The round id is the timestamp,
// so the round is always complete.
func (c *Client) LatestRound(ctx context.Context) (upstream.Round, error) {
	v, err := c.fetch(ctx)
	if err != nil {
		return upstream.Round{}, err
	}
	id := big.NewInt(v.UpdatedAt.Unix())
	return upstream.Round{
		RoundID:         id,
		Answer:          v.Answer,
		StartedAt:       v.UpdatedAt,
		UpdatedAt:       v.UpdatedAt,
		AnsweredInRound: id,
	}, nil
}

func (c *Client) fetch(ctx context.Context) (upstream.Value, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return upstream.Value{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RecordUpstreamCall(upstream.TypeHTTP, time.Since(start))
	if err != nil {
		return upstream.Value{}, fmt.Errorf("failed to fetch %s: %w", c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return upstream.Value{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body response
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return upstream.Value{}, fmt.Errorf("%w: %v", upstream.ErrMalformedResponse, err)
	}
	if body.Value == "" {
		return upstream.Value{}, fmt.Errorf("%w: missing value", upstream.ErrMalformedResponse)
	}

	value, err := decimal.NewFromString(body.Value.String())
	if err != nil {
		return upstream.Value{}, fmt.Errorf("%w: value %q: %v", upstream.ErrMalformedResponse, body.Value, err)
	}

	return upstream.Value{
		Answer:    value.Shift(int32(c.decimals)).Truncate(0).BigInt(),
		UpdatedAt: upstream.UnixTime(body.Timestamp),
	}, nil
}
