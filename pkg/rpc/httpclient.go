package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrNoEndpoints is returned when every endpoint is missing or has its breaker open.
var ErrNoEndpoints = errors.New("no endpoints available")

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: http %d", e.Endpoint, e.StatusCode)
}

// HTTPClient is a wrapper around an http.Client that implements a circuit-breaker and a rate limiter.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	limiter   *rate.Limiter

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	return &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		limiter:          rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

// Endpoints returns the deduplicated endpoint list.
func (c *HTTPClient) Endpoints() []string {
	return append([]string{}, c.endpoints...)
}

// isOpen returns true if the endpoint breaker is in the OPEN state.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens its breaker past the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// getJSON issues a GET for path against each endpoint in turn until one answers
// with a 2xx, decoding the body into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if len(c.endpoints) == 0 {
		return ErrNoEndpoints
	}

	lastErr := ErrNoEndpoints
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		target := ep + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 300 {
			lastErr = readHTTPError(ep, resp)
			if resp.StatusCode >= 500 {
				c.noteFailure(ep)
			}
			continue
		}

		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		if cerr := utils.DrainAndClose(resp.Body); cerr != nil && decodeErr == nil {
			decodeErr = cerr
		}
		if decodeErr != nil {
			lastErr = fmt.Errorf("decode %s: %w", path, decodeErr)
			continue
		}

		c.noteSuccess(ep)
		return nil
	}

	return lastErr
}

func readHTTPError(ep string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = utils.DrainAndClose(resp.Body)
	return &HTTPError{
		Endpoint:   ep,
		StatusCode: resp.StatusCode,
		Message:    gjson.GetBytes(body, "message").String(),
	}
}

// LedgerInfo returns the upstream chain id and head.
func (c *HTTPClient) LedgerInfo(ctx context.Context) (*LedgerInfo, error) {
	var info LedgerInfo
	if err := c.getJSON(ctx, ledgerInfoPath, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Transactions returns up to limit transactions starting at version start.
func (c *HTTPClient) Transactions(ctx context.Context, start uint64, limit uint16) ([]Transaction, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatUint(start, 10))
	query.Set("limit", strconv.FormatUint(uint64(limit), 10))

	var txns []Transaction
	if err := c.getJSON(ctx, transactionsPath, query, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}
