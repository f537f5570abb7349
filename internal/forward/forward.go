// ABOUTME: HTTP forwarding client for remote envelope calls with retry and backoff.
// ABOUTME: Translates transport failures into ErrUnreachable/ErrUpstreamTimeout, never retries received envelopes.

package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/drawbridge/internal/envelope"
)

var (
	// ErrUnreachable indicates a connection-level failure: the endpoint could
	// not be reached at all. Used by the router's fallback path.
	ErrUnreachable = errors.New("endpoint unreachable")

	// ErrUpstreamTimeout indicates the remote call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// Policy bounds one remote call: per-attempt timeout, additional attempts
// after the first, and the base backoff doubled per attempt.
type Policy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// DefaultPolicy matches the configuration defaults.
var DefaultPolicy = Policy{
	Timeout: 30 * time.Second,
	Retries: 2,
	Backoff: 500 * time.Millisecond,
}

// Client performs remote envelope calls against another gateway instance.
type Client struct {
	httpClient *http.Client
	tracker    *Tracker
	minter     *TokenMinter
	onRetry    func(endpoint, method string)
	logger     *slog.Logger
}

// NewClient creates a forwarding client. The tracker remembers endpoint
// health so known-dead endpoints skip the retry budget; minter may be nil
// when forward auth is disabled.
func NewClient(logger *slog.Logger, tracker *Tracker, minter *TokenMinter) *Client {
	return &Client{
		httpClient: &http.Client{},
		tracker:    tracker,
		minter:     minter,
		logger:     logger.With("component", "forward"),
	}
}

// OnRetry registers a callback invoked before each retry attempt. Intended
// for metrics; set once at wiring time, before the client is shared.
func (c *Client) OnRetry(fn func(endpoint, method string)) {
	c.onRetry = fn
}

// Call sends the request envelope to endpoint's /rpc and returns the decoded
// response. Transient failures (connection refused, timeout, 5xx without an
// envelope) are retried up to policy.Retries additional attempts with
// exponential backoff. Once any response envelope is received — including an
// error envelope — it is returned without retrying: domain errors are not
// transient. When the tracker marks the endpoint down, a single attempt is
// made so dead endpoints do not pay the full backoff schedule per request.
func (c *Client) Call(ctx context.Context, endpoint string, req *envelope.Request, policy Policy) (*envelope.DecodedResponse, error) {
	body, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	attempts := policy.Retries + 1
	if c.tracker != nil && c.tracker.Down(endpoint) {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := policy.Backoff * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying forward call",
				"endpoint", endpoint, "method", req.Method, "attempt", attempt, "backoff", backoff)
			if c.onRetry != nil {
				c.onRetry(endpoint, req.Method)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, retryable, err := c.attempt(ctx, endpoint, body, policy.Timeout)
		if err == nil {
			if c.tracker != nil {
				c.tracker.MarkUp(endpoint)
			}
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if c.tracker != nil {
			c.tracker.MarkDown(endpoint, err)
		}
	}

	return nil, lastErr
}

// attempt performs one HTTP exchange. The second return reports whether the
// failure is transient and worth another attempt.
func (c *Client) attempt(ctx context.Context, endpoint string, body []byte, timeout time.Duration) (*envelope.DecodedResponse, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.minter != nil {
		token, err := c.minter.Mint()
		if err != nil {
			return nil, false, fmt.Errorf("minting forward token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// The caller giving up is not an endpoint failure.
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, true, fmt.Errorf("calling %s: %w", endpoint, ErrUpstreamTimeout)
		}
		return nil, true, fmt.Errorf("calling %s: %v: %w", endpoint, err, ErrUnreachable)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, envelope.MaxBodySize))
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, true, fmt.Errorf("reading response from %s: %w", endpoint, ErrUpstreamTimeout)
		}
		return nil, true, fmt.Errorf("reading response from %s: %v: %w", endpoint, err, ErrUnreachable)
	}

	if httpResp.StatusCode != http.StatusOK {
		// A 5xx with no envelope body usually means a proxy or a crashing
		// upstream; treat it as transient. Anything else is a config problem
		// another attempt will not fix.
		if httpResp.StatusCode >= 500 {
			return nil, true, fmt.Errorf("%s returned status %d: %w", endpoint, httpResp.StatusCode, ErrUnreachable)
		}
		return nil, false, fmt.Errorf("%s returned status %d: %w", endpoint, httpResp.StatusCode, ErrUnreachable)
	}

	resp, err := envelope.DecodeResponse(raw)
	if err != nil {
		// The endpoint answered, just not with a valid envelope. Not retried.
		return nil, false, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return resp, false, nil
}

// Probe checks endpoint liveness with a plain GET /health, independent of a
// full method call. A non-200 status or connection failure marks the endpoint
// down in the tracker; a 200 marks it up.
func (c *Client) Probe(ctx context.Context, endpoint string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		probeErr := fmt.Errorf("probing %s: %v: %w", endpoint, err, ErrUnreachable)
		if c.tracker != nil {
			c.tracker.MarkDown(endpoint, probeErr)
		}
		return probeErr
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 1024))

	if httpResp.StatusCode != http.StatusOK {
		probeErr := fmt.Errorf("probing %s: status %d: %w", endpoint, httpResp.StatusCode, ErrUnreachable)
		if c.tracker != nil {
			c.tracker.MarkDown(endpoint, probeErr)
		}
		return probeErr
	}

	if c.tracker != nil {
		c.tracker.MarkUp(endpoint)
	}
	return nil
}

// ProbeLoop probes the given endpoints at interval until ctx is canceled.
// Intended to run in its own goroutine; each probe gets its own timeout.
func (c *Client) ProbeLoop(ctx context.Context, endpoints []string, interval, timeout time.Duration) {
	if len(endpoints) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	probe := func() {
		for _, ep := range endpoints {
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			if err := c.Probe(probeCtx, ep); err != nil {
				c.logger.Debug("endpoint probe failed", "endpoint", ep, "error", err)
			}
			cancel()
		}
	}

	probe()
	for {
		select {
		case <-ticker.C:
			probe()
		case <-ctx.Done():
			return
		}
	}
}

// Retryable reports whether an error from Call is a transport condition
// rather than a decoded envelope or caller cancellation.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrUpstreamTimeout)
}

// endpointKey normalizes an endpoint for tracker bookkeeping.
func endpointKey(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/")
}
