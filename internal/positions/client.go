// =================================
// File: internal/positions/client.go
// =================================
package positions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	DefaultURL            = "https://api.nansen.ai/api/v1/tgm/perp-positions"
	MaxPerPage            = 10
	DefaultTimeout        = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second

	pingTimeout  = 10 * time.Second
	maxBodyBytes = 4 << 20
)

// Attempt outcomes reported to the Recorder.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomePermanent = "permanent"
)

// Recorder receives fetch telemetry. The metrics package implements it.
type Recorder interface {
	ObserveAttempt(token, outcome string)
	ObserveFetch(token string, d time.Duration)
	ObserveToken(token string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string)      {}
func (nopRecorder) ObserveFetch(string, time.Duration) {}
func (nopRecorder) ObserveToken(string, bool)          {}

// Options configures Client. Zero values fall back to the defaults above.
type Options struct {
	URL            string
	APIKey         string
	PerPage        int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	Recorder       Recorder
	// Notify is called before each backoff wait; tests use it to observe
	// the schedule.
	Notify func(token string, err error, wait time.Duration)
}

// Client fetches top positions for a token from the Nansen perp-positions
// endpoint, retrying transient failures with exponential backoff.
type Client struct {
	client   *http.Client
	opts     Options
	recorder Recorder
	logger   *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.PerPage <= 0 || opts.PerPage > MaxPerPage {
		opts.PerPage = MaxPerPage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Client{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		recorder: recorder,
		logger:   logger.Named("nansen"),
	}
}

type orderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type positionsRequest struct {
	TokenSymbol string     `json:"token_symbol"`
	Pagination  pagination `json:"pagination"`
	OrderBy     []orderBy  `json:"order_by,omitempty"`
}

type positionsResponse struct {
	Data []Position `json:"data"`
}

// newBackOff returns the retry schedule: InitialBackoff, doubled after
// every failure, without jitter.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	return b
}

// Fetch returns up to PerPage positions for token sorted by value
// descending. Transient failures are retried up to MaxAttempts; a
// non-retryable client error is returned immediately.
func (c *Client) Fetch(ctx context.Context, token string) ([]Position, error) {
	started := time.Now()
	defer func() { c.recorder.ObserveFetch(token, time.Since(started)) }()

	attempt := 0
	operation := func() ([]Position, error) {
		attempt++
		ps, err := c.fetchOnce(ctx, token, c.request(token))
		if err == nil {
			c.recorder.ObserveAttempt(token, OutcomeSuccess)
			return ps, nil
		}

		if !IsRetryable(err) {
			c.recorder.ObserveAttempt(token, OutcomePermanent)
			c.logger.Error("Client error fetching token",
				zap.String("token", token),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, backoff.Permanent(err)
		}

		c.recorder.ObserveAttempt(token, OutcomeRetryable)
		fields := []zap.Field{
			zap.String("token", token),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.opts.MaxAttempts),
			zap.Error(err),
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.Int("status", apiErr.StatusCode))
		}
		c.logger.Warn("Fetch attempt failed", fields...)
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Info("Retrying fetch",
			zap.String("token", token),
			zap.Duration("backoff", wait))
		if c.opts.Notify != nil {
			c.opts.Notify(token, err, wait)
		}
	}

	ps, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify))
	if err == nil {
		return ps, nil
	}

	if !IsRetryable(err) {
		return nil, fmt.Errorf("fetch %s: %w", token, err)
	}
	if cause := context.Cause(ctx); cause != nil {
		return nil, fmt.Errorf("fetch %s: %w", token, cause)
	}
	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", token, attempt, err)
}

// Ping issues a single one-row request without retries. Used by the health
// check.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req := positionsRequest{
		TokenSymbol: "BTC",
		Pagination:  pagination{Page: 1, PerPage: 1},
	}
	_, err := c.fetchOnce(ctx, req.TokenSymbol, req)
	return err
}

func (c *Client) request(token string) positionsRequest {
	return positionsRequest{
		TokenSymbol: token,
		Pagination:  pagination{Page: 1, PerPage: c.opts.PerPage},
		OrderBy:     []orderBy{{Field: "position_value_usd", Direction: "DESC"}},
	}
}

func (c *Client) fetchOnce(ctx context.Context, token string, payload positionsRequest) ([]Position, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apiKey", c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Timeout: isTimeout(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var decoded positionsResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", token, err)
	}

	ps := decoded.Data
	if ps == nil {
		ps = []Position{}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].PositionValueUSD > ps[j].PositionValueUSD
	})
	if len(ps) > c.opts.PerPage {
		ps = ps[:c.opts.PerPage]
	}
	return ps, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
