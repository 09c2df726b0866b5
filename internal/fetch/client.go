// Package fetch is the only component that talks to the network. It paces
// requests, retries transient failures under an injected RetryPolicy and
// classifies what is left as not-found or fatal.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/infra"
)

// ErrNoUserAgent is returned by New when no user agent is given.
var ErrNoUserAgent = errors.New("fetch: user agent is required")

// Client is a paced, retrying HTTP GET client for the archive.
type Client struct {
	userAgent  string
	httpClient *http.Client
	pacer      *infra.Pacer
	policy     RetryPolicy
	log        *zap.Logger
	requests   atomic.Int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPacer sets the courtesy pacer shared by all requests.
func WithPacer(p *infra.Pacer) Option {
	return func(c *Client) { c.pacer = p }
}

// WithRetryPolicy injects the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client. userAgent must identify the operator.
func New(userAgent string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, ErrNoUserAgent
	}
	c := &Client{
		userAgent:  strings.TrimSpace(userAgent),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		pacer:      infra.NewPacer(0),
		policy:     DefaultRetryPolicy(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.policy.normalized()
	return c, nil
}

// Requests returns the number of HTTP requests sent so far. A client may
// be shared across goroutines.
func (c *Client) Requests() int { return int(c.requests.Load()) }

// Get fetches url and returns the body.
//
// Errors: ErrNotFound (wrapped) for 404, *FatalError for any other
// failure once retries are exhausted, or the context error.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		attempts int
		lastErr  error
	)
	err := retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		attempts++
		b, err := c.once(ctx, url)
		if err == nil {
			body = b
			return nil
		}
		var te *TransientError
		if errors.As(err, &te) {
			lastErr = te
			c.log.Debug("retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempts),
				zap.Int("status", te.StatusCode),
				zap.Error(te.Err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return body, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var te *TransientError
	if errors.As(err, &te) {
		c.log.Warn("retries exhausted", zap.String("url", url), zap.Int("attempts", attempts))
		return nil, &FatalError{URL: url, StatusCode: te.StatusCode, Attempts: attempts, Err: lastErr}
	}
	return nil, err
}

// once performs a single paced attempt.
func (c *Client) once(ctx context.Context, url string) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FatalError{URL: url, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html, application/xml, text/plain, */*")
	req.Header.Set("Accept-Encoding", "identity")

	c.requests.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransientError{URL: url, Err: eris.Wrap(err, "read body")}
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrap(ErrNotFound, url)
	case c.policy.Retryable(resp.StatusCode):
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &TransientError{URL: url, StatusCode: resp.StatusCode}
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FatalError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Attempts:   1,
			Err:        eris.Errorf("HTTP %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(snippet))),
		}
	}
}

// GetJSON fetches url and decodes its JSON body into dest.
func (c *Client) GetJSON(ctx context.Context, url string, dest any) error {
	data, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return eris.Wrapf(err, "decode JSON from %s", url)
	}
	return nil
}
