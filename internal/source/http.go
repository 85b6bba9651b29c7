package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backoff bounds the retry behavior of an HTTP client. Retries apply only to
// retryable failures (network errors, timeouts, 429 and 5xx responses);
// validation failures surface immediately as ErrRejected.
type Backoff struct {
	// Base is the first retry delay.
	Base time.Duration

	// Ceiling caps the exponential growth of the delay.
	Ceiling time.Duration

	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
}

// DefaultBackoff suits the rate limits of form-backed table APIs.
var DefaultBackoff = Backoff{
	Base:        500 * time.Millisecond,
	Ceiling:     15 * time.Second,
	MaxAttempts: 4,
}

// delay returns the jittered delay before the given retry attempt
// (attempt 1 = first retry). Jitter spreads concurrent workers so they do
// not hammer the rate limit in lockstep.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << (attempt - 1)
	if d > b.Ceiling || d <= 0 {
		d = b.Ceiling
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

// HTTPClient is the shared JSON-over-HTTP core of the source adapters:
// bearer auth, timeouts, bounded jittered retries, and error classification
// into the package taxonomy.
type HTTPClient struct {
	base    *url.URL
	token   string
	client  *http.Client
	backoff Backoff
}

// NewHTTPClient builds a client for the given base URL and bearer token.
func NewHTTPClient(baseURL, token string, timeout time.Duration, backoff Backoff) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if backoff.MaxAttempts < 1 {
		backoff = DefaultBackoff
	}
	return &HTTPClient{
		base:    u,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		backoff: backoff,
	}, nil
}

// DoJSON performs one API call. body (if non-nil) is JSON-encoded; out (if
// non-nil) receives the decoded response. Retryable failures are retried
// with jittered exponential backoff up to the configured attempt bound, then
// returned wrapping ErrUnavailable.
func (c *HTTPClient) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.backoff.delay(attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		err := c.doOnce(ctx, method, path, query, payload, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path,
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s %s: %v", ErrUnavailable, method, path, err)
		}
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
