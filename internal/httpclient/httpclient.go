// Package httpclient is the thin, retrying JSON HTTP client shared by the
// payment client and the airtime providers: JSON-encoded request bodies, raw
// response bodies for the caller to decode, and
// backoff-driven retries on transient failures.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Client performs JSON requests against a single upstream base URL, retrying
// transient network failures and 5xx responses with exponential backoff.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Log     zerolog.Logger

	// MaxElapsed bounds the total retry window; zero means use the package default.
	MaxElapsed time.Duration
}

const defaultMaxElapsed = 20 * time.Second

// Response wraps a completed HTTP round trip.
type Response struct {
	StatusCode int
	Body       []byte
}

// DoJSON marshals payload (if non-nil) as the request body, sets the given
// headers, and returns the raw response. It retries on network errors and
// 5xx status codes; 4xx responses are returned without retry so the caller
// can inspect them.
func (c *Client) DoJSON(ctx context.Context, method, path string, payload any, headers map[string]string) (*Response, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode payload: %w", err)
		}
		body = b
	}

	maxElapsed := c.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = defaultMaxElapsed
	}
	policy := backoff.WithContext(backoff.WithMaxElapsedTime(backoff.NewExponentialBackOff(), maxElapsed), ctx)

	var result *Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("httpclient: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			c.Log.Warn().Err(err).Str("path", path).Msg("request failed, retrying")
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("httpclient: read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			err := fmt.Errorf("httpclient: upstream %s returned %d", path, resp.StatusCode)
			c.Log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("upstream 5xx, retrying")
			return err
		}

		result = &Response{StatusCode: resp.StatusCode, Body: respBody}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return result, nil
}
