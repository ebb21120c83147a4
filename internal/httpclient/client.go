// Package httpclient holds the pooled HTTP client and retry loop shared by
// outbound integrations.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Shared returns an HTTP client with connection pooling.
func Shared(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// RetryPolicy bounds DoWithRetry. Backoff grows exponentially from Base with jitter.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

// DefaultRetry is three retries starting at one second.
var DefaultRetry = RetryPolicy{MaxRetries: 3, Base: time.Second}

// StatusError is a non-2xx response that survived all retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Base > 0 {
		b.InitialInterval = p.Base
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0))), ctx)
}

// DoWithRetry executes the request built by buildReq, retrying network
// failures, 5xx and 429 responses. Other statuses are returned to the caller.
func DoWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	attempt := 0
	op := func() (*http.Response, error) {
		attempt++
		req, err := buildReq()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("retrying request", "attempt", attempt+1, "backoff", wait, "err", err)
	}

	resp, err := backoff.RetryNotifyWithData(op, policy.backOff(ctx), notify)
	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", attempt, err)
	}
	return resp, nil
}
