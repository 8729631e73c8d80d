// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers for extractor backends.
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

// RetryBaseDelay is the first backoff step. Tests override this to avoid
// real sleeps.
var RetryBaseDelay = 2 * time.Second

const (
	defaultMaxRetries = 5

	// statusOverloaded is returned by the Anthropic API under load.
	statusOverloaded = 529
)

// Retryable reports whether a response status is worth retrying: rate
// limiting (429) and provider overload (503, 529).
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, statusOverloaded:
		return true
	}
	return false
}

// DoWithRetry executes req and retries retryable statuses with exponential
// backoff (RetryBaseDelay, doubling each attempt). A Retry-After header in
// seconds overrides the computed delay.
//
// When maxRetries is 0 the default (5) is used. If ctx is cancelled while
// waiting, ctx.Err() is returned. After the last retry the final response
// is returned as-is so the caller can inspect it. Transport errors are not
// retried.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}

		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		backoff := retryAfter(resp)
		if backoff <= 0 {
			backoff = time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := time.ParseDuration(v + "s")
	if err != nil {
		return 0
	}
	return secs
}
