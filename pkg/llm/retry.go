package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryBackoffMin is the minimum jittered backoff between attempts.
const RetryBackoffMin = 250 * time.Millisecond

// RetryBackoffMax is the maximum jittered backoff between attempts.
const RetryBackoffMax = 750 * time.Millisecond

// RetryingClient wraps a Client with a per-call timeout and a bounded
// number of attempts on transient failure, the way pkg/mcp's Client
// recovers a tool call with a jittered backoff before giving up.
// Cancellation errors are never retried.
type RetryingClient struct {
	inner       Client
	timeout     time.Duration
	maxAttempts int
}

// NewRetryingClient wraps inner so every Complete call is bounded by
// timeout and attempted at most maxAttempts times in total (maxAttempts-1
// retries). maxAttempts < 1 is treated as 1 (no retries).
func NewRetryingClient(inner Client, timeout time.Duration, maxAttempts int) *RetryingClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingClient{inner: inner, timeout: timeout, maxAttempts: maxAttempts}
}

func (c *RetryingClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		text, err := c.inner.Complete(callCtx, systemPrompt, userPrompt, opts)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		backoff := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.maxAttempts, lastErr)
}
