package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-run/stagehand/pkg/llm"
)

type flakyClient struct {
	failures int
	calls    int
}

func (c *flakyClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CallOptions) (string, error) {
	c.calls++
	if c.calls <= c.failures {
		return "", errors.New("transient failure")
	}
	return "ok", nil
}

func TestRetryingClientSucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 2}
	client := llm.NewRetryingClient(inner, time.Second, 3)

	text, err := client.Complete(context.Background(), "sys", "user", llm.DefaultCallOptions())
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingClientGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyClient{failures: 5}
	client := llm.NewRetryingClient(inner, time.Second, 2)

	_, err := client.Complete(context.Background(), "sys", "user", llm.DefaultCallOptions())
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryingClientDoesNotRetryOnCancellation(t *testing.T) {
	inner := &flakyClient{failures: 5}
	client := llm.NewRetryingClient(inner, time.Second, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "sys", "user", llm.DefaultCallOptions())
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
