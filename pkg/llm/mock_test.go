package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stagehand-run/stagehand/pkg/llm"
)

func TestMockClientReturnsScriptedResponsesInOrder(t *testing.T) {
	m := &llm.MockClient{Responses: []llm.MockResponse{
		{Text: "first"},
		{Text: "second"},
	}}

	out, err := m.Complete(context.Background(), "sys", "user1", llm.DefaultCallOptions())
	require.NoError(t, err)
	require.Equal(t, "first", out)

	out, err = m.Complete(context.Background(), "sys", "user2", llm.DefaultCallOptions())
	require.NoError(t, err)
	require.Equal(t, "second", out)

	// exhausted: repeats the last scripted response
	out, err = m.Complete(context.Background(), "sys", "user3", llm.DefaultCallOptions())
	require.NoError(t, err)
	require.Equal(t, "second", out)

	require.Len(t, m.Prompts, 3)
	require.Equal(t, "user1", m.Prompts[0].UserPrompt)
}

func TestMockClientPropagatesScriptedError(t *testing.T) {
	wantErr := errors.New("provider down")
	m := &llm.MockClient{Responses: []llm.MockResponse{{Err: wantErr}}}

	_, err := m.Complete(context.Background(), "sys", "user", llm.DefaultCallOptions())
	require.ErrorIs(t, err, wantErr)
}

func TestClientInterfaceIsSatisfiedByAllImplementations(t *testing.T) {
	var _ llm.Client = (*llm.MockClient)(nil)
	var _ llm.Client = (*llm.OpenAIClient)(nil)
	var _ llm.Client = (*llm.AnthropicClient)(nil)
}
