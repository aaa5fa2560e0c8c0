package llm

import "context"

// MockClient is a scriptable Client for tests in this package and callers
// that exercise pkg/orchestrator without a live provider.
type MockClient struct {
	// Responses are returned in order, one per Complete call; the last
	// entry repeats once exhausted. Responses.Err takes priority when set.
	Responses []MockResponse
	calls     int
	Prompts   []PromptPair
}

// MockResponse is one scripted reply.
type MockResponse struct {
	Text string
	Err  error
}

// PromptPair records one Complete call's inputs for assertions.
type PromptPair struct {
	SystemPrompt string
	UserPrompt   string
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, systemPrompt, userPrompt string, _ CallOptions) (string, error) {
	m.Prompts = append(m.Prompts, PromptPair{SystemPrompt: systemPrompt, UserPrompt: userPrompt})

	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	r := m.Responses[idx]
	return r.Text, r.Err
}
