// Package llm wraps outbound calls to the language model backend that
// drives stage selection, data extraction, and response generation
// (spec.md section 4.5). Every call is routed through a single Client
// interface so the three pipeline phases in pkg/orchestrator never depend
// on which provider is configured, the way the teacher's agent.LLMClient
// interface decoupled agent controllers from the gRPC transport.
package llm

import "context"

// CallOptions tunes one Complete call.
type CallOptions struct {
	MaxTokens   int
	Temperature float32
}

// DefaultCallOptions are used by callers that don't need to tune a
// particular phase's call.
func DefaultCallOptions() CallOptions {
	return CallOptions{MaxTokens: 1024, Temperature: 0.2}
}

// Client sends a system/user prompt pair to a language model and returns
// its text response.
type Client interface {
	// Complete issues one non-streaming completion call. Implementations
	// must return a descriptive error rather than panic on provider
	// failures — pkg/orchestrator records every attempt via
	// store.RecordLLMCall regardless of outcome.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CallOptions) (string, error)
}
