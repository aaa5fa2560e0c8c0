// Package template renders business-authored prompt templates by
// substituting named variables, and tracks which variables a template body
// references (spec.md section 4.3). Rendering never fails outright on a
// missing variable — it degrades to an inline "[Missing: name]" marker so
// one bad placeholder can't take down an entire LLM call.
package template

import (
	"context"
	"regexp"
)

// refPattern matches both {name} and {{name}} placeholder forms.
var refPattern = regexp.MustCompile(`\{\{?\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}?\}`)

// Provider resolves one named variable's value for a render. Providers are
// looked up lazily — only variables actually referenced by a template are
// resolved, so an expensive provider (e.g. one hitting the store) never
// runs for templates that don't need it.
type Provider func(ctx context.Context, rc RenderContext) (string, error)

// RenderContext carries whatever a Provider needs to resolve its value.
// Orchestrator call sites populate the fields relevant to the phase they're
// rendering for; unused fields stay zero.
type RenderContext struct {
	BusinessID     string
	ConversationID string
	UserID         string
	CurrentStageID string
	UserMessage    string
	AgentType      string
}

// Engine discovers and substitutes variables against a Registry.
type Engine struct {
	registry *Registry
}

// NewEngine builds an Engine backed by the given Registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Discover returns the distinct variable names referenced in text, in
// order of first appearance.
func Discover(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range refPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Render substitutes every {name}/{{name}} reference in text with its
// resolved value. A variable with no registered Provider, or whose
// Provider errors, renders as "[Missing: name]" — the overall render
// always succeeds.
func (e *Engine) Render(ctx context.Context, text string, rc RenderContext) string {
	return refPattern.ReplaceAllStringFunc(text, func(ref string) string {
		m := refPattern.FindStringSubmatch(ref)
		name := m[1]

		provider, ok := e.registry.Lookup(name)
		if !ok {
			return missing(name)
		}
		value, err := provider(ctx, rc)
		if err != nil {
			return missing(name)
		}
		return value
	})
}

func missing(name string) string {
	return "[Missing: " + name + "]"
}
